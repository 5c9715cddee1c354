package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"licensehub/internal/license"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes the header and one record per license.
func WriteCSV(w io.Writer, licenses []license.License, now time.Time) error {
	// BOM helps Excel recognize UTF-8
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, l := range licenses {
		if err := writer.Write(row(l, now)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
