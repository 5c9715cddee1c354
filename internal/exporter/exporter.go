package exporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"licensehub/internal/license"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx", case-insensitively. An empty string
// selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns a download name stamped with the export time.
func (f Format) Filename(at time.Time) string {
	return fmt.Sprintf("licenses-%s.%s", at.UTC().Format("20060102-150405"), f)
}

// Columns is the export header row.
var Columns = []string{
	"ID",
	"Key",
	"Active",
	"Activated",
	"Expiration Date",
	"Remaining Days",
	"Subscription Type",
	"Key Type",
	"Multi Device",
	"Device ID",
	"Support Name",
	"Created At",
}

// row renders one license. now is used for the remaining days column.
func row(l license.License, now time.Time) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.Key,
		strconv.FormatBool(l.Active),
		strconv.FormatBool(l.Activated),
		l.ExpirationDate.UTC().Format(time.DateOnly),
		strconv.Itoa(remainingDays(l, now)),
		string(l.SubscriptionType),
		string(l.KeyType),
		strconv.FormatBool(l.MultiDevice),
		l.DeviceID,
		l.SupportName,
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func remainingDays(l license.License, now time.Time) int {
	return int(l.Remaining(now) / (24 * time.Hour))
}

// Write encodes licenses to w in the given format.
func Write(w io.Writer, format Format, licenses []license.License, now time.Time) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, licenses, now)
	case FormatXLSX:
		return WriteXLSX(w, licenses, now)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
