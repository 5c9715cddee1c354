package exporter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"licensehub/internal/license"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleLicenses() []license.License {
	return []license.License{
		{
			ID:               1,
			Key:              "ABC-123",
			Active:           true,
			Activated:        true,
			ExpirationDate:   now.Add(10*24*time.Hour + 5*time.Hour),
			SubscriptionType: license.SubscriptionMonth,
			KeyType:          license.KeyTypeRestricted,
			DeviceID:         "device-1",
			SupportName:      "Ali, Support",
			CreatedAt:        now.Add(-24 * time.Hour),
		},
		{
			ID:               2,
			Key:              "EXPIRED",
			ExpirationDate:   now.Add(-time.Hour),
			SubscriptionType: license.SubscriptionFreeTrial,
			KeyType:          license.KeyTypeUnrestricted,
			MultiDevice:      true,
			CreatedAt:        now.Add(-96 * time.Hour),
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Equal(t, "licenses-20250301-120000.xlsx", FormatXLSX.Filename(now))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleLicenses(), now))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])

	first := records[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "ABC-123", first[1])
	assert.Equal(t, "true", first[2])
	assert.Equal(t, "2025-03-11", first[4])
	assert.Equal(t, "10", first[5])
	assert.Equal(t, "1 Month", first[6])
	assert.Equal(t, "device-1", first[9])
	assert.Equal(t, "Ali, Support", first[10], "commas survive quoting")

	second := records[2]
	assert.Equal(t, "0", second[5], "expired licenses report zero days")
	assert.Equal(t, "unrestricted", second[7])
	assert.Equal(t, "true", second[8])
	assert.Empty(t, second[9])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, now))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVPropagatesWriterError(t *testing.T) {
	assert.Error(t, WriteCSV(failingWriter{}, sampleLicenses(), now))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleLicenses(), now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "ABC-123", rows[1][1])
	assert.Equal(t, "TRUE", rows[1][2])
	assert.Equal(t, "10", rows[1][5])
	assert.Equal(t, "EXPIRED", rows[2][1])
}

func TestWriteUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("pdf"), nil, now))
}
