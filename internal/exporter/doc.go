// Package exporter writes the license table as CSV or XLSX.
//
// CSV output starts with a UTF-8 BOM so that spreadsheet tools pick the
// right encoding. Both formats share the column layout in Columns.
package exporter
