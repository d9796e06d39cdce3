// Package exporter writes analytic view tables to CSV files and XLSX
// workbooks.
//
// Every view output implements Tabular. A page export is a Bundle of named
// tables; CSV exports write one file per table and XLSX exports write one
// sheet per table.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(paths)
//	files, err := writer.WriteBundle(bundle, true)
//
//	err = exporter.WriteWorkbook(path, bundle)
package exporter
