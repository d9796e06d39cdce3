// Package ingest reads uploaded CSV extracts and works out which dataset kind
// each one is.
//
// Detection scores every known kind against a file's header row: five points
// per required field found, one per identifying field, plus a bonus when the
// filename starts with (2) or contains (1) one of the kind's usual prefixes.
// Only kinds with all their required fields are eligible. When none is, the
// returned DetectionError names the closest kind and the headers it lacked.
//
// Loaded files keep every cell as text. Numeric and date parsing happens
// later, column by column, through ParseFloat and ParseDate.
package ingest
