// Package harmonize maps detected dataset files onto canonical records.
//
// Files of one kind are unioned in load order. Records are keyed by
// instrument and date; when a later file repeats a key its row replaces the
// earlier one and the override is counted in the kind's Report. Rows without
// an instrument identifier are dropped and counted.
//
// Where a concept has several candidate columns (PD, rating, EAD, event
// date) the first populated column in the schema priority list is used row
// by row, so a file mixing annualized and forward PDs still yields a value
// for every row that has either.
package harmonize
