// Package schema defines the canonical field vocabulary for quarterly risk
// datasets.
//
// Every source extract the dashboard accepts is one of a small set of dataset
// kinds (instrument reference, risk metric, result, cash flow, charge-off and
// macro series). Each kind carries a DatasetSpec listing its required fields,
// the fields that identify it, the filename prefixes it usually ships under,
// and the alias variants under which each canonical field may appear.
//
// Header matching is done on normalized tokens: lowercase with everything
// outside [a-z0-9] removed, so "Instrument Identifier", "instrument_identifier"
// and "instrumentIdentifier" all resolve to the same canonical field.
//
// The priority lists (PDPriority, RatingPriority, ...) decide which column wins
// when a file carries several candidates for the same concept.
package schema
