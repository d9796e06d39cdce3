// Package geo places instruments geographically.
//
// A Resolver turns the geography columns of an instrument (a CBSA/MSA code,
// borrower and collateral ZIPs, a state) into a CBSA and a USPS state code,
// using a ZIP to CBSA crosswalk when one is configured. Without a crosswalk
// only states resolve, and callers fall back to state-level aggregation.
package geo
