// Package analytics computes the dashboard views from harmonized records.
//
// Every builder is a pure function over canonical records (positions,
// observations, rating snapshots, loss events and macro points) and returns
// a view struct that marshals to JSON and exports as an exporter.Bundle.
// Input problems that stop a view from being computed are reported as a
// *ValidationError listing every problem found:
//
//	view, err := analytics.BuildCohorts(obs, events, analytics.DefaultCohortOptions())
//	var verr *analytics.ValidationError
//	if errors.As(err, &verr) {
//		for _, p := range verr.Problems {
//			fmt.Println(p)
//		}
//	}
//
// Optional values use harmonize.Num so that missing measurements serialize
// as null instead of zero.
package analytics
