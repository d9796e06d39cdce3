// Package dashboard turns the datasets bound to a page into its computed
// view.
//
// A page is computed in three steps that the job queue runs as separate
// stages and the synchronous view endpoint runs back to back:
//
//	in, err := engine.Load(ctx, inputs.PageBacktest)   // readiness gate, concurrent file loads
//	h, err := engine.Harmonize(ctx, in)                 // canonical records per page
//	result, err := engine.Compute(ctx, h, req)          // filters and analytics
//
// Load fails with *NotReadyError when a required input is missing or lacks
// required headers. Compute fails with *analytics.ValidationError when the
// inputs do not cover what the view needs.
package dashboard
