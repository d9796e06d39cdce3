// Package services implements the business logic between the HTTP handlers
// and the storage, dashboard and job layers.
//
// # Available Services
//
//   - DatasetService: detects, stores and binds uploaded files to page inputs
//   - DashboardService: computes, explains and exports dashboard pages
//   - JobService: runs page computations on the background queue
//   - HealthService: liveness and readiness checks
//
// # Error Handling
//
// Services return domain errors already shaped for clients where the
// mapping is specific to the service (inputs not ready, unknown job, full
// queue). Everything else is wrapped with %w and left to the central
// error handler, which recognises detection, coverage and not-found errors.
//
// # Common Service Pattern
//
//	func (s *DashboardService) Compute(ctx context.Context, page string, req dashboard.Request) (*dashboard.Result, error) {
//	    if err := req.Filters.Validate(); err != nil {
//	        return nil, fmt.Errorf("%w: %v", ErrInvalidFilters, err)
//	    }
//	    result, err := s.engine.Run(ctx, page, req)
//	    if err != nil {
//	        return nil, toAPIError(err)
//	    }
//	    return result, nil
//	}
package services
