// Package http implements the REST handlers of the risk dashboard. Handlers
// stay thin: they parse the request, call a service and render the result.
//
// # Routes
//
//	GET    /api/v1/pages                          pages and their readiness
//	GET    /api/v1/pages/{page}/inputs            input panel of a page
//	POST   /api/v1/pages/{page}/inputs/{input}    upload a file into an input slot
//	DELETE /api/v1/pages/{page}/inputs/{input}    clear an input slot
//	GET    /api/v1/pages/{page}/explain           provenance of the bound files
//	GET    /api/v1/pages/{page}/view              computed tables and charts
//	GET    /api/v1/pages/{page}/export            CSV or XLSX download
//	POST   /api/v1/pages/{page}/jobs              queue a background computation
//	GET    /api/v1/jobs[/{id}], DELETE /{id}      job status and cancellation
//	GET    /api/v1/datasets[/{id}], DELETE /{id}  dataset registry
//	POST   /api/v1/detect                         classify a file without storing it
//	GET    /api/v1/filters                        filter options
//
// # Responses
//
// Successful responses are wrapped as {"status":"success","data":...}.
// Errors are rendered by errors.ErrorHandler as RFC 7807 problem details,
// so a handler only ever passes the error along:
//
//	result, err := h.dashboard.Compute(r.Context(), pageFrom(r).Key, req)
//	if err != nil {
//	    h.errorHandler.HandleError(w, r, err)
//	    return
//	}
//	respond(w, r, http.StatusOK, result)
package http
