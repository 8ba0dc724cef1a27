// Package http exposes the inequality service over HTTP.
//
// Handlers are thin: they parse the request, call a service and render the
// result. Every failure goes through errors.ErrorHandler so clients always
// receive an RFC 7807 problem document.
//
// # Routes
//
//	GET    /api/health               liveness summary
//	GET    /api/health/ready         503 until data dirs and pipeline are usable
//	GET    /api/health/live
//	GET    /api/health/stats         data dir and cache statistics
//	GET    /api/version
//	GET    /api/inequality/levels
//	GET    /api/inequality/{year}    ?level=national|state|municipal&format=json|csv
//	GET    /api/operations/types
//	GET    /api/operations/metrics
//	POST   /api/operations           enqueue a pipeline run, returns 202
//	GET    /api/operations           ?status=&limit=
//	GET    /api/operations/{id}
//	GET    /api/operations/{id}/manifest
//	DELETE /api/operations/{id}
//
// Queued and cancelled jobs are announced on the WebSocket hub as
// operation_update messages; progress of running jobs is published by the
// operations manager itself.
package http
