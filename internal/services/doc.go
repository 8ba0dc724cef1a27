// Package services implements the business logic behind the HTTP API.
//
// Handlers never touch the pipeline or the data files directly. They call:
//
//   - InequalityService: Gini and decile tables per survey year and level,
//     computed from the tidy ENIGH file and cached with an expiry
//   - OperationService: queues pipeline runs and reports job progress
//   - HealthService: liveness, readiness and system statistics
//
// Services return *errors.AppError values so that the transport layer can map
// them to problem responses without inspecting messages.
package services
