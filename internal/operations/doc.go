// Package operations runs the ETL pipeline as a sequence of dependent steps.
//
// The pipeline downloads the INEGI archives, cleans each survey, computes the
// inequality tables and exports them. Every step is a Step registered with a
// Manager, which orders steps by dependency, applies per-step timeouts and
// retries, and reports progress through a StatusBroadcaster.
//
// Core Components:
//
// Manager: Orchestrates an operation. It plans the steps of a request, runs
// them sequentially and keeps a PipelineManifest of the data each step finds
// or produces.
//
// Step: A single unit of work. Steps declare the steps they depend on and the
// data they read and write, so a step requested on its own can run against
// data produced by an earlier operation.
//
// Registry: Holds the registered steps and sorts them topologically.
//
// StatusBroadcaster: The single source of operation snapshots sent to
// websocket clients.
//
// JobQueue: Runs operations asynchronously for the HTTP API.
//
// Example usage:
//
//	manager := operations.NewManager(hub, nil, operations.NewConfigFromPipeline(cfg.Pipeline))
//	if err := operations.RegisterSteps(manager, deps); err != nil {
//		return err
//	}
//	resp, err := manager.Execute(ctx, operations.OperationRequest{Mode: operations.ModeFull})
package operations
