// Package app wires the configuration, the pipeline and the HTTP server
// together.
//
// NewPipeline builds the operations manager with every step registered and is
// shared by the CLI commands, which run steps synchronously, and by
// NewApplication, which serves the same pipeline behind a job queue:
//
//	a, err := app.NewApplication(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
//
// Run blocks until SIGINT, SIGTERM or ctx cancellation and then drains the
// job queue, closes WebSocket clients, releases the result store and flushes
// telemetry.
package app
