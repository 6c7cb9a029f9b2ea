// Package app wires the sales dashboard server together: configuration,
// logging, telemetry, services, the websocket hub and the chi router.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, SALES_* environment)
//	2. Initialize the slog logger and OpenTelemetry providers
//	3. Load the model bundle and the sales dataset into services
//	4. Build the router and HTTP server
//
// Missing models or data are not fatal: predictions fall back to the
// simulated baseline and the data endpoints serve a generated sample.
//
// # Usage
//
//	a, err := app.New(ctx, "")
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
//
// # Graceful Shutdown
//
// Run returns after SIGINT, SIGTERM or cancellation of ctx. Shutdown drains
// in-flight requests, cancels a running pipeline, closes websocket clients
// and flushes telemetry, all bounded by the configured shutdown timeout.
//
// # Error Handling
//
// All initialization errors are returned to the caller. The app does not
// call os.Exit, leaving the exit code to main.
package app
