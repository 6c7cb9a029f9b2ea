// Package services holds the business logic behind the HTTP API. Handlers in
// internal/transport/http decode requests and render responses; everything
// else lives here.
//
// # Available Services
//
//	- PredictionService: scores feature vectors with the models of a saved
//	  pipeline bundle, or a simulated baseline when no bundle is loaded
//	- DataService: summary statistics, raw records and per-category
//	  aggregates of the sales dataset
//	- HealthService: liveness, readiness and version information
//	- PipelineService: runs the training pipeline in the background, one
//	  run at a time, and hands the new bundle to PredictionService
//
// # Concurrency
//
// Services are built once at startup and shared by all request goroutines.
// DataService and HealthService are read-only. PredictionService swaps its
// bundle atomically on reload. PipelineService guards its run state with a
// mutex.
//
// # Error Handling
//
// Services return errors from internal/errors. The HTTP layer maps their
// types to RFC 7807 responses:
//
//	- ErrInvalidParameter -> 400
//	- ErrMissingInput     -> 404
//	- ErrShapeMismatch    -> 422
//	- ErrUnavailable      -> 503
package services
