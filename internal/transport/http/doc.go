// Package http implements the HTTP handlers of the sales dashboard API.
// Handlers stay thin: they parse and validate the request, call a service
// from internal/services and render the result with go-chi/render.
//
// # Routes
//
//	GET  /api/health          liveness payload
//	GET  /api/health/ready    per-component readiness, 503 when not ready
//	GET  /api/version         build and runtime information
//	GET  /api/stats           summary statistics of the sales column
//	GET  /api/data?limit=N    first N records (default 50, max 1000)
//	GET  /api/categories      sales sum, mean and count per category
//	GET  /api/models          the loaded model bundle
//	POST /api/predict         score one feature vector
//	POST /api/pipeline/run    start a training run in the background (202)
//	GET  /api/pipeline/status state of the latest run
//
// # Error Handling
//
// Every failure goes through errors.ErrorHandler and is rendered as an
// RFC 7807 problem:
//
//	{
//	    "type": "/errors/model/shape-mismatch",
//	    "title": "Unprocessable Entity",
//	    "status": 422,
//	    "detail": "features differ from training: missing [Quantity], unexpected []",
//	    "instance": "/api/predict",
//	    "trace_id": "..."
//	}
package http
