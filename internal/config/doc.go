// Package config provides centralized configuration for the sales forecasting
// tools: the pipeline CLI and the prediction web service.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SALES_<SECTION>_<KEY>:
//
//	SALES_SERVER_PORT=8080
//	SALES_LOGGING_LEVEL=debug
//	SALES_PIPELINE_TARGET_COLUMN=Sales
//	SALES_PIPELINE_LAGS=1,7,30
//	SALES_PIPELINE_MODELS_DISABLED=gradient_boosting
//
// Enumerated settings (missing value strategy, outlier method, encoding,
// scaling, aggregation functions, disabled estimators) are validated when the
// configuration is loaded, so an unsupported value never reaches the pipeline.
package config
