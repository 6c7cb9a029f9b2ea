package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. SALES_SERVER_PORT.
const EnvPrefix = "SALES"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AllowedOrigins limits CORS; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig controls OpenTelemetry tracing and metrics.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// PipelineConfig describes one end-to-end forecasting run.
type PipelineConfig struct {
	InputFile    string   `yaml:"input_file" envconfig:"INPUT_FILE" validate:"required"`
	DateColumn   string   `yaml:"date_column" envconfig:"DATE_COLUMN"`
	DateLayouts  []string `yaml:"date_layouts" envconfig:"DATE_LAYOUTS"`
	TargetColumn string   `yaml:"target_column" envconfig:"TARGET_COLUMN" validate:"required"`
	GroupColumn  string   `yaml:"group_column" envconfig:"GROUP_COLUMN"`
	DropColumns  []string `yaml:"drop_columns" envconfig:"DROP_COLUMNS"`

	MissingStrategy  string   `yaml:"missing_strategy" envconfig:"MISSING_STRATEGY" validate:"oneof=auto drop mean median mode"`
	OutlierMethod    string   `yaml:"outlier_method" envconfig:"OUTLIER_METHOD" validate:"omitempty,oneof=iqr zscore"`
	OutlierColumns   []string `yaml:"outlier_columns" envconfig:"OUTLIER_COLUMNS"`
	OutlierThreshold float64  `yaml:"outlier_threshold" envconfig:"OUTLIER_THRESHOLD" validate:"gt=0"`
	Encoding         string   `yaml:"encoding" envconfig:"ENCODING" validate:"oneof=label onehot"`
	Scaling          string   `yaml:"scaling" envconfig:"SCALING" validate:"omitempty,oneof=standard minmax"`

	Lags               []int    `yaml:"lags" envconfig:"LAGS" validate:"dive,min=1"`
	RollingWindows     []int    `yaml:"rolling_windows" envconfig:"ROLLING_WINDOWS" validate:"dive,min=1"`
	AggFuncs           []string `yaml:"agg_funcs" envconfig:"AGG_FUNCS" validate:"dive,oneof=mean sum count min max median std"`
	AggColumn          string   `yaml:"agg_column" envconfig:"AGG_COLUMN"`
	InteractionColumns []string `yaml:"interaction_columns" envconfig:"INTERACTION_COLUMNS"`
	PolynomialColumns  []string `yaml:"polynomial_columns" envconfig:"POLYNOMIAL_COLUMNS"`
	PolynomialDegree   int      `yaml:"polynomial_degree" envconfig:"POLYNOMIAL_DEGREE" validate:"gte=0"`
	BinColumn          string   `yaml:"bin_column" envconfig:"BIN_COLUMN"`
	Bins               int      `yaml:"bins" envconfig:"BINS" validate:"gte=0"`

	TestSize    float64 `yaml:"test_size" envconfig:"TEST_SIZE" validate:"gt=0,lt=1"`
	RandomState int64   `yaml:"random_state" envconfig:"RANDOM_STATE"`
	TopFeatures int     `yaml:"top_features" envconfig:"TOP_FEATURES" validate:"gte=1"`

	Models ModelsConfig `yaml:"models" envconfig:"MODELS"`
}

// ModelsConfig holds estimator hyper-parameters.
type ModelsConfig struct {
	Disabled         []string               `yaml:"disabled" envconfig:"DISABLED" validate:"dive,oneof=linear_regression random_forest gradient_boosting"`
	RandomForest     RandomForestConfig     `yaml:"random_forest" envconfig:"RANDOM_FOREST"`
	GradientBoosting GradientBoostingConfig `yaml:"gradient_boosting" envconfig:"GRADIENT_BOOSTING"`
}

// RandomForestConfig configures the random forest regressor.
type RandomForestConfig struct {
	Trees          int `yaml:"trees" envconfig:"TREES" validate:"min=1"`
	MaxDepth       int `yaml:"max_depth" envconfig:"MAX_DEPTH" validate:"gte=0"`
	MinSamplesLeaf int `yaml:"min_samples_leaf" envconfig:"MIN_SAMPLES_LEAF" validate:"min=1"`
	Workers        int `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
}

// GradientBoostingConfig configures the gradient boosted trees regressor.
type GradientBoostingConfig struct {
	Trees        int     `yaml:"trees" envconfig:"TREES" validate:"min=1"`
	LearningRate float64 `yaml:"learning_rate" envconfig:"LEARNING_RATE" validate:"gt=0,lte=1"`
	MaxDepth     int     `yaml:"max_depth" envconfig:"MAX_DEPTH" validate:"min=1"`
	Subsample    float64 `yaml:"subsample" envconfig:"SUBSAMPLE" validate:"gt=0,lte=1"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. An empty path searches the
// usual locations; a non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	configFile := path
	if configFile == "" {
		configFile = getConfigFilePath()
	} else if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct constraints and normalizes enum-like strings.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Pipeline.MissingStrategy = strings.ToLower(c.Pipeline.MissingStrategy)
	c.Pipeline.OutlierMethod = strings.ToLower(c.Pipeline.OutlierMethod)
	c.Pipeline.Encoding = strings.ToLower(c.Pipeline.Encoding)
	c.Pipeline.Scaling = strings.ToLower(c.Pipeline.Scaling)

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires a file path", c.Logging.Output)
	}
	if c.Pipeline.BinColumn != "" && c.Pipeline.Bins < 1 {
		return fmt.Errorf("bin column %q requires bins >= 1", c.Pipeline.BinColumn)
	}
	if len(c.Pipeline.AggFuncs) > 0 && (c.Pipeline.GroupColumn == "" || c.Pipeline.AggColumn == "") {
		return fmt.Errorf("aggregation features require group_column and agg_column")
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ModelsDir:  "models",
			ReportsDir: "reports",
			LogsDir:    "logs",
			WebDir:     "web",
		},
		Pipeline: PipelineConfig{
			InputFile:        "sales_data.csv",
			DateColumn:       "Date",
			TargetColumn:     "Sales",
			MissingStrategy:  "auto",
			OutlierMethod:    "iqr",
			OutlierThreshold: 1.5,
			Encoding:         "onehot",
			Scaling:          "standard",
			Lags:             []int{1, 7},
			RollingWindows:   []int{7},
			TestSize:         0.2,
			RandomState:      42,
			TopFeatures:      10,
			Models: ModelsConfig{
				RandomForest: RandomForestConfig{
					Trees:          100,
					MinSamplesLeaf: 1,
				},
				GradientBoosting: GradientBoostingConfig{
					Trees:        100,
					LearningRate: 0.1,
					MaxDepth:     6,
					Subsample:    1.0,
				},
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "salesforecast",
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}
