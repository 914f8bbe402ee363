package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"MF_ENV" default:"development"`

	HTTPPort        int           `envconfig:"MF_HTTP_PORT" default:"8000"`
	HTTPTimeout     time.Duration `envconfig:"MF_HTTP_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"MF_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"MF_CORS_ORIGINS" default:"*"`

	DownloadDir       string `envconfig:"MF_DOWNLOAD_DIR" default:"./models"`
	MaxConcurrentJobs int    `envconfig:"MF_MAX_CONCURRENT_JOBS" default:"4"`

	HuggingFaceEnabled  bool   `envconfig:"MF_HUGGINGFACE_ENABLED" default:"true"`
	HuggingFaceEndpoint string `envconfig:"MF_HUGGINGFACE_ENDPOINT" default:"https://huggingface.co"`
	HuggingFaceToken    string `envconfig:"HUGGINGFACE_TOKEN"`
	ModelScopeEnabled   bool   `envconfig:"MF_MODELSCOPE_ENABLED" default:"true"`
	ModelScopeEndpoint  string `envconfig:"MF_MODELSCOPE_ENDPOINT" default:"https://www.modelscope.cn"`
	ModelScopeToken     string `envconfig:"MODELSCOPE_TOKEN"`

	RequestTimeout   time.Duration `envconfig:"MF_REQUEST_TIMEOUT" default:"30s"`
	RetryAttempts    int           `envconfig:"MF_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff     time.Duration `envconfig:"MF_RETRY_BACKOFF" default:"1s"`
	RetryMaxBackoff  time.Duration `envconfig:"MF_RETRY_MAX_BACKOFF" default:"30s"`
	ProbeConcurrency int           `envconfig:"MF_PROBE_CONCURRENCY" default:"8"`
	ProgressInterval time.Duration `envconfig:"MF_PROGRESS_INTERVAL" default:"500ms"`

	LogLevel  string `envconfig:"MF_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"MF_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max concurrent jobs must be positive: %d", c.MaxConcurrentJobs)
	}

	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("probe concurrency must be positive: %d", c.ProbeConcurrency)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative: %d", c.RetryAttempts)
	}

	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive: %s", c.ProgressInterval)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}

	if c.HuggingFaceEnabled && c.HuggingFaceEndpoint == "" {
		return fmt.Errorf("huggingface endpoint cannot be empty")
	}
	if c.ModelScopeEnabled && c.ModelScopeEndpoint == "" {
		return fmt.Errorf("modelscope endpoint cannot be empty")
	}

	return nil
}
