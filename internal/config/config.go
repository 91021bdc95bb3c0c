package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the fraud report dashboard
type Config struct {
	Server   ServerConfig
	Analyzer AnalyzerConfig
	Session  SessionConfig
	Report   ReportConfig
	Kafka    KafkaConfig
	Signing  SigningConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   string        `mapstructure:"max_upload_size"` // echo BodyLimit syntax, e.g. "10M"
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AnalyzerConfig points at the external scoring service
type AnalyzerConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  int           `mapstructure:"breaker_failures"`
	BreakerOpenFor   time.Duration `mapstructure:"breaker_open_for"`
	BreakerInterval  time.Duration `mapstructure:"breaker_interval"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
}

// SessionConfig controls the lifetime of in-memory upload sessions
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ReportConfig holds the aggregation and narrative thresholds
type ReportConfig struct {
	HighRiskThreshold        float64 `mapstructure:"high_risk_threshold"`
	MediumRiskThreshold      float64 `mapstructure:"medium_risk_threshold" validate:"ltefield=HighRiskThreshold"`
	ElevatedAvgRiskThreshold float64 `mapstructure:"elevated_avg_risk_threshold"`
	Locale                   string  `mapstructure:"locale"`
}

// KafkaConfig holds the report event producer settings
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	ReportTopic string   `mapstructure:"report_topic"`
}

// SigningConfig holds the secret used to sign CSV exports
type SigningConfig struct {
	ExportHMACSecret string `mapstructure:"export_hmac_secret"` // base64, empty disables signing
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// envReplacer maps nested keys such as analyzer.base_url to FRAUD_ANALYZER_BASE_URL
var envReplacer = strings.NewReplacer(".", "_")

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("FRAUD")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	// Read config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_size", "10M")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Analyzer
	v.SetDefault("analyzer.base_url", "http://127.0.0.1:8000")
	v.SetDefault("analyzer.timeout", "45s")
	v.SetDefault("analyzer.breaker_failures", 5)
	v.SetDefault("analyzer.breaker_open_for", "30s")
	v.SetDefault("analyzer.breaker_interval", "1m")
	v.SetDefault("analyzer.max_response_bytes", 32<<20)

	// Session
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.sweep_interval", "5m")

	// Report
	v.SetDefault("report.high_risk_threshold", 30)
	v.SetDefault("report.medium_risk_threshold", 15)
	v.SetDefault("report.elevated_avg_risk_threshold", 30)
	v.SetDefault("report.locale", "en-IN")

	// Kafka
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.report_topic", "fraud.reports.completed")

	// Signing
	v.SetDefault("signing.export_hmac_secret", "")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Options converts the thresholds into aggregation options
func (c ReportConfig) Options() report.Options {
	return report.Options{
		HighRiskThreshold:        c.HighRiskThreshold,
		MediumRiskThreshold:      c.MediumRiskThreshold,
		ElevatedAvgRiskThreshold: c.ElevatedAvgRiskThreshold,
	}
}
