package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the triage engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Triage   TriageConfig   `yaml:"triage"`
	Recorder RecorderConfig `yaml:"recorder"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the Prometheus metrics listener.
type ServerConfig struct {
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SourceConfig selects and configures the telemetry source.
type SourceConfig struct {
	// Mode is "cloudwatch" or "synthetic".
	Mode            string        `yaml:"mode"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"accessKeyId"`
	SecretAccessKey string        `yaml:"secretAccessKey"`
	Namespace       string        `yaml:"namespace"`
	LogGroup        string        `yaml:"logGroup"`
	MetricNames     []string      `yaml:"metricNames"`
	Window          time.Duration `yaml:"window"`
	PollInterval    time.Duration `yaml:"pollInterval"`
}

// AnalysisConfig configures the deep-analysis service client.
type AnalysisConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	LogsPath string        `yaml:"logsPath"`
	RCAPath  string        `yaml:"rcaPath"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// TriageConfig controls classification and escalation behaviour.
type TriageConfig struct {
	EscalationThreshold string `yaml:"escalationThreshold"`
	MaxErrorSamples     int    `yaml:"maxErrorSamples"`
	MaxInfoSamples      int    `yaml:"maxInfoSamples"`
	ThresholdsPath      string `yaml:"thresholdsPath"`
}

// RecorderConfig controls on-disk incident persistence.
type RecorderConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			Mode:      "synthetic",
			Region:    "us-east-1",
			Namespace: "Custom/EcommerceOrderPipeline",
			LogGroup:  "/aws/lambda/cloudwatch-log-generator",
			MetricNames: []string{
				"CPUUtilization",
				"MemoryUsageMB",
				"OrderLatencyMS",
				"ErrorRate",
				"RetryCount",
			},
			Window:       15 * time.Minute,
			PollInterval: 5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			LogsPath: "/api/v1/analyze/logs",
			RCAPath:  "/api/v1/analyze/rca",
			Timeout:  30 * time.Second,
			Retries:  2,
		},
		Triage: TriageConfig{
			EscalationThreshold: "warning",
			MaxErrorSamples:     8,
			MaxInfoSamples:      4,
			ThresholdsPath:      "configs/thresholds.yaml",
		},
		Recorder: RecorderConfig{Dir: "data/incidents"},
		Logging:  LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIAGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TRIAGE_SOURCE_MODE"); v != "" {
		cfg.Source.Mode = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Source.Region = v
	}
	if v := os.Getenv("TRIAGE_AWS_ENDPOINT"); v != "" {
		cfg.Source.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Source.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Source.SecretAccessKey = v
	}
	if v := os.Getenv("TRIAGE_NAMESPACE"); v != "" {
		cfg.Source.Namespace = v
	}
	if v := os.Getenv("TRIAGE_LOG_GROUP"); v != "" {
		cfg.Source.LogGroup = v
	}
	if v := os.Getenv("TRIAGE_METRIC_NAMES"); v != "" {
		names := strings.Split(v, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		cfg.Source.MetricNames = names
	}
	if v := os.Getenv("TRIAGE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.Window = d
		}
	}
	if v := os.Getenv("TRIAGE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.PollInterval = d
		}
	}
	if v := os.Getenv("TRIAGE_ANALYSIS_BASE_URL"); v != "" {
		cfg.Analysis.BaseURL = v
	}
	if v := os.Getenv("TRIAGE_ANALYSIS_LOGS_PATH"); v != "" {
		cfg.Analysis.LogsPath = v
	}
	if v := os.Getenv("TRIAGE_ANALYSIS_RCA_PATH"); v != "" {
		cfg.Analysis.RCAPath = v
	}
	if v := os.Getenv("TRIAGE_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Timeout = d
		}
	}
	if v := os.Getenv("TRIAGE_ANALYSIS_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Retries = n
		}
	}
	if v := os.Getenv("TRIAGE_ESCALATION_THRESHOLD"); v != "" {
		cfg.Triage.EscalationThreshold = v
	}
	if v := os.Getenv("TRIAGE_THRESHOLDS_PATH"); v != "" {
		cfg.Triage.ThresholdsPath = v
	}
	if v := os.Getenv("TRIAGE_RECORDER_DIR"); v != "" {
		cfg.Recorder.Dir = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
