package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/monstack/monstack/pkg/dashboard"
	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/probe"
)

// StackConfig is the top-level configuration file structure.
type StackConfig struct {
	Stack    StackOptions    `yaml:"stack"`
	Services []ServiceConfig `yaml:"services"`
	Status   StatusConfig    `yaml:"status,omitempty"`
}

// StackOptions holds supervisor-level settings.
type StackOptions struct {
	BaseDir         string        `yaml:"base_dir,omitempty"`
	LogDir          string        `yaml:"log_dir,omitempty"`
	Dashboard       string        `yaml:"dashboard,omitempty"`
	OpenDashboard   *bool         `yaml:"open_dashboard,omitempty"` // pointer to distinguish unset from false
	GracePeriod     time.Duration `yaml:"grace_period,omitempty"`
	MonitorInterval time.Duration `yaml:"monitor_interval,omitempty"`
}

// ServiceConfig describes one managed service.
type ServiceConfig struct {
	ID               string           `yaml:"id"`
	Enabled          *bool            `yaml:"enabled,omitempty"`
	Executable       ExecutableConfig `yaml:"executable"`
	Args             []string         `yaml:"args,omitempty"`
	Environment      []string         `yaml:"environment,omitempty"`
	WorkingDirectory string           `yaml:"working_directory,omitempty"`
	ConfigFiles      []ConfigFileRef  `yaml:"config_files,omitempty"`
	Readiness        probe.Config     `yaml:"readiness"`
	DependsOn        []string         `yaml:"depends_on,omitempty"`
}

// ExecutableConfig locates a service executable: path patterns are tried
// relative to the base directory (version-suffixed directories allowed,
// e.g. "prometheus-*/prometheus"), then the bare name on $PATH.
type ExecutableConfig struct {
	PathPatterns []string `yaml:"path_patterns,omitempty"`
	Name         string   `yaml:"name,omitempty"`
}

// ConfigFileRef is an opaque configuration artifact for a service binary.
// The supervisor only checks it exists and is readable; when Flag is set,
// the resolved absolute path is handed to the binary as flag=path.
type ConfigFileRef struct {
	Path string `yaml:"path"`
	Flag string `yaml:"flag,omitempty"`
}

// StatusConfig drives the periodic metrics/alerts console summary.
type StatusConfig struct {
	PrometheusURL string                  `yaml:"prometheus_url,omitempty"`
	Queries       []dashboard.MetricQuery `yaml:"queries,omitempty"`
}

// LoadConfigFromFile loads stack configuration from a YAML file.
func LoadConfigFromFile(filename string) (*StackConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to read configuration file", err).
			WithContext("filename", filename)
	}

	var config StackConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewConfigurationError("failed to parse YAML configuration", err).
			WithContext("filename", filename)
	}

	setConfigDefaults(&config)
	return &config, nil
}

func setConfigDefaults(config *StackConfig) {
	if config.Stack.BaseDir == "" {
		config.Stack.BaseDir = "."
	}
	if config.Stack.GracePeriod <= 0 {
		config.Stack.GracePeriod = 5 * time.Second
	}
	if config.Stack.MonitorInterval <= 0 {
		config.Stack.MonitorInterval = 30 * time.Second
	}
	if config.Stack.OpenDashboard == nil {
		open := true
		config.Stack.OpenDashboard = &open
	}
	for i := range config.Services {
		config.Services[i].Readiness.ApplyDefaults()
	}
}
