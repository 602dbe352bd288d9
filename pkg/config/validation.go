package config

import (
	"strings"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/probe"
)

// ValidateConfig validates the entire configuration structure before any
// artifact resolution or process launch.
func ValidateConfig(config *StackConfig) error {
	if config == nil {
		return errors.NewConfigurationError("configuration cannot be nil", nil)
	}
	if len(config.Services) == 0 {
		return errors.NewConfigurationError("at least one service must be configured", nil)
	}

	seen := make(map[string]bool, len(config.Services))
	for _, service := range config.Services {
		if err := validateServiceConfig(service); err != nil {
			return err
		}
		if seen[service.ID] {
			return errors.NewConfigurationError("duplicate service id", nil).
				WithContext("service_id", service.ID)
		}
		seen[service.ID] = true
	}

	// Dependencies must reference configured services; enabled/disabled
	// mismatches surface here rather than at launch time.
	for _, service := range config.Services {
		for _, dep := range service.DependsOn {
			if !seen[dep] {
				return errors.NewConfigurationError(
					"service depends on unknown service id: "+dep, nil).
					WithContext("service_id", service.ID).WithContext("dependency", dep)
			}
		}
	}

	return nil
}

func validateServiceConfig(service ServiceConfig) error {
	if strings.TrimSpace(service.ID) == "" {
		return errors.NewConfigurationError("service id cannot be empty", nil)
	}
	if len(service.Executable.PathPatterns) == 0 && service.Executable.Name == "" {
		return errors.NewConfigurationError(
			"service executable needs path patterns or a name", nil).
			WithContext("service_id", service.ID)
	}
	if err := probe.Validate(service.Readiness); err != nil {
		return errors.NewConfigurationError("invalid readiness check", err).
			WithContext("service_id", service.ID)
	}
	for _, ref := range service.ConfigFiles {
		if strings.TrimSpace(ref.Path) == "" {
			return errors.NewConfigurationError("config file path cannot be empty", nil).
				WithContext("service_id", service.ID)
		}
	}
	return nil
}
