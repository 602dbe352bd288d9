package process

import (
	"strings"

	"github.com/monstack/monstack/pkg/errors"
)

// ValidateExecutionConfig validates an execution configuration before spawn
func ValidateExecutionConfig(config ExecutionConfig) error {
	if strings.TrimSpace(config.ExecutablePath) == "" {
		return errors.NewValidationError("executable path cannot be empty", nil)
	}

	for i, arg := range config.Args {
		if strings.ContainsRune(arg, 0) {
			return errors.NewValidationError("argument contains NUL byte", nil).WithContext("arg_index", i)
		}
	}

	for _, env := range config.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("environment entry must be KEY=VALUE: "+env, nil)
		}
	}

	return nil
}
