package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
	"github.com/monstack/monstack/pkg/process"
	"github.com/monstack/monstack/pkg/supervisor"
)

// Resolve locates every enabled service's executable and config artifacts
// and returns populated service specs. Any missing or unreadable artifact
// is a configuration error naming it; nothing is spawned on failure.
func Resolve(config *StackConfig, logger logging.Logger) ([]supervisor.ServiceSpec, error) {
	baseDir, err := filepath.Abs(config.Stack.BaseDir)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to resolve base directory", err).
			WithContext("base_dir", config.Stack.BaseDir)
	}

	logDir := config.Stack.LogDir
	if logDir == "" {
		logDir = filepath.Join(baseDir, "logs")
	} else if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(baseDir, logDir)
	}

	specs := make([]supervisor.ServiceSpec, 0, len(config.Services))
	for _, service := range config.Services {
		if service.Enabled != nil && !*service.Enabled {
			logger.Infof("Skipping disabled service, id: %s", service.ID)
			continue
		}

		executable, err := resolveExecutable(baseDir, service.Executable)
		if err != nil {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("executable for service %q not found", service.ID), err).
				WithContext("service_id", service.ID).
				WithContext("patterns", service.Executable.PathPatterns).
				WithContext("name", service.Executable.Name)
		}
		logger.Infof("Resolved executable, id: %s, path: %s", service.ID, executable)

		args := append([]string{}, service.Args...)
		for _, ref := range service.ConfigFiles {
			resolved, err := resolveArtifact(baseDir, ref.Path)
			if err != nil {
				return nil, errors.NewConfigurationError(
					fmt.Sprintf("config file %q for service %q is missing or unreadable", ref.Path, service.ID), err).
					WithContext("service_id", service.ID).WithContext("path", ref.Path)
			}
			if ref.Flag != "" {
				args = append(args, ref.Flag+"="+resolved)
			}
		}

		workDir := service.WorkingDirectory
		if workDir != "" && !filepath.IsAbs(workDir) {
			workDir = filepath.Join(baseDir, workDir)
		}

		specs = append(specs, supervisor.ServiceSpec{
			ID: service.ID,
			Execution: process.ExecutionConfig{
				ExecutablePath:   executable,
				Args:             args,
				Environment:      service.Environment,
				WorkingDirectory: workDir,
			},
			Readiness: service.Readiness,
			DependsOn: service.DependsOn,
			LogPath:   filepath.Join(logDir, service.ID+".log"),
		})
	}

	return specs, nil
}

// resolveExecutable tries each path pattern relative to the base directory
// (highest lexical match wins, so a newer versioned directory beats an
// older one), then falls back to a $PATH lookup by name.
func resolveExecutable(baseDir string, executable ExecutableConfig) (string, error) {
	for _, pattern := range executable.PathPatterns {
		candidates := expandPattern(baseDir, pattern)
		for i := len(candidates) - 1; i >= 0; i-- {
			if isExecutableFile(candidates[i]) {
				return candidates[i], nil
			}
		}
	}

	if executable.Name != "" {
		if path, err := exec.LookPath(executable.Name); err == nil {
			return path, nil
		}
	}

	return "", os.ErrNotExist
}

func expandPattern(baseDir, pattern string) []string {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}

	var candidates []string
	if matches, err := filepath.Glob(pattern); err == nil {
		candidates = append(candidates, matches...)
	}
	if runtime.GOOS == "windows" && filepath.Ext(pattern) == "" {
		if matches, err := filepath.Glob(pattern + ".exe"); err == nil {
			candidates = append(candidates, matches...)
		}
	}
	sort.Strings(candidates)
	return candidates
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

// resolveArtifact returns the absolute path of an existing, readable file.
func resolveArtifact(baseDir, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, not a file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	f.Close()

	return path, nil
}
