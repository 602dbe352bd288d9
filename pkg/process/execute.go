package process

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

// ExecutionConfig describes how to start one service executable.
type ExecutionConfig struct {
	ExecutablePath   string   `yaml:"executable_path"`
	Args             []string `yaml:"args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
}

// Child is a spawned service process. The exit status is reaped by an
// internal goroutine, so Alive/Exited reflect the real process state and
// no zombies are left behind.
type Child struct {
	id     string
	proc   *os.Process
	logger logging.Logger

	done    chan struct{}
	waitErr error
	once    sync.Once
}

// Launch starts the executable described by execution, redirecting its
// combined stdout/stderr to the log file at logPath. The child is placed
// in its own process group so later termination covers its whole tree.
func Launch(ctx context.Context, execution ExecutionConfig, id string, logPath string, logger logging.Logger) (*Child, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil).WithContext("id", id)
	}
	if err := ValidateExecutionConfig(execution); err != nil {
		return nil, errors.NewValidationError("invalid execution configuration", err).WithContext("id", id)
	}

	if err := ensureExecutable(execution.ExecutablePath); err != nil {
		return nil, errors.NewPermissionError("executable is not runnable", err).
			WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
	}

	workDir := execution.WorkingDirectory
	if workDir == "" {
		absPath, err := filepath.Abs(execution.ExecutablePath)
		if err != nil {
			return nil, errors.NewIOError("failed to get absolute path", err).
				WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
		}
		workDir = filepath.Dir(absPath)
	}

	logFile, err := openLogFile(logPath)
	if err != nil {
		return nil, errors.NewIOError("failed to open service log file", err).
			WithContext("id", id).WithContext("log_path", logPath)
	}

	env := os.Environ()
	env = append(env, execution.Environment...)

	cmd := exec.Command(execution.ExecutablePath, execution.Args...)
	cmd.Dir = workDir
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Platform-specific setup is in execute_unix.go / execute_windows.go
	setupProcessAttributes(cmd)

	logger.Debugf("Executing process, id: %s, executable path: '%s', args: %v, working directory: '%s', log: '%s'",
		id, execution.ExecutablePath, execution.Args, workDir, logPath)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, errors.NewLaunchError("failed to start the process", err).
			WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
	}

	// The child holds its own copy of the log file descriptor now.
	logFile.Close()

	logger.Infof("Process started, id: %s, PID: %d", id, cmd.Process.Pid)

	child := &Child{
		id:     id,
		proc:   cmd.Process,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		child.waitErr = cmd.Wait()
		close(child.done)
	}()

	return child, nil
}

func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// PID returns the process identifier.
func (c *Child) PID() int {
	return c.proc.Pid
}

// Alive reports whether the process has not yet exited.
func (c *Child) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Exited is closed once the process has exited and been reaped.
func (c *Child) Exited() <-chan struct{} {
	return c.done
}

// ExitError returns the wait error after Exited is closed (nil on a
// zero exit status).
func (c *Child) ExitError() error {
	select {
	case <-c.done:
		return c.waitErr
	default:
		return nil
	}
}

// Terminate requests a graceful stop and escalates to a forced kill if the
// process is still alive after the grace period. It signals the process at
// most once; repeated calls after exit are no-ops.
func (c *Child) Terminate(grace time.Duration) error {
	if !c.Alive() {
		return nil
	}

	var result error
	c.once.Do(func() {
		pid := c.proc.Pid
		c.logger.Infof("Requesting graceful termination, id: %s, PID: %d, grace: %v", c.id, pid, grace)

		if err := sendTerminationSignal(c.proc); err != nil {
			c.logger.Warnf("Failed to send termination signal, id: %s, PID: %d, error: %v", c.id, pid, err)
		}

		select {
		case <-c.done:
			c.logger.Infof("Process exited gracefully, id: %s, PID: %d", c.id, pid)
			return
		case <-time.After(grace):
		}

		c.logger.Warnf("Grace period elapsed, forcing termination, id: %s, PID: %d", c.id, pid)
		if err := forceKill(c.proc); err != nil {
			result = errors.NewShutdownError("failed to force-terminate process", err).
				WithContext("id", c.id).WithContext("pid", pid)
			return
		}

		// The kill is asynchronous; give the reaper a moment to observe it.
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
		}

		result = errors.NewShutdownError("process did not exit within grace period and was killed", nil).
			WithContext("id", c.id).WithContext("pid", pid).WithContext("grace", grace.String())
	})
	return result
}

// ensureExecutable checks that path points at a runnable file and, on Unix,
// sets the execute bit if missing.
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		ext := filepath.Ext(path)
		if ext == ".exe" || ext == ".bat" || ext == ".cmd" {
			return nil
		}
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if runtime.GOOS != "windows" {
		return os.Chmod(path, mode|0111)
	}
	return nil
}
