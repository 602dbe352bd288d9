//go:build !windows

package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger("", logging.LogFuncs{})
}

func TestLaunch_WritesServiceLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "echo.log")

	child, err := Launch(context.Background(), ExecutionConfig{
		ExecutablePath: "/bin/sh",
		Args:           []string{"-c", "echo hello-from-service"},
	}, "echo", logPath, testLogger())
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Greater(t, child.PID(), 0)

	select {
	case <-child.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	assert.False(t, child.Alive())
	assert.NoError(t, child.ExitError())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello-from-service")
}

func TestLaunch_MissingExecutable(t *testing.T) {
	dir := t.TempDir()

	_, err := Launch(context.Background(), ExecutionConfig{
		ExecutablePath: filepath.Join(dir, "no-such-binary"),
	}, "missing", filepath.Join(dir, "missing.log"), testLogger())

	require.Error(t, err)
	assert.True(t, errors.IsPermissionError(err) || errors.IsLaunchError(err))
}

func TestChild_TerminateGraceful(t *testing.T) {
	dir := t.TempDir()

	child, err := Launch(context.Background(), ExecutionConfig{
		ExecutablePath: "/bin/sh",
		Args:           []string{"-c", "sleep 60"},
	}, "sleeper", filepath.Join(dir, "sleeper.log"), testLogger())
	require.NoError(t, err)
	require.True(t, child.Alive())

	// sleep dies on SIGTERM, so the grace period is never exhausted
	err = child.Terminate(5 * time.Second)
	assert.NoError(t, err)
	assert.False(t, child.Alive())
}

func TestChild_TerminateForcesStubbornProcess(t *testing.T) {
	dir := t.TempDir()

	child, err := Launch(context.Background(), ExecutionConfig{
		ExecutablePath: "/bin/sh",
		Args:           []string{"-c", `trap "" TERM; sleep 60`},
	}, "stubborn", filepath.Join(dir, "stubborn.log"), testLogger())
	require.NoError(t, err)

	// Give the shell a moment to install the trap
	time.Sleep(100 * time.Millisecond)

	err = child.Terminate(300 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsShutdownError(err))
	assert.False(t, child.Alive())
}

func TestChild_TerminateAfterExitIsNoop(t *testing.T) {
	dir := t.TempDir()

	child, err := Launch(context.Background(), ExecutionConfig{
		ExecutablePath: "/bin/sh",
		Args:           []string{"-c", "true"},
	}, "oneshot", filepath.Join(dir, "oneshot.log"), testLogger())
	require.NoError(t, err)

	select {
	case <-child.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	assert.NoError(t, child.Terminate(time.Second))
	assert.NoError(t, child.Terminate(time.Second))
}
