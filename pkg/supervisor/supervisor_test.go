package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monstack/monstack/pkg/errors"
)

func testOptions(launcher *fakeLauncher, prober *fakeProber) Options {
	return Options{
		GracePeriod:     100 * time.Millisecond,
		MonitorInterval: 10 * time.Millisecond,
		Launch:          launcher.launch,
		Probe:           prober.probe,
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestSupervisor_LaunchesInDependencyOrder(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	sup, err := New([]ServiceSpec{
		spec("prometheus", "alertmanager", "node-exporter"),
		spec("alertmanager"),
		spec("node-exporter"),
	}, testOptions(launcher, prober), newRecordingLogger())
	require.NoError(t, err)

	require.NoError(t, sup.startAll(context.Background()))

	launched := launcher.launched()
	require.Len(t, launched, 3)
	assert.Equal(t, "prometheus", launched[2], "prometheus must start after both dependencies")

	for _, id := range launched {
		assert.Equal(t, StatusReady, sup.StatusOf(id))
	}

	sup.Shutdown()
}

func TestSupervisor_UnknownDependencyFailsBeforeAnySpawn(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	_, err := New([]ServiceSpec{
		spec("prometheus", "ghost-exporter"),
	}, testOptions(launcher, prober), newRecordingLogger())

	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Empty(t, launcher.launched(), "no process may be spawned on a configuration error")
}

func TestSupervisor_CycleFailsBeforeAnySpawn(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	_, err := New([]ServiceSpec{
		spec("a", "b"),
		spec("b", "a"),
	}, testOptions(launcher, prober), newRecordingLogger())

	require.Error(t, err)
	assert.True(t, errors.IsDependencyCycleError(err))
	assert.Empty(t, launcher.launched())
}

func TestSupervisor_ShutdownIsIdempotent(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	sup, err := New([]ServiceSpec{
		spec("x"), spec("y"), spec("z"),
	}, testOptions(launcher, prober), newRecordingLogger())
	require.NoError(t, err)
	require.NoError(t, sup.startAll(context.Background()))

	sup.Shutdown()
	sup.Shutdown()

	for _, id := range []string{"x", "y", "z"} {
		proc := launcher.process(id)
		require.NotNil(t, proc)
		assert.Equal(t, int32(1), proc.signalCount(), "service %s must be signaled exactly once", id)
		assert.Equal(t, StatusStopped, sup.StatusOf(id))
	}
	assert.True(t, sup.ShutdownRequested())
}

func TestSupervisor_DependentsNeverLaunchedWhenDependencyUnready(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()
	prober.failFor["a"] = errors.NewReadinessTimeoutError("service did not become ready within max wait", nil)

	// C depends on B depends on A, and A never becomes ready
	sup, err := New([]ServiceSpec{
		spec("a"),
		spec("b", "a"),
		spec("c", "b"),
	}, testOptions(launcher, prober), newRecordingLogger())
	require.NoError(t, err)

	err = sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsReadinessTimeoutError(err))

	assert.Equal(t, []string{"a"}, launcher.launched(), "b and c must never be launched")
	assert.Equal(t, StatusStopped, sup.StatusOf("a"), "a must be rolled back")
	assert.Equal(t, StatusPending, sup.StatusOf("b"))
	assert.Equal(t, StatusPending, sup.StatusOf("c"))
	assert.Equal(t, int32(1), launcher.process("a").signalCount())
}

func TestSupervisor_LaunchFailureRollsBackStartedServices(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()
	launcher.failFor["b"] = errors.NewLaunchError("failed to start the process", nil)

	sup, err := New([]ServiceSpec{
		spec("a"),
		spec("b", "a"),
	}, testOptions(launcher, prober), newRecordingLogger())
	require.NoError(t, err)

	err = sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsLaunchError(err))

	assert.Equal(t, []string{"a"}, launcher.launched())
	assert.Equal(t, int32(1), launcher.process("a").signalCount(), "already-started services must be terminated")
	assert.Equal(t, StatusFailed, sup.StatusOf("b"))
}

func TestSupervisor_DashboardOpensOnlyAfterAllReady(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	var opened int32
	options := testOptions(launcher, prober)
	options.DashboardURL = "file:///tmp/dashboard.html"
	options.OpenDashboard = func(url string) error {
		atomic.AddInt32(&opened, 1)
		return nil
	}

	sup, err := New([]ServiceSpec{
		spec("one"), spec("two"), spec("three"),
	}, options, newRecordingLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitUntil(t, 5*time.Second, func() bool {
		return atomic.LoadInt32(&opened) == 1
	}, "dashboard should open")

	// By the time the dashboard opens, every service is Ready
	for _, id := range []string{"one", "two", "three"} {
		assert.Equal(t, StatusReady, sup.StatusOf(id))
	}
	assert.Len(t, launcher.launched(), 3)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opened))
}

func TestSupervisor_DashboardOpenFailureIsNotFatal(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()
	logger := newRecordingLogger()

	options := testOptions(launcher, prober)
	options.DashboardURL = "file:///tmp/dashboard.html"
	options.OpenDashboard = func(url string) error {
		return errors.NewIOError("no browser available", nil)
	}

	sup, err := New([]ServiceSpec{spec("svc")}, options, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitUntil(t, 5*time.Second, func() bool {
		return logger.contains("warn", "Failed to open dashboard")
	}, "open failure should be logged")

	assert.Equal(t, StatusReady, sup.StatusOf("svc"))

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisor_UnexpectedExitIsReportedAndOthersUnaffected(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()
	logger := newRecordingLogger()

	sup, err := New([]ServiceSpec{
		spec("a"), spec("b"), spec("c"),
	}, testOptions(launcher, prober), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitUntil(t, 5*time.Second, func() bool {
		return len(launcher.launched()) == 3 && sup.StatusOf("c") == StatusReady
	}, "all services should become ready")

	// b dies behind the supervisor's back
	launcher.process("b").exit()

	waitUntil(t, 5*time.Second, func() bool {
		return sup.StatusOf("b") == StatusFailed
	}, "unexpected exit should be detected")

	assert.True(t, logger.contains("error", "unexpected_exit"), "unexpected exit must be logged")
	assert.Equal(t, StatusReady, sup.StatusOf("a"), "other services are unaffected")
	assert.Equal(t, StatusReady, sup.StatusOf("c"))

	cancel()
	require.NoError(t, <-done, "an unexpected exit is degraded mode, not a supervisor failure")

	// The dead service was never re-signaled, the live ones exactly once
	assert.Equal(t, int32(0), launcher.process("b").signalCount())
	assert.Equal(t, int32(1), launcher.process("a").signalCount())
	assert.Equal(t, int32(1), launcher.process("c").signalCount())
}

func TestSupervisor_InterruptDuringProbeStopsEverythingCleanly(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()
	prober.blockOn["b"] = true

	sup, err := New([]ServiceSpec{
		spec("a"),
		spec("b", "a"),
		spec("c", "b"),
	}, testOptions(launcher, prober), newRecordingLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitUntil(t, 5*time.Second, func() bool {
		return len(launcher.launched()) == 2
	}, "b should be launched and under probe")

	cancel()

	require.NoError(t, <-done, "operator interrupt is a clean shutdown")

	assert.Equal(t, StatusStopped, sup.StatusOf("a"))
	assert.Equal(t, StatusStopped, sup.StatusOf("b"))
	assert.Equal(t, StatusPending, sup.StatusOf("c"), "c was never launched")
	assert.Equal(t, int32(1), launcher.process("a").signalCount())
	assert.Equal(t, int32(1), launcher.process("b").signalCount())
}

func TestSupervisor_PreCheckShortCircuitsAlreadyRunningService(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	options := testOptions(launcher, prober)
	options.PreCheck = func(ctx context.Context, s ServiceSpec) bool {
		return s.ID == "exporter"
	}

	sup, err := New([]ServiceSpec{
		spec("exporter"),
		spec("prometheus", "exporter"),
	}, options, newRecordingLogger())
	require.NoError(t, err)

	require.NoError(t, sup.startAll(context.Background()))

	assert.Equal(t, []string{"prometheus"}, launcher.launched(), "the already-running exporter is not spawned")
	assert.Equal(t, StatusReady, sup.StatusOf("exporter"))
	assert.Equal(t, StatusReady, sup.StatusOf("prometheus"))

	sup.Shutdown()

	// Nothing to signal for a service we never spawned
	assert.Nil(t, launcher.process("exporter"))
	assert.Equal(t, StatusReady, sup.StatusOf("exporter"), "a pre-existing service is left alone on shutdown")
}

func TestSupervisor_StatusReportRunsOnMonitorTicks(t *testing.T) {
	launcher := newFakeLauncher()
	prober := newFakeProber()

	var reports int32
	options := testOptions(launcher, prober)
	options.StatusReport = func(ctx context.Context) {
		atomic.AddInt32(&reports, 1)
	}

	sup, err := New([]ServiceSpec{spec("svc")}, options, newRecordingLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitUntil(t, 5*time.Second, func() bool {
		return atomic.LoadInt32(&reports) >= 2
	}, "status report should run on every tick")

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisor_RequiresLaunchAndProbe(t *testing.T) {
	_, err := New([]ServiceSpec{spec("a")}, Options{}, newRecordingLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
