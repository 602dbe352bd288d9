package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

// LaunchFunc spawns the process for a spec and returns its handle.
type LaunchFunc func(ctx context.Context, spec ServiceSpec) (Process, error)

// ProbeFunc blocks until the service is ready, its process exits (exited
// closed), the readiness max wait elapses, or ctx is cancelled.
type ProbeFunc func(ctx context.Context, spec ServiceSpec, exited <-chan struct{}) error

// PreCheckFunc reports whether the service already answers its readiness
// check before any spawn, e.g. an exporter installed as a host service.
type PreCheckFunc func(ctx context.Context, spec ServiceSpec) bool

// OpenDashboardFunc opens the dashboard; failures are logged, never fatal.
type OpenDashboardFunc func(url string) error

// StatusReportFunc runs on every monitor tick, best-effort.
type StatusReportFunc func(ctx context.Context)

type Options struct {
	GracePeriod     time.Duration
	MonitorInterval time.Duration
	DashboardURL    string

	Launch        LaunchFunc
	Probe         ProbeFunc
	PreCheck      PreCheckFunc      // optional
	OpenDashboard OpenDashboardFunc // optional, nil disables the dashboard step
	StatusReport  StatusReportFunc  // optional
}

const (
	DefaultGracePeriod     = 5 * time.Second
	DefaultMonitorInterval = 30 * time.Second
)

// Supervisor drives the launch pipeline for a fixed set of services:
// topological launch order, per-service readiness gate, rollback on
// failure, post-startup monitoring, and reverse-order graceful shutdown.
type Supervisor struct {
	options Options
	order   []ServiceSpec
	logger  logging.Logger

	mutex             sync.Mutex
	handles           map[string]*ServiceHandle
	startOrder        []string // ids of services we actually spawned, in launch order
	shutdownRequested bool

	shutdownOnce sync.Once
}

// New validates the specs, orders them by dependency and returns a
// supervisor ready to Run. Cycle and unknown-dependency errors surface
// here, before any process is spawned.
func New(specs []ServiceSpec, options Options, logger logging.Logger) (*Supervisor, error) {
	if options.Launch == nil {
		return nil, errors.NewValidationError("launch function is required", nil)
	}
	if options.Probe == nil {
		return nil, errors.NewValidationError("probe function is required", nil)
	}
	if options.GracePeriod <= 0 {
		options.GracePeriod = DefaultGracePeriod
	}
	if options.MonitorInterval <= 0 {
		options.MonitorInterval = DefaultMonitorInterval
	}

	order, err := TopologicalOrder(specs)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		options: options,
		order:   order,
		logger:  logger,
		handles: make(map[string]*ServiceHandle),
	}, nil
}

// Run executes the whole lifecycle: launch all services in dependency
// order, open the dashboard, monitor until ctx is cancelled, then shut
// down in reverse start order. An operator interrupt is a clean exit
// (nil); launch and readiness failures are returned after rollback.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startAll(ctx); err != nil {
		s.Shutdown()
		if errors.IsCancelledError(err) {
			s.logger.Infof("Startup interrupted, all services stopped")
			return nil
		}
		return err
	}

	s.openDashboard()
	s.monitor(ctx)
	s.Shutdown()
	return nil
}

// startAll launches and probes each service sequentially in topological
// order, so a service never starts before its dependencies are Ready.
func (s *Supervisor) startAll(ctx context.Context) error {
	s.logger.Infof("Starting %d services in dependency order...", len(s.order))

	for _, spec := range s.order {
		if ctx.Err() != nil {
			return errors.NewCancelledError("startup cancelled", ctx.Err())
		}
		if err := s.startService(ctx, spec); err != nil {
			s.logger.Errorf("Failed to start service, id: %s, error: %v", spec.ID, err)
			return err
		}
	}

	s.logger.Infof("All services are ready")
	return nil
}

func (s *Supervisor) startService(ctx context.Context, spec ServiceSpec) error {
	// Invariant: every declared dependency is Ready before this launch.
	for _, dep := range spec.DependsOn {
		if s.StatusOf(dep) != StatusReady {
			return errors.NewInternalError("dependency is not ready", nil).
				WithContext("service_id", spec.ID).WithContext("dependency", dep)
		}
	}

	handle := &ServiceHandle{Spec: spec, Status: StatusPending}
	s.mutex.Lock()
	s.handles[spec.ID] = handle
	s.mutex.Unlock()

	if s.options.PreCheck != nil && s.options.PreCheck(ctx, spec) {
		s.logger.Infof("Service already answers its readiness check, not spawning, id: %s", spec.ID)
		return s.transitionLocked(handle, StatusReady, nil)
	}

	if err := s.transitionLocked(handle, StatusStarting, nil); err != nil {
		return err
	}

	s.logger.Infof("Launching service, id: %s", spec.ID)
	proc, err := s.options.Launch(ctx, spec)
	if err != nil {
		s.transitionLocked(handle, StatusFailed, err)
		return err
	}

	s.mutex.Lock()
	handle.Proc = proc
	handle.PID = proc.PID()
	handle.StartTime = time.Now()
	s.startOrder = append(s.startOrder, spec.ID)
	s.mutex.Unlock()

	if err := s.options.Probe(ctx, spec, proc.Exited()); err != nil {
		s.transitionLocked(handle, StatusFailed, err)
		return err
	}

	if err := s.transitionLocked(handle, StatusReady, nil); err != nil {
		return err
	}

	s.logger.Infof("Service is ready, id: %s, PID: %d", spec.ID, handle.PID)
	return nil
}

func (s *Supervisor) openDashboard() {
	if s.options.OpenDashboard == nil || s.options.DashboardURL == "" {
		return
	}
	if err := s.options.OpenDashboard(s.options.DashboardURL); err != nil {
		// The dashboard endpoints stay reachable either way
		s.logger.Warnf("Failed to open dashboard: %s, error: %v", s.options.DashboardURL, err)
		return
	}
	s.logger.Infof("Opened dashboard: %s", s.options.DashboardURL)
}

// monitor periodically checks that tracked processes are still alive and
// runs the status report hook. An unexpected exit is reported and the
// service left down; the remaining services keep running.
func (s *Supervisor) monitor(ctx context.Context) {
	ticker := time.NewTicker(s.options.MonitorInterval)
	defer ticker.Stop()

	s.logger.Infof("Monitoring services every %v, interrupt to stop", s.options.MonitorInterval)

	// First report right after startup, not one interval later.
	if s.options.StatusReport != nil {
		s.options.StatusReport(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkLiveness()
			if s.options.StatusReport != nil {
				s.options.StatusReport(ctx)
			}
		}
	}
}

func (s *Supervisor) checkLiveness() {
	for _, handle := range s.snapshot() {
		if handle.Status != StatusReady || handle.Proc == nil {
			continue
		}
		if handle.Proc.Alive() {
			continue
		}
		err := errors.NewUnexpectedExitError("service exited unexpectedly", nil).
			WithContext("service_id", handle.Spec.ID).WithContext("pid", handle.PID)
		s.logger.Errorf("%v", err)
		s.transitionLocked(handle, StatusFailed, err)
	}
}

// Shutdown terminates every spawned live process in reverse start order,
// with the configured grace period before a forced kill. It is idempotent:
// a second call is a no-op and no process is signaled twice.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mutex.Lock()
		s.shutdownRequested = true
		order := make([]string, len(s.startOrder))
		copy(order, s.startOrder)
		s.mutex.Unlock()

		s.logger.Infof("Shutting down, %d spawned services, reverse start order", len(order))

		collection := errors.NewErrorCollection()
		for i := len(order) - 1; i >= 0; i-- {
			handle := s.handle(order[i])
			if handle == nil || handle.Proc == nil {
				continue
			}

			if err := handle.Proc.Terminate(s.options.GracePeriod); err != nil {
				s.logger.Errorf("Shutdown of service escalated, id: %s, error: %v", handle.Spec.ID, err)
				collection.Add(err)
			}

			s.mutex.Lock()
			if handle.Status != StatusStopped {
				transition(handle, StatusStopped)
			}
			s.mutex.Unlock()

			s.logger.Infof("Service stopped, id: %s", handle.Spec.ID)
		}

		if collection.HasErrors() {
			s.logger.Errorf("Some services did not stop gracefully: %v", collection.Error())
		}
		s.logger.Infof("Shutdown complete")
	})
}

// ShutdownRequested reports whether shutdown has begun.
func (s *Supervisor) ShutdownRequested() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.shutdownRequested
}

// StatusOf returns the status of a service, or StatusPending when no
// launch attempt has been made yet.
func (s *Supervisor) StatusOf(id string) Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if handle, ok := s.handles[id]; ok {
		return handle.Status
	}
	return StatusPending
}

// Handles returns a point-in-time copy of all service handles.
func (s *Supervisor) Handles() map[string]ServiceHandle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make(map[string]ServiceHandle, len(s.handles))
	for id, handle := range s.handles {
		result[id] = *handle
	}
	return result
}

func (s *Supervisor) handle(id string) *ServiceHandle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.handles[id]
}

func (s *Supervisor) snapshot() []*ServiceHandle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make([]*ServiceHandle, 0, len(s.handles))
	for _, handle := range s.handles {
		result = append(result, handle)
	}
	return result
}

func (s *Supervisor) transitionLocked(handle *ServiceHandle, to Status, cause error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	handle.LastError = cause
	if err := transition(handle, to); err != nil {
		s.logger.Errorf("State transition rejected, id: %s, error: %v", handle.Spec.ID, err)
		return err
	}
	return nil
}
