package supervisor

import (
	"time"

	"github.com/monstack/monstack/pkg/probe"
	"github.com/monstack/monstack/pkg/process"
)

// ServiceSpec is the immutable descriptor of one managed service. It is
// created by the config resolver and never mutated afterwards.
type ServiceSpec struct {
	ID        string
	Execution process.ExecutionConfig
	Readiness probe.Config
	DependsOn []string
	LogPath   string
}

// Status is the lifecycle state of a launched service.
type Status string

const (
	StatusPending  Status = "pending"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
	StatusStopped  Status = "stopped"
)

// Process is the runtime handle of a spawned service process.
// *process.Child implements it; tests substitute fakes.
type Process interface {
	PID() int
	Alive() bool
	Exited() <-chan struct{}
	Terminate(grace time.Duration) error
}

// ServiceHandle is the runtime state for a launched service. A handle
// exists if and only if a launch attempt has been made for the service.
// All mutation goes through the supervisor's mutex.
type ServiceHandle struct {
	Spec      ServiceSpec
	Proc      Process // nil when the service was found already running
	PID       int
	StartTime time.Time
	Status    Status
	LastError error
}
