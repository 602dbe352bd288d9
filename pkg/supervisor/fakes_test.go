package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

// ===== SHARED TEST INFRASTRUCTURE =====

// recordingLogger captures log lines per level for assertions.
type recordingLogger struct {
	mutex sync.Mutex
	lines map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{lines: make(map[string][]string)}
}

func (l *recordingLogger) record(level, format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.lines[level] = append(l.lines[level], fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) { l.record("debug", format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})  { l.record("info", format, args...) }
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.record("warn", format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.record("error", format, args...) }

func (l *recordingLogger) contains(level, substr string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for _, line := range l.lines[level] {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

var _ logging.Logger = (*recordingLogger)(nil)

// fakeProcess counts termination signals and exposes a controllable exit.
type fakeProcess struct {
	pid     int
	done    chan struct{}
	signals int32
	once    sync.Once
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) Exited() <-chan struct{} { return p.done }

func (p *fakeProcess) Terminate(grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	atomic.AddInt32(&p.signals, 1)
	p.exit()
	return nil
}

func (p *fakeProcess) exit() {
	p.once.Do(func() { close(p.done) })
}

func (p *fakeProcess) signalCount() int32 {
	return atomic.LoadInt32(&p.signals)
}

// fakeLauncher records launch order and hands out fake processes.
type fakeLauncher struct {
	mutex     sync.Mutex
	order     []string
	processes map[string]*fakeProcess
	failFor   map[string]error
	nextPID   int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		processes: make(map[string]*fakeProcess),
		failFor:   make(map[string]error),
		nextPID:   1000,
	}
}

func (f *fakeLauncher) launch(ctx context.Context, spec ServiceSpec) (Process, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err, ok := f.failFor[spec.ID]; ok {
		return nil, err
	}
	f.order = append(f.order, spec.ID)
	f.nextPID++
	proc := newFakeProcess(f.nextPID)
	f.processes[spec.ID] = proc
	return proc, nil
}

func (f *fakeLauncher) launched() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	result := make([]string, len(f.order))
	copy(result, f.order)
	return result
}

func (f *fakeLauncher) process(id string) *fakeProcess {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.processes[id]
}

// fakeProber resolves per-service readiness outcomes.
type fakeProber struct {
	mutex   sync.Mutex
	failFor map[string]error
	blockOn map[string]bool // block until ctx cancelled, then return cancelled
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		failFor: make(map[string]error),
		blockOn: make(map[string]bool),
	}
}

func (f *fakeProber) probe(ctx context.Context, spec ServiceSpec, exited <-chan struct{}) error {
	f.mutex.Lock()
	err, fails := f.failFor[spec.ID]
	blocks := f.blockOn[spec.ID]
	f.mutex.Unlock()

	if blocks {
		select {
		case <-ctx.Done():
			return errors.NewCancelledError("readiness wait cancelled", ctx.Err()).WithContext("id", spec.ID)
		case <-exited:
			return errors.NewLaunchError("process exited before becoming ready", nil).WithContext("id", spec.ID)
		}
	}
	if fails {
		return err
	}
	return nil
}

func spec(id string, deps ...string) ServiceSpec {
	return ServiceSpec{ID: id, DependsOn: deps}
}
