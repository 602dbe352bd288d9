package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeGRPC CheckType = "grpc"
)

type HTTPCheckConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type TCPCheckConfig struct {
	Address string `yaml:"address"`
}

type GRPCCheckConfig struct {
	Address string `yaml:"address"`
	Service string `yaml:"service,omitempty"`
}

// Config describes one readiness check and its polling bounds.
type Config struct {
	Type CheckType `yaml:"type"`

	HTTP HTTPCheckConfig `yaml:"http,omitempty"`
	TCP  TCPCheckConfig  `yaml:"tcp,omitempty"`
	GRPC GRPCCheckConfig `yaml:"grpc,omitempty"`

	// Interval between polls, Timeout per attempt, MaxWait for the
	// whole readiness wait. All bounded; defaults applied by Validate
	// callers via ApplyDefaults.
	Interval time.Duration `yaml:"interval,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	MaxWait  time.Duration `yaml:"max_wait,omitempty"`
}

const (
	DefaultInterval = 1 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultMaxWait  = 60 * time.Second
)

// ApplyDefaults fills unset polling bounds.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
}

// Validate checks the readiness configuration.
func Validate(config Config) error {
	switch config.Type {
	case CheckTypeHTTP:
		if config.HTTP.URL == "" {
			return errors.NewValidationError("HTTP readiness check requires a URL", nil)
		}
	case CheckTypeTCP:
		if config.TCP.Address == "" {
			return errors.NewValidationError("TCP readiness check requires an address", nil)
		}
		if _, _, err := net.SplitHostPort(config.TCP.Address); err != nil {
			return errors.NewValidationError("TCP readiness address must be host:port", err)
		}
	case CheckTypeGRPC:
		if config.GRPC.Address == "" {
			return errors.NewValidationError("gRPC readiness check requires an address", nil)
		}
		if _, _, err := net.SplitHostPort(config.GRPC.Address); err != nil {
			return errors.NewValidationError("gRPC readiness address must be host:port", err)
		}
	default:
		return errors.NewValidationError("unsupported readiness check type: "+string(config.Type), nil)
	}

	if config.Interval < 0 || config.Timeout < 0 || config.MaxWait < 0 {
		return errors.NewValidationError("readiness polling bounds cannot be negative", nil)
	}

	return nil
}

// Check performs a single readiness attempt. The message explains the
// outcome either way.
func Check(ctx context.Context, config Config) (bool, string) {
	switch config.Type {
	case CheckTypeHTTP:
		return checkHTTP(ctx, config)
	case CheckTypeTCP:
		return checkTCP(config)
	case CheckTypeGRPC:
		return checkGRPC(ctx, config)
	default:
		return false, "unknown readiness check type: " + string(config.Type)
	}
}

// WaitReady polls the readiness check at the configured interval until it
// succeeds, the process exits (exited closed), the max wait elapses, or ctx
// is cancelled. Cancellation is observed within one interval because every
// poll cycle selects on ctx.
func WaitReady(ctx context.Context, config Config, exited <-chan struct{}, id string, logger logging.Logger) error {
	config.ApplyDefaults()
	if err := Validate(config); err != nil {
		return errors.NewValidationError("invalid readiness check configuration", err).WithContext("id", id)
	}

	logger.Infof("Waiting for readiness, id: %s, type: %s, interval: %v, max_wait: %v",
		id, config.Type, config.Interval, config.MaxWait)

	deadline := time.NewTimer(config.MaxWait)
	defer deadline.Stop()

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	attempt := 0
	var lastMessage string
	for {
		attempt++
		ok, message := Check(ctx, config)
		if ok {
			logger.Infof("Service is ready, id: %s, attempts: %d", id, attempt)
			return nil
		}
		lastMessage = message
		logger.Debugf("Readiness check failed, id: %s, attempt: %d, message: %s", id, attempt, message)

		select {
		case <-ctx.Done():
			return errors.NewCancelledError("readiness wait cancelled", ctx.Err()).WithContext("id", id)
		case <-exited:
			return errors.NewLaunchError("process exited before becoming ready", nil).
				WithContext("id", id).WithContext("last_check", lastMessage)
		case <-deadline.C:
			return errors.NewReadinessTimeoutError("service did not become ready within max wait", nil).
				WithContext("id", id).WithContext("max_wait", config.MaxWait.String()).
				WithContext("last_check", lastMessage)
		case <-ticker.C:
		}
	}
}

func checkHTTP(ctx context.Context, config Config) (bool, string) {
	client := &http.Client{
		Timeout: config.Timeout,
	}

	method := config.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, config.HTTP.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("failed to create HTTP request: %v", err)
	}
	for key, value := range config.HTTP.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, fmt.Sprintf("HTTP check passed: %s", resp.Status)
	}
	return false, fmt.Sprintf("HTTP check failed: %s", resp.Status)
}

func checkTCP(config Config) (bool, string) {
	conn, err := net.DialTimeout("tcp", config.TCP.Address, config.Timeout)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	defer conn.Close()

	return true, "TCP connection successful to " + config.TCP.Address
}

// checkGRPC uses the standard gRPC health checking protocol
// (grpc.health.v1.Health/Check) rather than a plain TCP dial.
func checkGRPC(ctx context.Context, config Config) (bool, string) {
	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, config.GRPC.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, fmt.Sprintf("gRPC dial failed: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(dialCtx, &healthpb.HealthCheckRequest{
		Service: config.GRPC.Service,
	})
	if err != nil {
		return false, fmt.Sprintf("gRPC health check failed: %v", err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return false, fmt.Sprintf("gRPC health status: %s", resp.GetStatus())
	}
	return true, "gRPC health check passed for " + config.GRPC.Address
}
