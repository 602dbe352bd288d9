package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/monstack/monstack/pkg/config"
	"github.com/monstack/monstack/pkg/dashboard"
	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
	"github.com/monstack/monstack/pkg/probe"
	"github.com/monstack/monstack/pkg/process"
	"github.com/monstack/monstack/pkg/supervisor"
)

type flagOptions struct {
	Config      string        `long:"config" short:"c" description:"path to a stack configuration file (built-in stack when omitted)"`
	BaseDir     string        `long:"base-dir" description:"directory holding service executables and config files"`
	LogDir      string        `long:"log-dir" description:"directory for per-service log files (default: <base-dir>/logs)"`
	NoBrowser   bool          `long:"no-browser" description:"do not open the dashboard in a browser"`
	RunDuration time.Duration `long:"run-duration" description:"stop the stack after this duration (default: run until interrupted)"`
	LogLevel    string        `long:"log-level" default:"info" description:"log level: debug, info, warn, error"`
}

// Exit codes by failure category.
const (
	exitOK            = 0
	exitOther         = 1
	exitConfiguration = 2
	exitCycle         = 3
	exitLaunch        = 4
	exitReadiness     = 5
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch errors.TypeOf(err) {
	case errors.ErrorTypeConfiguration, errors.ErrorTypeValidation:
		return exitConfiguration
	case errors.ErrorTypeDependencyCycle:
		return exitCycle
	case errors.ErrorTypeLaunch:
		return exitLaunch
	case errors.ErrorTypeReadinessTimeout:
		return exitReadiness
	case errors.ErrorTypeCancelled:
		return exitOK
	default:
		return exitOther
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return exitOK
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		return exitConfiguration
	}

	logger, err := logging.NewZapLogger(opts.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		return exitConfiguration
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.RunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.RunDuration)
		defer cancel()
	}

	err = runStack(ctx, opts, logger)
	if err != nil {
		logger.Errorf("Stack failed: %v", err)
	}
	return exitCodeFor(err)
}

func runStack(ctx context.Context, opts flagOptions, logger logging.Logger) error {
	stackConfig, err := loadStackConfig(opts)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(stackConfig); err != nil {
		return err
	}

	specs, err := config.Resolve(stackConfig, logging.NewPrefixLogger("module: config , ", logger))
	if err != nil {
		return err
	}

	options := supervisor.Options{
		GracePeriod:     stackConfig.Stack.GracePeriod,
		MonitorInterval: stackConfig.Stack.MonitorInterval,
		Launch:          launchService(logger),
		Probe:           probeService(logger),
		PreCheck: func(ctx context.Context, spec supervisor.ServiceSpec) bool {
			ok, _ := probe.Check(ctx, spec.Readiness)
			return ok
		},
	}

	if stackConfig.Stack.Dashboard != "" && !opts.NoBrowser && *stackConfig.Stack.OpenDashboard {
		url, err := dashboard.FileURL(resolveDashboardPath(stackConfig))
		if err != nil {
			return err
		}
		options.DashboardURL = url
		options.OpenDashboard = dashboard.Open
	}

	if stackConfig.Status.PrometheusURL != "" {
		reporter := dashboard.NewStatusReporter(
			stackConfig.Status.PrometheusURL,
			stackConfig.Status.Queries,
			logging.NewPrefixLogger("module: status , ", logger))
		options.StatusReport = reporter.Report
	}

	master, err := supervisor.New(specs, options, logging.NewPrefixLogger("module: supervisor , ", logger))
	if err != nil {
		return err
	}
	return master.Run(ctx)
}

func loadStackConfig(opts flagOptions) (*config.StackConfig, error) {
	var stackConfig *config.StackConfig
	if opts.Config != "" {
		loaded, err := config.LoadConfigFromFile(opts.Config)
		if err != nil {
			return nil, err
		}
		stackConfig = loaded
	} else {
		stackConfig = config.Default()
	}

	// Command line overrides beat the file.
	if opts.BaseDir != "" {
		stackConfig.Stack.BaseDir = opts.BaseDir
	}
	if opts.LogDir != "" {
		stackConfig.Stack.LogDir = opts.LogDir
	}
	return stackConfig, nil
}

func resolveDashboardPath(stackConfig *config.StackConfig) string {
	path := stackConfig.Stack.Dashboard
	if !filepath.IsAbs(path) {
		path = filepath.Join(stackConfig.Stack.BaseDir, path)
	}
	return path
}

func launchService(logger logging.Logger) supervisor.LaunchFunc {
	return func(ctx context.Context, spec supervisor.ServiceSpec) (supervisor.Process, error) {
		child, err := process.Launch(ctx, spec.Execution, spec.ID, spec.LogPath,
			logging.NewPrefixLogger("module: process , ", logger))
		if err != nil {
			return nil, err
		}
		return child, nil
	}
}

func probeService(logger logging.Logger) supervisor.ProbeFunc {
	return func(ctx context.Context, spec supervisor.ServiceSpec, exited <-chan struct{}) error {
		return probe.WaitReady(ctx, spec.Readiness, exited, spec.ID,
			logging.NewPrefixLogger("module: probe , ", logger))
	}
}
