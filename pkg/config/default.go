package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/monstack/monstack/pkg/dashboard"
	"github.com/monstack/monstack/pkg/probe"
)

// Default environment overrides for the built-in stack ports.
const (
	EnvExporterPort     = "EXPORTER_PORT"
	EnvPrometheusPort   = "PROMETHEUS_PORT"
	EnvAlertmanagerPort = "ALERTMANAGER_PORT"
)

// Default returns the built-in monitoring stack configuration: a host
// metrics exporter, Alertmanager, and Prometheus depending on both, with
// the static HTML dashboard. Ports may be overridden via environment
// variables.
func Default() *StackConfig {
	exporterName, exporterPort, queries := platformExporter()
	exporterPort = envPort(EnvExporterPort, exporterPort)
	prometheusPort := envPort(EnvPrometheusPort, 9090)
	alertmanagerPort := envPort(EnvAlertmanagerPort, 9093)

	config := &StackConfig{
		Stack: StackOptions{
			BaseDir:   ".",
			Dashboard: "dashboard.html",
		},
		Services: []ServiceConfig{
			{
				ID: "exporter",
				Executable: ExecutableConfig{
					PathPatterns: []string{exporterName + "-*/" + exporterName, exporterName},
					Name:         exporterName,
				},
				Readiness: probe.Config{
					Type: probe.CheckTypeHTTP,
					HTTP: probe.HTTPCheckConfig{URL: localURL(exporterPort, "/metrics")},
				},
			},
			{
				ID: "alertmanager",
				Executable: ExecutableConfig{
					PathPatterns: []string{"alertmanager-*/alertmanager", "alertmanager"},
					Name:         "alertmanager",
				},
				ConfigFiles: []ConfigFileRef{
					{Path: "alertmanager.yml", Flag: "--config.file"},
				},
				Readiness: probe.Config{
					Type: probe.CheckTypeHTTP,
					HTTP: probe.HTTPCheckConfig{URL: localURL(alertmanagerPort, "/-/ready")},
				},
			},
			{
				ID: "prometheus",
				Executable: ExecutableConfig{
					PathPatterns: []string{"prometheus-*/prometheus", "prometheus"},
					Name:         "prometheus",
				},
				ConfigFiles: []ConfigFileRef{
					{Path: "prometheus.yml", Flag: "--config.file"},
					// Referenced from prometheus.yml itself, so only
					// existence-checked, no flag passed.
					{Path: "alert-rules.yml"},
				},
				Readiness: probe.Config{
					Type: probe.CheckTypeHTTP,
					HTTP: probe.HTTPCheckConfig{URL: localURL(prometheusPort, "/-/ready")},
				},
				DependsOn: []string{"exporter", "alertmanager"},
			},
		},
		Status: StatusConfig{
			PrometheusURL: localURL(prometheusPort, ""),
			Queries:       queries,
		},
	}

	setConfigDefaults(config)
	return config
}

func platformExporter() (name string, port int, queries []dashboard.MetricQuery) {
	if runtime.GOOS == "windows" {
		return "windows_exporter", 9182, []dashboard.MetricQuery{
			{Name: "CPU Usage", Expr: `100 - (avg(rate(windows_cpu_time_total{mode="idle"}[1m])) * 100)`},
			{Name: "Memory Usage", Expr: `100 - ((windows_memory_available_bytes / windows_memory_physical_total_bytes) * 100)`},
			{Name: "Disk Usage", Expr: `100 - ((windows_logical_disk_free_bytes{volume="C:"} / windows_logical_disk_size_bytes{volume="C:"}) * 100)`},
		}
	}
	return "node_exporter", 9100, []dashboard.MetricQuery{
		{Name: "CPU Usage", Expr: `100 - (avg(rate(node_cpu_seconds_total{mode="idle"}[1m])) * 100)`},
		{Name: "Memory Usage", Expr: `100 - ((node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes) * 100)`},
		{Name: "Disk Usage", Expr: `100 - ((node_filesystem_avail_bytes{mountpoint="/"} / node_filesystem_size_bytes{mountpoint="/"}) * 100)`},
	}
}

func envPort(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return fallback
	}
	return port
}

func localURL(port int, path string) string {
	return fmt.Sprintf("http://localhost:%d%s", port, path)
}
