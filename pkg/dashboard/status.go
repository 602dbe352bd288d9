package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"github.com/monstack/monstack/pkg/errors"
	"github.com/monstack/monstack/pkg/logging"
)

// MetricQuery names one PromQL instant query shown in the status summary.
type MetricQuery struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Alert is one active alert as reported by the time-series server.
type Alert struct {
	Name     string
	State    string
	Severity string
}

// StatusReporter fetches current metric values and active alerts from the
// Prometheus HTTP API and prints a colored console summary. Every failure
// is reported inline and never propagated; the stack stays up regardless.
type StatusReporter struct {
	prometheusURL string
	queries       []MetricQuery
	client        *http.Client
	logger        logging.Logger
}

func NewStatusReporter(prometheusURL string, queries []MetricQuery, logger logging.Logger) *StatusReporter {
	return &StatusReporter{
		prometheusURL: prometheusURL,
		queries:       queries,
		client:        &http.Client{Timeout: 5 * time.Second},
		logger:        logger,
	}
}

// QueryInstant evaluates one PromQL expression and returns the value of
// the first result sample.
func (r *StatusReporter) QueryInstant(ctx context.Context, expr string) (float64, error) {
	endpoint := r.prometheusURL + "/api/v1/query?query=" + url.QueryEscape(expr)

	body, err := r.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	parsed := gjson.ParseBytes(body)
	if parsed.Get("status").String() != "success" {
		return 0, errors.NewNetworkError("query failed: "+parsed.Get("error").String(), nil).
			WithContext("expr", expr)
	}

	value := parsed.Get("data.result.0.value.1")
	if !value.Exists() {
		return 0, errors.NewNetworkError("query returned no samples", nil).WithContext("expr", expr)
	}

	f, err := strconv.ParseFloat(value.String(), 64)
	if err != nil {
		return 0, errors.NewInternalError("malformed sample value", err).WithContext("expr", expr)
	}
	return f, nil
}

// ActiveAlerts returns the alerts currently firing or pending.
func (r *StatusReporter) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	body, err := r.get(ctx, r.prometheusURL+"/api/v1/alerts")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if parsed.Get("status").String() != "success" {
		return nil, errors.NewNetworkError("alerts query failed: "+parsed.Get("error").String(), nil)
	}

	var alerts []Alert
	parsed.Get("data.alerts").ForEach(func(_, item gjson.Result) bool {
		alert := Alert{
			Name:     item.Get("labels.alertname").String(),
			State:    item.Get("state").String(),
			Severity: item.Get("labels.severity").String(),
		}
		if alert.Severity == "" {
			alert.Severity = "unknown"
		}
		alerts = append(alerts, alert)
		return true
	})
	return alerts, nil
}

func (r *StatusReporter) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to create request", err).WithContext("endpoint", endpoint)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("request failed", err).WithContext("endpoint", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError("unexpected response status: "+resp.Status, nil).
			WithContext("endpoint", endpoint)
	}

	return io.ReadAll(resp.Body)
}

// Report prints the metric and alert summary to stdout.
func (r *StatusReporter) Report(ctx context.Context) {
	header := color.New(color.FgMagenta, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println()
	fmt.Println(header("CURRENT SYSTEM METRICS"))
	for _, q := range r.queries {
		value, err := r.QueryInstant(ctx, q.Expr)
		if err != nil {
			fmt.Printf("  %-16s: %s\n", q.Name, yellow("unable to fetch"))
			r.logger.Debugf("Metric query failed, name: %s, error: %v", q.Name, err)
			continue
		}
		fmt.Printf("  %-16s: %.1f%%\n", q.Name, value)
	}

	fmt.Println(header("ALERT STATUS"))
	alerts, err := r.ActiveAlerts(ctx)
	if err != nil {
		fmt.Printf("  %s\n", yellow("unable to fetch alerts"))
		r.logger.Debugf("Alert query failed, error: %v", err)
		return
	}
	if len(alerts) == 0 {
		fmt.Printf("  %s\n", green("no active alerts"))
		return
	}
	for _, alert := range alerts {
		line := fmt.Sprintf("  %-20s: %s (%s)", alert.Name, alert.State, alert.Severity)
		if alert.State == "firing" {
			fmt.Println(red(line))
		} else {
			fmt.Println(yellow(line))
		}
	}
}
