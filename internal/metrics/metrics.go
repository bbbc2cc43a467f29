package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edvin/proxyctl/internal/command"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyctl_operations_total",
			Help: "Orchestration operations by kind and outcome",
		},
		[]string{"operation", "result"},
	)

	subprocessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxyctl_subprocess_duration_seconds",
			Help:    "Duration of external tool invocations",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"tool", "exit_code"},
	)

	dnsChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyctl_dns_checks_total",
			Help: "DNS policy gate checks by outcome",
		},
		[]string{"result"},
	)
)

// ObserveOperation counts one finished orchestration operation.
func ObserveOperation(operation string, success bool) {
	operationsTotal.WithLabelValues(operation, result(success)).Inc()
}

// ObserveDNSCheck counts one policy gate evaluation.
func ObserveDNSCheck(matched bool) {
	if matched {
		dnsChecksTotal.WithLabelValues("match").Inc()
		return
	}
	dnsChecksTotal.WithLabelValues("mismatch").Inc()
}

// RegisterDB exports connection pool statistics for db.
func RegisterDB(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}

// Runner wraps a command.Runner and records subprocess durations.
type Runner struct {
	Next command.Runner
}

func (r Runner) Run(ctx context.Context, cmd command.Command) (*command.Result, error) {
	start := time.Now()
	res, err := r.Next.Run(ctx, cmd)

	code := -1
	if res != nil {
		code = res.ExitCode
	}
	subprocessDuration.
		WithLabelValues(filepath.Base(cmd.Name), strconv.Itoa(code)).
		Observe(time.Since(start).Seconds())
	return res, err
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
