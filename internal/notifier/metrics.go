package notifier

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/certwatch/pkg/models"
)

// Metrics tracks notification outcomes. Each instance owns its own set so
// tests do not share counters; the app registers the set for /metrics.
type Metrics struct {
	set     *metrics.Set
	lastRun *metrics.Gauge
	runTime *metrics.Summary
}

func NewMetrics() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:     set,
		lastRun: set.NewGauge("certwatch_notification_last_run_timestamp_seconds", nil),
		runTime: set.NewSummary("certwatch_notification_run_duration_seconds"),
	}
}

// Set returns the underlying metrics set.
func (m *Metrics) Set() *metrics.Set {
	return m.set
}

func (m *Metrics) recordOutcome(outcome Outcome) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`certwatch_notifications_total{outcome=%q}`, outcome)).Inc()
}

func (m *Metrics) recordEmail(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`certwatch_emails_sent_total{status=%q}`, status)).Inc()
}

func (m *Metrics) recordRun(triggeredBy models.TriggeredBy, started, finished time.Time, systemic bool) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`certwatch_notification_runs_total{triggered_by=%q}`, triggeredBy)).Inc()
	if systemic {
		m.set.GetOrCreateCounter(`certwatch_notification_run_errors_total`).Inc()
	}
	m.runTime.Update(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}
