// Package metrics собирает счётчики запуска лимитера и отправляет их в Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mmeshcher/load-velocity/internal/model"
)

// Recorder хранит метрики одного запуска в собственном реестре.
type Recorder struct {
	registry       *prometheus.Registry
	decisions      *prometheus.CounterVec
	malformed      prometheus.Counter
	acceptedAmount prometheus.Counter
	runDuration    prometheus.Gauge
}

// NewRecorder создаёт Recorder и регистрирует метрики.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velocity_decisions_total",
			Help: "Load decisions, labeled by reason",
		}, []string{"reason"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velocity_malformed_instructions_total",
			Help: "Input records skipped as malformed",
		}),
		acceptedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velocity_accepted_amount_total",
			Help: "Sum of accepted load amounts",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "velocity_run_duration_seconds",
			Help: "Duration of the last run",
		}),
	}

	r.registry.MustRegister(r.decisions, r.malformed, r.acceptedAmount, r.runDuration)
	return r
}

// Registry возвращает реестр метрик.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveDecision учитывает решение по пополнению.
func (r *Recorder) ObserveDecision(load model.Load, d model.Decision) {
	r.decisions.WithLabelValues(string(d.Reason)).Inc()
	if d.Accepted {
		r.acceptedAmount.Add(load.Amount.InexactFloat64())
	}
}

// ObserveMalformed учитывает пропущенную запись.
func (r *Recorder) ObserveMalformed() {
	r.malformed.Inc()
}

// ObserveRun фиксирует длительность запуска.
func (r *Recorder) ObserveRun(d time.Duration) {
	r.runDuration.Set(d.Seconds())
}

// Push отправляет метрики в Pushgateway под указанным именем задания.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
