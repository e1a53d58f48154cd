// Package metrics exposes Prometheus counters for the DTE engine.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics captures low-cardinality lifecycle and scheduler counters.
type EngineMetrics struct {
	documentsCreated   *prometheus.CounterVec
	transmissions      *prometheus.CounterVec
	templateRuns       *prometheus.CounterVec
	templatesSuspended prometheus.Counter
	schedulerTicks     prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the process-wide engine metrics, registering them on first
// use.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

// EngineWithConfig is like Engine but applies the given configuration on the
// first call.
func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest clears the singleton between test registries.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

// Config carries the constant labels applied to every metric.
type Config struct {
	ServiceName string
	Environment string
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "dte_engine"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	documentsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "dte_documents_created_total",
			Help:        "Total documents created by DTE type.",
			ConstLabels: constLabels,
		},
		[]string{"document_type"},
	)

	transmissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "dte_transmissions_total",
			Help:        "Total transmission attempts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // accepted | rejected | error
	)

	templateRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "dte_template_runs_total",
			Help:        "Total recurring-template executions by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"}, // success | failure
	)

	templatesSuspended := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "dte_templates_suspended_total",
			Help:        "Templates suspended after hitting the failure threshold.",
			ConstLabels: constLabels,
		},
	)

	schedulerTicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "dte_scheduler_ticks_total",
			Help:        "Recurring-invoice scheduler ticks executed.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		documentsCreated,
		transmissions,
		templateRuns,
		templatesSuspended,
		schedulerTicks,
	)

	return &EngineMetrics{
		documentsCreated:   documentsCreated,
		transmissions:      transmissions,
		templateRuns:       templateRuns,
		templatesSuspended: templatesSuspended,
		schedulerTicks:     schedulerTicks,
	}
}

func (m *EngineMetrics) IncDocumentCreated(documentType string) {
	if m == nil {
		return
	}
	m.documentsCreated.WithLabelValues(documentType).Inc()
}

func (m *EngineMetrics) IncTransmission(result string) {
	if m == nil {
		return
	}
	m.transmissions.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) IncTemplateRun(outcome string) {
	if m == nil {
		return
	}
	m.templateRuns.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) IncTemplateSuspended() {
	if m == nil {
		return
	}
	m.templatesSuspended.Inc()
}

func (m *EngineMetrics) IncSchedulerTick() {
	if m == nil {
		return
	}
	m.schedulerTicks.Inc()
}
