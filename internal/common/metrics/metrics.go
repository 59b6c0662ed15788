// internal/common/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WizardStepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vsme_wizard_step_transitions_total",
			Help: "Total number of wizard step changes",
		},
		[]string{"from", "to"},
	)

	WizardValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vsme_wizard_validation_failures_total",
			Help: "Total number of failed step validations",
		},
		[]string{"step"},
	)

	WizardSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vsme_wizard_submissions_total",
			Help: "Total number of report submissions by outcome",
		},
		[]string{"outcome"},
	)

	WizardSubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vsme_wizard_submission_duration_seconds",
			Help:    "Duration of report submissions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	WizardSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vsme_wizard_sessions_active",
			Help: "Number of wizard sessions held in memory",
		},
	)

	SubmissionSinkResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vsme_submission_sink_results_total",
			Help: "Total number of submission sink calls by sink and status",
		},
		[]string{"sink", "status"},
	)
)

// WizardRecorder reports form engine events to Prometheus.
type WizardRecorder struct{}

func NewWizardRecorder() *WizardRecorder {
	return &WizardRecorder{}
}

func (WizardRecorder) StepChanged(from, to int) {
	WizardStepTransitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
}

func (WizardRecorder) ValidationFailed(step, _ int) {
	WizardValidationFailures.WithLabelValues(stepLabel(step)).Inc()
}

func (WizardRecorder) SubmissionCompleted(outcome string, duration time.Duration) {
	WizardSubmissions.WithLabelValues(outcome).Inc()
	WizardSubmissionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordSink counts one submission sink call.
func RecordSink(sink string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	SubmissionSinkResults.WithLabelValues(sink, status).Inc()
}

func stepLabel(step int) string {
	if step == 0 {
		return "all"
	}
	return strconv.Itoa(step)
}
