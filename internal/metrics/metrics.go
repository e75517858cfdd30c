// Package metrics holds the Prometheus collectors for the intake flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. The zero value is not usable; use New.
type Metrics struct {
	otpRequests      *prometheus.CounterVec
	otpVerifications *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	wizardActions    *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	activeForms      prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		otpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_otp_requests_total",
			Help: "OTP requests by result",
		}, []string{"result"}),
		otpVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_otp_verifications_total",
			Help: "OTP verification attempts by result",
		}, []string{"result"}),
		dispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booking_otp_dispatch_duration_seconds",
			Help:    "Duration of messaging dispatch calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"provider"}),
		wizardActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_wizard_actions_total",
			Help: "Wizard navigation actions by action and result",
		}, []string{"action", "result"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_submissions_total",
			Help: "Booking submissions by result",
		}, []string{"result"}),
		activeForms: f.NewGauge(prometheus.GaugeOpts{
			Name: "booking_active_forms",
			Help: "Form sessions currently held in memory",
		}),
	}
}

func (m *Metrics) OTPRequested(result string) { m.otpRequests.WithLabelValues(result).Inc() }

func (m *Metrics) OTPVerified(result string) { m.otpVerifications.WithLabelValues(result).Inc() }

// ObserveDispatch records how long provider took to accept or reject a message.
func (m *Metrics) ObserveDispatch(provider string, d time.Duration) {
	m.dispatchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) WizardAction(action, result string) {
	m.wizardActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Submission(result string) { m.submissions.WithLabelValues(result).Inc() }

func (m *Metrics) SetActiveForms(n int) { m.activeForms.Set(float64(n)) }
