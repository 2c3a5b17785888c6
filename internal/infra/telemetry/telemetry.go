package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics counts auth flow outcomes. A nil *AuthMetrics is a valid no-op.
type AuthMetrics struct {
	otpIssued     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	logouts       *prometheus.CounterVec
}

// NewAuthMetrics registers the auth counters on reg (the default registerer when nil).
// Registering twice on the same registry reuses the existing collectors.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AuthMetrics{
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "otp_issued_total",
			Help:      "One-time codes issued, by account kind, channel and trigger.",
		}, []string{"kind", "channel", "trigger"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by account kind, channel and outcome.",
		}, []string{"kind", "channel", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by account kind and result.",
		}, []string{"kind", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by account kind and result.",
		}, []string{"kind", "result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logouts_total",
			Help:      "Logouts by account kind.",
		}, []string{"kind"}),
	}

	var err error
	if m.otpIssued, err = Register(reg, m.otpIssued); err != nil {
		return nil, err
	}
	if m.verifications, err = Register(reg, m.verifications); err != nil {
		return nil, err
	}
	if m.logins, err = Register(reg, m.logins); err != nil {
		return nil, err
	}
	if m.refreshes, err = Register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.logouts, err = Register(reg, m.logouts); err != nil {
		return nil, err
	}

	return m, nil
}

// Register adds collector to reg. If an equal collector is already registered, the existing one
// is returned so that several servers in one process can share a registry.
func Register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return collector, fmt.Errorf("register collector: %w", err)
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}
	return existing, nil
}

func (m *AuthMetrics) OTPIssued(kind, channel, trigger string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(kind, channel, trigger).Inc()
}

func (m *AuthMetrics) OTPVerification(kind, channel, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(kind, channel, outcome).Inc()
}

func (m *AuthMetrics) Login(kind, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(kind, result).Inc()
}

func (m *AuthMetrics) Refresh(kind, result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(kind, result).Inc()
}

func (m *AuthMetrics) Logout(kind string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(kind).Inc()
}
