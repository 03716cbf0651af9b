package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the provider.
type Metrics struct {
	AuthorizeRequests *prometheus.CounterVec
	Logins            *prometheus.CounterVec
	TokensIssued      *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics against the given registerer; tests pass a
// fresh registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthorizeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oidcd_authorize_requests_total",
			Help: "Authorization requests by outcome (ok, client_error, internal_error).",
		}, []string{"outcome"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oidcd_logins_total",
			Help: "Login attempts by outcome (success, rejected, not_found, internal_error).",
		}, []string{"outcome"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oidcd_tokens_issued_total",
			Help: "ID tokens issued by flow (code, implicit, exchange).",
		}, []string{"flow"}),
	}
}

func (m *Metrics) IncAuthorize(outcome string) {
	m.AuthorizeRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTokenIssued(flow string) {
	m.TokensIssued.WithLabelValues(flow).Inc()
}
