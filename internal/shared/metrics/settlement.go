package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement agrupa os coletores do motor de liquidação
type Settlement struct {
	Outcomes      *prometheus.CounterVec
	QuoteRequests *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
}

// NewSettlement cria e registra os coletores no registerer informado
func NewSettlement(reg prometheus.Registerer) *Settlement {
	m := &Settlement{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_settlements_total",
			Help: "resultados de liquidação por status",
		}, []string{"status"}),
		QuoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdata_requests_total",
			Help: "requisições ao provedor de cotações por resultado",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_sweep_duration_seconds",
			Help:    "duração de cada página do sweep",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.QuoteRequests, m.SweepDuration)
	}
	return m
}

func (m *Settlement) ObserveOutcome(status string) {
	m.Outcomes.WithLabelValues(status).Inc()
}

func (m *Settlement) ObserveQuoteRequest(outcome string) {
	m.QuoteRequests.WithLabelValues(outcome).Inc()
}

func (m *Settlement) ObserveSweep(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}
