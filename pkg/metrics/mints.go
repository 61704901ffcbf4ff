package metrics

import "github.com/prometheus/client_golang/prometheus"

// MintMetrics counts mint settlement outcomes and inbound payment events.
type MintMetrics struct {
	minted        *prometheus.CounterVec
	mintFailures  *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
}

// NewMintMetrics registers the mint pipeline metrics on the provided registerer.
func NewMintMetrics(reg prometheus.Registerer) *MintMetrics {
	if reg == nil {
		return &MintMetrics{}
	}
	minted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mints_total",
		Help: "Successfully minted orders.",
	}, []string{"fighter"})
	mintFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_failures_total",
		Help: "Finalize attempts that failed, by reason code.",
	}, []string{"reason"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Inbound payment processor events, by type.",
	}, []string{"type"})
	reg.MustRegister(minted, mintFailures, webhookEvents)
	return &MintMetrics{
		minted:        minted,
		mintFailures:  mintFailures,
		webhookEvents: webhookEvents,
	}
}

// IncMinted records a successful mint for the given fighter.
func (m *MintMetrics) IncMinted(fighter string) {
	if m == nil || m.minted == nil {
		return
	}
	m.minted.WithLabelValues(normalizeLabel(fighter)).Inc()
}

// IncMintFailure records a failed finalize by reason code.
func (m *MintMetrics) IncMintFailure(reason string) {
	if m == nil || m.mintFailures == nil {
		return
	}
	m.mintFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncWebhookEvent records one inbound payment event by type.
func (m *MintMetrics) IncWebhookEvent(eventType string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType)).Inc()
}
