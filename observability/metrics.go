package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"paywall/core/events"
	"paywall/native/paywall"
)

// PaywallMetrics tracks settlement outcomes, value flow and the event
// pipeline. It satisfies paywall.Observer.
type PaywallMetrics struct {
	purchases       *prometheus.CounterVec
	volume          *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	events          *prometheus.CounterVec
	dropped         prometheus.Counter
	metadata        *prometheus.CounterVec
	metadataPending prometheus.Gauge
}

// NewPaywallMetrics registers the settlement collectors on reg.
func NewPaywallMetrics(reg prometheus.Registerer) *PaywallMetrics {
	m := &PaywallMetrics{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "settlement",
			Name:      "purchases_total",
			Help:      "Settled purchases segmented by whether a referrer was paid.",
		}, []string{"referrer"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "settlement",
			Name:      "amount_total",
			Help:      "Smallest-unit value moved by settlement segmented by payee.",
		}, []string{"payee"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "settlement",
			Name:      "rejections_total",
			Help:      "Rejected purchases segmented by error class.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Committed events segmented by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events discarded because a subscriber fell behind.",
		}),
		metadata: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywall",
			Subsystem: "metadata",
			Name:      "registrations_total",
			Help:      "Credential metadata registrations segmented by outcome.",
		}, []string{"outcome"}),
		metadataPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paywall",
			Subsystem: "metadata",
			Name:      "pending",
			Help:      "Metadata intents waiting for registration at the last poll.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.purchases, m.volume, m.rejections, m.events, m.dropped, m.metadata, m.metadataPending)
	}
	return m
}

// PurchaseSettled implements paywall.Observer.
func (m *PaywallMetrics) PurchaseSettled(split paywall.Split) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(strconv.FormatBool(split.ReferrerFee > 0)).Inc()
	m.volume.WithLabelValues("creator").Add(float64(split.CreatorAmount))
	m.volume.WithLabelValues("treasury").Add(float64(split.ProtocolFee))
	m.volume.WithLabelValues("referrer").Add(float64(split.ReferrerFee))
}

// PurchaseRejected implements paywall.Observer.
func (m *PaywallMetrics) PurchaseRejected(kind paywall.Kind) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind.String()).Inc()
}

// RecordEvent counts a committed event of the given type.
func (m *PaywallMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Emit implements events.Emitter so the collector can sit beside the bus.
func (m *PaywallMetrics) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.RecordEvent(evt.EventType())
}

// RecordDropped adds n events lost to slow subscribers.
func (m *PaywallMetrics) RecordDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.Add(float64(n))
}

// RecordMetadata counts one registration attempt. Outcomes should be stable
// strings such as "registered" or "failed".
func (m *PaywallMetrics) RecordMetadata(outcome string) {
	if m == nil {
		return
	}
	m.metadata.WithLabelValues(outcome).Inc()
}

// SetMetadataPending reports the outbox depth.
func (m *PaywallMetrics) SetMetadataPending(n int) {
	if m == nil {
		return
	}
	m.metadataPending.Set(float64(n))
}
