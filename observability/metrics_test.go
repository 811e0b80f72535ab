package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"paywall/core/events"
	"paywall/native/paywall"
)

func TestPaywallMetricsRecordSettlement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaywallMetrics(reg)
	var observer paywall.Observer = m

	observer.PurchaseSettled(paywall.Split{Price: 1000, ProtocolFee: 25, ReferrerFee: 10, CreatorAmount: 965})
	observer.PurchaseSettled(paywall.Split{Price: 1000, ProtocolFee: 25, CreatorAmount: 975})
	observer.PurchaseRejected(paywall.KindState)

	if got := testutil.ToFloat64(m.purchases.WithLabelValues("true")); got != 1 {
		t.Fatalf("referred purchases = %v", got)
	}
	if got := testutil.ToFloat64(m.volume.WithLabelValues("creator")); got != 1940 {
		t.Fatalf("creator volume = %v", got)
	}
	if got := testutil.ToFloat64(m.volume.WithLabelValues("treasury")); got != 50 {
		t.Fatalf("treasury volume = %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("state")); got != 1 {
		t.Fatalf("state rejections = %v", got)
	}
}

func TestPaywallMetricsNilSafe(t *testing.T) {
	var m *PaywallMetrics
	m.PurchaseSettled(paywall.Split{})
	m.RecordEvent("x")
	m.RecordDropped(3)
	m.RecordMetadata("failed")
	m.SetMetadataPending(2)
}

func TestPaywallMetricsEventCounters(t *testing.T) {
	m := NewPaywallMetrics(prometheus.NewRegistry())
	m.RecordEvent("paywall.purchased")
	m.RecordEvent("")
	m.RecordDropped(0)
	m.RecordDropped(4)
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown events = %v", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 4 {
		t.Fatalf("dropped = %v", got)
	}
}

func TestPaywallMetricsCountsEmittedEvents(t *testing.T) {
	m := NewPaywallMetrics(prometheus.NewRegistry())
	var emitter events.Emitter = m
	emitter.Emit(events.FeeUpdated{ProtocolBps: 250})
	emitter.Emit(events.FeeUpdated{ProtocolBps: 300})
	emitter.Emit(nil)

	if got := testutil.ToFloat64(m.events.WithLabelValues(events.TypeFeeUpdated)); got != 2 {
		t.Fatalf("fee events = %v", got)
	}
}
