package metadata

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"paywall/native/paywall"
	"paywall/observability"
	"paywall/storage"
)

type fakeOutbox struct {
	mu      sync.Mutex
	pending []paywall.MetadataIntent
	marked  [][32]byte
}

func (o *fakeOutbox) PendingMetadata(limit int) ([]paywall.MetadataIntent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit > 0 && len(o.pending) > limit {
		return append([]paywall.MetadataIntent(nil), o.pending[:limit]...), nil
	}
	return append([]paywall.MetadataIntent(nil), o.pending...), nil
}

func (o *fakeOutbox) MarkMetadataRegistered(credential [32]byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.marked = append(o.marked, credential)
	kept := o.pending[:0]
	for _, intent := range o.pending {
		if intent.Credential != credential {
			kept = append(kept, intent)
		}
	}
	o.pending = kept
	return nil
}

type flakyRegistrar struct {
	fail map[[32]byte]bool
	seen []paywall.MetadataIntent
}

func (r *flakyRegistrar) Register(_ context.Context, intent paywall.MetadataIntent) error {
	r.seen = append(r.seen, intent)
	if r.fail[intent.Credential] {
		return errors.New("registry unavailable")
	}
	return nil
}

func TestDrainMarksDeliveredIntents(t *testing.T) {
	outbox := &fakeOutbox{pending: []paywall.MetadataIntent{
		{Credential: [32]byte{1}, Name: "one"},
		{Credential: [32]byte{2}, Name: "two"},
		{Credential: [32]byte{3}, Name: "three"},
	}}
	registrar := &flakyRegistrar{fail: map[[32]byte]bool{{2}: true}}
	metrics := observability.NewPaywallMetrics(prometheus.NewRegistry())
	worker := NewWorker(outbox, registrar, Config{Batch: 10}, nil, metrics)

	delivered, err := worker.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, delivered)
	require.Len(t, registrar.seen, 3)
	require.Equal(t, [][32]byte{{1}, {3}}, outbox.marked)
	require.Len(t, outbox.pending, 1)

	registrar.fail = nil
	delivered, err = worker.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Empty(t, outbox.pending)
}

func TestDrainRespectsBatch(t *testing.T) {
	outbox := &fakeOutbox{}
	for i := 0; i < 5; i++ {
		outbox.pending = append(outbox.pending, paywall.MetadataIntent{Credential: [32]byte{byte(i + 1)}})
	}
	worker := NewWorker(outbox, &flakyRegistrar{}, Config{Batch: 2}, nil, nil)

	delivered, err := worker.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, delivered)
	require.Len(t, outbox.pending, 3)
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	outbox := &fakeOutbox{pending: []paywall.MetadataIntent{{Credential: [32]byte{1}}}}
	worker := NewWorker(outbox, &flakyRegistrar{}, Config{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, err := worker.Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, delivered)
	require.Len(t, outbox.pending, 1)
}

func TestDrainAgainstEngineOutbox(t *testing.T) {
	var (
		currency = [20]byte{0xC0}
		admin    = [20]byte{0xAD}
		treasury = [20]byte{0x7E}
		creator  = [20]byte{0xC1}
		buyer    = [20]byte{0xB1}
	)
	engine := paywall.NewEngine(storage.NewMemDB())
	engine.SetAdmins([][20]byte{admin})
	_, err := engine.SetFeeConfig(admin, 250, 0, treasury)
	require.NoError(t, err)
	article, err := engine.CreateArticle(creator, paywall.NewArticle{
		Sequence:    1,
		URI:         "ipfs://encrypted/article",
		PayCurrency: currency,
		Price:       1_000,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Fund(currency, creator, 0))
	require.NoError(t, engine.Fund(currency, treasury, 0))
	require.NoError(t, engine.Fund(currency, buyer, 1_000))
	_, err = engine.Purchase(paywall.PurchaseRequest{
		Article:     article.ID,
		Buyer:       buyer,
		PayCurrency: currency,
		Referrer:    paywall.NoReferrer(),
	})
	require.NoError(t, err)

	registrar := &flakyRegistrar{}
	worker := NewWorker(engine, registrar, Config{}, nil, nil)
	delivered, err := worker.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Equal(t, paywall.CredentialName(article.ID), registrar.seen[0].Name)
	require.Equal(t, paywall.StandardNonFungibleEdition, registrar.seen[0].Standard)

	pending, err := engine.PendingMetadata(0)
	require.NoError(t, err)
	require.Empty(t, pending)
}
