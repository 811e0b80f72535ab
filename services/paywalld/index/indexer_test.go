package index

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"paywall/core/events"
	"paywall/core/types"
	"paywall/crypto"
)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewIndexer(db, nil)
}

func stamp(evt events.Event, ts int64) *types.Event {
	payload := evt.Event()
	payload.ID = uuid.NewString()
	payload.Timestamp = ts
	return payload
}

var (
	article  = [32]byte{0xA1}
	creator  = [20]byte{0xC1}
	buyer    = [20]byte{0xB1}
	currency = [20]byte{0xC0}
)

func TestIndexerProjectsLifecycle(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()

	require.NoError(t, idx.Apply(ctx, stamp(events.ArticleCreated{
		Article: article, Creator: creator, Sequence: 4, URI: "ipfs://x",
		PayCurrency: currency, Price: 1000, RoyaltyBps: 500, Transferable: true,
	}, 100)))
	require.NoError(t, idx.Apply(ctx, stamp(events.ArticleUpdated{Article: article, Price: 1200}, 110)))

	purchased := stamp(events.Purchased{
		Article: article, Buyer: buyer, Price: 1200, ProtocolFee: 30, ReferrerFee: 0,
		CreatorAmount: 1170, PurchasedAt: 120,
	}, 120)
	require.NoError(t, idx.Apply(ctx, purchased))
	require.NoError(t, idx.Apply(ctx, purchased), "replayed events are idempotent")

	credential := [32]byte{0xCC}
	require.NoError(t, idx.Apply(ctx, stamp(events.AccessCredentialMinted{
		Article: article, Buyer: buyer, Credential: credential, Transferable: true,
	}, 120)))
	friend := [20]byte{0xF1}
	require.NoError(t, idx.Apply(ctx, stamp(events.CredentialTransferred{Credential: credential, From: buyer, To: friend}, 130)))

	articles, err := idx.ArticlesByCreator(ctx, crypto.FormatAccount(creator), 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.Equal(t, Uint64(1200), articles[0].Price)
	require.Equal(t, Uint64(1), articles[0].Sales)
	require.Equal(t, Uint64(4), articles[0].Sequence)

	purchases, err := idx.PurchasesByBuyer(ctx, crypto.FormatAccount(buyer), 10)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, Uint64(1170), purchases[0].CreatorAmount)
	require.Empty(t, purchases[0].Referrer)
	require.Equal(t, time.Unix(120, 0).UTC(), purchases[0].PurchasedAt.UTC())

	var cred Credential
	require.NoError(t, idx.db.First(&cred, "id = ?", crypto.FormatHash(credential)).Error)
	require.Equal(t, crypto.FormatAccount(friend), cred.Owner)
}

func TestIndexerRecordsFeeHistory(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()
	treasury := [20]byte{0x7E}
	require.NoError(t, idx.Apply(ctx, stamp(events.FeeUpdated{ProtocolBps: 250, ReferrerBps: 100, Treasury: treasury}, 1)))
	require.NoError(t, idx.Apply(ctx, stamp(events.FeeUpdated{ProtocolBps: 300, ReferrerBps: 0, Treasury: treasury}, 2)))
	var count int64
	require.NoError(t, idx.db.Model(&FeeChange{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestIndexerRejectsMalformedAttributes(t *testing.T) {
	idx := setupIndexer(t)
	err := idx.Apply(context.Background(), &types.Event{
		ID:         uuid.NewString(),
		Type:       events.TypeArticleUpdated,
		Attributes: map[string]string{"article": "0x01", "price": "lots"},
	})
	require.Error(t, err)
	require.NoError(t, idx.Apply(context.Background(), &types.Event{Type: "unrelated"}))
}

func TestIndexerRunConsumesBus(t *testing.T) {
	idx := setupIndexer(t)
	bus := events.NewBus()
	sub := bus.Subscribe(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idx.Run(ctx, sub)
		close(done)
	}()
	bus.Emit(events.ArticleCreated{Article: article, Creator: creator, Sequence: 1, PayCurrency: currency, Price: 5})
	require.Eventually(t, func() bool {
		rows, err := idx.ArticlesByCreator(context.Background(), crypto.FormatAccount(creator), 1)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	sub.Close()
}

func TestPurchasesSinceStreamsInOrder(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Apply(ctx, stamp(events.Purchased{
			Article: article, Buyer: [20]byte{byte(i + 1)}, Price: 10, CreatorAmount: 10, PurchasedAt: int64(100 + i),
		}, int64(100+i))))
	}
	var seen []int64
	require.NoError(t, idx.PurchasesSince(ctx, time.Unix(101, 0), func(p Purchase) error {
		seen = append(seen, p.PurchasedAt.Unix())
		return nil
	}))
	require.Equal(t, []int64{101, 102}, seen)
}

func TestDialectorForRejectsUnknownDSN(t *testing.T) {
	_, err := dialectorFor("mysql://root@localhost/paywall")
	require.Error(t, err)
	_, err = dialectorFor("")
	require.Error(t, err)
	_, err = dialectorFor("postgres://paywall@localhost/paywall")
	require.NoError(t, err)
}

func TestIndexerKeepsFullRangeAmounts(t *testing.T) {
	idx := setupIndexer(t)
	ctx := context.Background()

	require.NoError(t, idx.Apply(ctx, stamp(events.ArticleCreated{
		Article: article, Creator: creator, Sequence: math.MaxUint64, URI: "ipfs://max",
		PayCurrency: currency, Price: math.MaxUint64,
	}, 100)))
	require.NoError(t, idx.Apply(ctx, stamp(events.ArticleCreated{
		Article: [32]byte{0xA2}, Creator: creator, Sequence: 7, PayCurrency: currency, Price: 1,
	}, 100)))
	require.NoError(t, idx.Apply(ctx, stamp(events.Purchased{
		Article: article, Buyer: buyer, Price: math.MaxUint64, ProtocolFee: math.MaxUint64 / 4,
		ReferrerFee: 1, CreatorAmount: math.MaxUint64 - math.MaxUint64/4 - 1, PurchasedAt: 120,
	}, 120)))

	articles, err := idx.ArticlesByCreator(ctx, crypto.FormatAccount(creator), 0)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.Equal(t, Uint64(math.MaxUint64), articles[0].Sequence, "sequence ordering is numeric")
	require.Equal(t, Uint64(math.MaxUint64), articles[0].Price)
	require.Equal(t, Uint64(1), articles[0].Sales)
	require.Equal(t, Uint64(7), articles[1].Sequence)

	var seen []Purchase
	require.NoError(t, idx.PurchasesSince(ctx, time.Unix(0, 0), func(p Purchase) error {
		seen = append(seen, p)
		return nil
	}))
	require.Len(t, seen, 1)
	require.Equal(t, Uint64(math.MaxUint64), seen[0].Price)
	require.Equal(t, Uint64(math.MaxUint64-math.MaxUint64/4-1), seen[0].CreatorAmount)
}

func TestUint64ScanSources(t *testing.T) {
	var u Uint64
	require.NoError(t, u.Scan("18446744073709551615"))
	require.Equal(t, Uint64(math.MaxUint64), u)
	require.NoError(t, u.Scan([]byte("00000000000000000042")))
	require.Equal(t, Uint64(42), u)
	require.NoError(t, u.Scan(int64(9)))
	require.Equal(t, Uint64(9), u)
	require.Error(t, u.Scan(int64(-1)))
	require.Error(t, u.Scan(3.5))

	value, err := Uint64(42).Value()
	require.NoError(t, err)
	require.Equal(t, "00000000000000000042", value)
}
