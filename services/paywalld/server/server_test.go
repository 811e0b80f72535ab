package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"paywall/core/events"
	"paywall/core/types"
	"paywall/crypto"
	"paywall/native/paywall"
	"paywall/services/paywalld/index"
	"paywall/services/paywalld/middleware"
	"paywall/storage"
)

var (
	testCurrency = [20]byte{0xC0, 0x01}
	testAdmin    = [20]byte{0xAD}
	testTreasury = [20]byte{0x7E}
	testCreator  = [20]byte{0xC1}
	testBuyer    = [20]byte{0xB1}
	testReferrer = [20]byte{0x5E}
)

type harness struct {
	engine  *paywall.Engine
	bus     *events.Bus
	handler http.Handler
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	engine := paywall.NewEngine(storage.NewMemDB())
	engine.SetAdmins([][20]byte{testAdmin})
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	bus := events.NewBus()
	engine.SetEmitter(bus)
	cfg := Config{Engine: engine, Bus: bus}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	return &harness{engine: engine, bus: bus, handler: handler}
}

func (h *harness) do(t *testing.T, method, path string, caller *[20]byte, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set(middleware.CallerHeader, crypto.FormatAccount(*caller))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) setFees(t *testing.T) {
	t.Helper()
	admin := testAdmin
	rec := h.do(t, http.MethodPut, "/v1/fees", &admin, map[string]any{
		"protocolBps": 250,
		"referrerBps": 100,
		"treasury":    crypto.FormatAccount(testTreasury),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (h *harness) createArticle(t *testing.T, price uint64, transferable bool) articleResponse {
	t.Helper()
	creator := testCreator
	rec := h.do(t, http.MethodPost, "/v1/articles", &creator, map[string]any{
		"sequence":     "1",
		"uri":          "ipfs://encrypted/article",
		"payCurrency":  crypto.FormatCurrency(testCurrency),
		"price":        fmt.Sprintf("%d", price),
		"royaltyBps":   500,
		"transferable": transferable,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var article articleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &article))
	return article
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestPurchaseFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.setFees(t)
	article := h.createArticle(t, 1000, true)
	require.Equal(t, crypto.FormatHash(paywall.ArticleAddress(testCreator, 1)), article.ID)
	require.NoError(t, h.engine.Fund(testCurrency, testBuyer, 1000))
	require.NoError(t, h.engine.Fund(testCurrency, testReferrer, 0))

	quote := h.do(t, http.MethodGet, "/v1/articles/"+article.ID+"/quote?referrer="+crypto.FormatAccount(testReferrer), nil, nil)
	require.Equal(t, http.StatusOK, quote.Code, quote.Body.String())
	var split splitResponse
	require.NoError(t, json.Unmarshal(quote.Body.Bytes(), &split))
	require.Equal(t, splitResponse{Price: 1000, ProtocolFee: 25, ReferrerFee: 10, CreatorAmount: 965}, split)

	buyer := testBuyer
	rec := h.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency(testCurrency),
		"referrer":    crypto.FormatAccount(testReferrer),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var purchased purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchased))
	require.Equal(t, uint64(1), purchased.Sales)
	require.Equal(t, uint64(965), purchased.Receipt.CreatorAmount)
	require.Equal(t, crypto.FormatAccount(testReferrer), purchased.Referrer)

	again := h.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency(testCurrency),
	})
	require.Equal(t, http.StatusConflict, again.Code)
	require.Equal(t, "conflict", decodeError(t, again))

	receipt := h.do(t, http.MethodGet, "/v1/articles/"+article.ID+"/receipts/"+crypto.FormatAccount(testBuyer), nil, nil)
	require.Equal(t, http.StatusOK, receipt.Code)
	var stored receiptResponse
	require.NoError(t, json.Unmarshal(receipt.Body.Bytes(), &stored))
	require.Equal(t, purchased.Receipt, stored)

	credential := h.do(t, http.MethodPost, "/v1/credentials/"+stored.Credential+"/transfer", &buyer, map[string]any{
		"to": crypto.FormatAccount(testReferrer),
	})
	require.Equal(t, http.StatusOK, credential.Code, credential.Body.String())
	var moved credentialResponse
	require.NoError(t, json.Unmarshal(credential.Body.Bytes(), &moved))
	require.Equal(t, crypto.FormatAccount(testReferrer), moved.Owner)
}

func TestSoulboundCredentialTransferConflicts(t *testing.T) {
	h := newHarness(t, nil)
	h.setFees(t)
	article := h.createArticle(t, 1000, false)
	require.NoError(t, h.engine.Fund(testCurrency, testBuyer, 1000))
	buyer := testBuyer
	rec := h.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency(testCurrency),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var purchased purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchased))

	transfer := h.do(t, http.MethodPost, "/v1/credentials/"+purchased.Receipt.Credential+"/transfer", &buyer, map[string]any{
		"to": crypto.FormatAccount(testReferrer),
	})
	require.Equal(t, http.StatusConflict, transfer.Code)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil)
	h.setFees(t)
	article := h.createArticle(t, 1000, true)
	buyer := testBuyer
	creator := testCreator
	stranger := [20]byte{0x99}

	missing := h.do(t, http.MethodGet, "/v1/articles/"+crypto.FormatHash([32]byte{1}), nil, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)

	malformed := h.do(t, http.MethodGet, "/v1/articles/not-hex", nil, nil)
	require.Equal(t, http.StatusBadRequest, malformed.Code)

	broke := h.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency(testCurrency),
	})
	require.Equal(t, http.StatusPaymentRequired, broke.Code)
	require.Equal(t, "insufficient_payment", decodeError(t, broke))

	wrongMint := h.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency([20]byte{0xEE}),
	})
	require.Equal(t, http.StatusBadRequest, wrongMint.Code)

	notOwner := h.do(t, http.MethodPatch, "/v1/articles/"+article.ID+"/price", &stranger, map[string]any{"price": "5"})
	require.Equal(t, http.StatusForbidden, notOwner.Code)

	zeroPrice := h.do(t, http.MethodPatch, "/v1/articles/"+article.ID+"/price", &creator, map[string]any{"price": "0"})
	require.Equal(t, http.StatusBadRequest, zeroPrice.Code)

	repriced := h.do(t, http.MethodPatch, "/v1/articles/"+article.ID+"/price", &creator, map[string]any{"price": "1500"})
	require.Equal(t, http.StatusOK, repriced.Code)

	longURI := h.do(t, http.MethodPost, "/v1/articles", &creator, map[string]any{
		"sequence":    "2",
		"uri":         strings.Repeat("a", paywall.MaxURILength+1),
		"payCurrency": crypto.FormatCurrency(testCurrency),
		"price":       "1",
	})
	require.Equal(t, http.StatusBadRequest, longURI.Code)

	unknownField := h.do(t, http.MethodPost, "/v1/articles", &creator, map[string]any{"bogus": true})
	require.Equal(t, http.StatusBadRequest, unknownField.Code)
}

func TestWritesRequireCaller(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/v1/articles", nil, map[string]any{"uri": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	stranger := [20]byte{0x99}
	fees := h.do(t, http.MethodPut, "/v1/fees", &stranger, map[string]any{
		"protocolBps": 1,
		"treasury":    crypto.FormatAccount(testTreasury),
	})
	require.Equal(t, http.StatusForbidden, fees.Code)
	require.Equal(t, "admin_mismatch", decodeError(t, fees))
}

func TestGetFees(t *testing.T) {
	h := newHarness(t, nil)
	missing := h.do(t, http.MethodGet, "/v1/fees", nil, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)

	h.setFees(t)
	rec := h.do(t, http.MethodGet, "/v1/fees", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg feeConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, uint16(250), cfg.ProtocolBps)
	require.Equal(t, crypto.FormatAccount(testTreasury), cfg.Treasury)
}

func TestBearerTokenIdentity(t *testing.T) {
	const secret = "test-secret"
	h := newHarness(t, func(cfg *Config) {
		cfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     "paywall",
		}, nil)
	})
	token, err := middleware.IssueToken(secret, crypto.FormatAccount(testAdmin), "paywall", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/v1/fees", strings.NewReader(fmt.Sprintf(
		`{"protocolBps":100,"referrerBps":0,"treasury":%q}`, crypto.FormatAccount(testTreasury))))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	admin := testAdmin
	spoofed := h.do(t, http.MethodPut, "/v1/fees", &admin, map[string]any{
		"protocolBps": 100,
		"treasury":    crypto.FormatAccount(testTreasury),
	})
	require.Equal(t, http.StatusUnauthorized, spoofed.Code)
}

func TestIndexRoutes(t *testing.T) {
	unconfigured := newHarness(t, nil)
	rec := unconfigured.do(t, http.MethodGet, "/v1/index/articles?creator="+crypto.FormatAccount(testCreator), nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	db, err := index.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	indexer := index.NewIndexer(db, nil)

	h := newHarness(t, func(cfg *Config) { cfg.Index = indexer })
	sub := h.bus.Subscribe(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go indexer.Run(ctx, sub)

	h.setFees(t)
	h.createArticle(t, 1000, true)
	require.NoError(t, h.engine.Fund(testCurrency, testBuyer, 1000))
	buyer := testBuyer
	article := crypto.FormatHash(paywall.ArticleAddress(testCreator, 1))
	purchase := h.do(t, http.MethodPost, "/v1/articles/"+article+"/purchase", &buyer, map[string]any{
		"payCurrency": crypto.FormatCurrency(testCurrency),
	})
	require.Equal(t, http.StatusCreated, purchase.Code)

	require.Eventually(t, func() bool {
		rec := h.do(t, http.MethodGet, "/v1/index/receipts?buyer="+crypto.FormatAccount(testBuyer), nil, nil)
		var body struct {
			Receipts []indexedPurchase `json:"receipts"`
		}
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &body) != nil {
			return false
		}
		return len(body.Receipts) == 1 && body.Receipts[0].Article == article
	}, 2*time.Second, 20*time.Millisecond)

	articles := h.do(t, http.MethodGet, "/v1/index/articles?creator="+crypto.FormatAccount(testCreator), nil, nil)
	require.Equal(t, http.StatusOK, articles.Code)
	var body struct {
		Articles []indexedArticle `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(articles.Body.Bytes(), &body))
	require.Len(t, body.Articles, 1)
	require.Equal(t, uint64(1), body.Articles[0].Sales)

	bad := h.do(t, http.MethodGet, "/v1/index/receipts?buyer=nope", nil, nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws?types=" + events.TypeFeeUpdated
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the upgrade completes, so keep
	// publishing until the first frame arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				h.bus.Emit(events.ArticleUpdated{Article: [32]byte{1}, Price: 1})
				h.bus.Emit(events.FeeUpdated{ProtocolBps: 250, Treasury: testTreasury})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeFeeUpdated, evt.Type)
	require.NotEmpty(t, evt.ID)
	require.Equal(t, "250", evt.Attr("protocolBps"))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestStreamEventsAbandonsLaggingSubscriber(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(1)
	defer sub.Close()
	bus.Emit(events.ArticleUpdated{Article: [32]byte{1}, Price: 1})
	bus.Emit(events.ArticleUpdated{Article: [32]byte{1}, Price: 2})
	require.Equal(t, uint64(1), sub.Dropped())

	var sent int
	err := streamEvents(context.Background(), sub, nil, func(*types.Event) error {
		sent++
		return nil
	})
	require.ErrorIs(t, err, errStreamLagged)
	require.Zero(t, sent)
}

func TestStreamEventsForwardsUntilClosed(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(4)
	bus.Emit(events.ArticleUpdated{Article: [32]byte{1}, Price: 1})
	bus.Emit(events.FeeUpdated{ProtocolBps: 100, Treasury: testTreasury})
	sub.Close()

	var seen []string
	err := streamEvents(context.Background(), sub, parseTypeFilter(events.TypeFeeUpdated), func(evt *types.Event) error {
		seen = append(seen, evt.Type)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeFeeUpdated}, seen)
}
