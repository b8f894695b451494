package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-feed/internal/classifier"
	"solana-swap-feed/internal/dedup"
	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/ingest"
	"solana-swap-feed/internal/market"
	"solana-swap-feed/internal/pricing"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const s1Payload = `[{
	"signature": "S1",
	"feePayer": "U",
	"timestamp": 1700000000,
	"accountData": [{"account": "U", "nativeBalanceChange": -100000000}],
	"tokenTransfers": [{"toUserAccount": "U", "mint": "M", "tokenAmount": 50, "decimals": 0}],
	"nativeTransfers": [{"fromUserAccount": "U", "toUserAccount": "P", "amount": 100000000}],
	"instructions": [{"programId": "P", "accounts": ["U"]}]
}]`

type recordingSink struct {
	events []*domain.SwapEvent
}

func (s *recordingSink) Submit(e *domain.SwapEvent) (bool, error) {
	s.events = append(s.events, e)
	return true, nil
}

type failingIngest struct{}

func (failingIngest) Authorize(string) error { return nil }

func (failingIngest) Process(context.Context, []domain.TransactionRecord) (ingest.Result, error) {
	return ingest.Result{}, errors.New("boom")
}

type fakeHolders struct {
	n   int
	err error
	age time.Duration
}

func (f *fakeHolders) Count(context.Context) (int, error) { return f.n, f.err }

func (f *fakeHolders) Age() (time.Duration, bool) { return f.age, f.err == nil }

type fakeMarket struct {
	quote market.Quote
	err   error
}

func (f *fakeMarket) MarketCap(context.Context) (market.Quote, error) { return f.quote, f.err }

type fakePrices struct {
	snap pricing.Snapshot
}

func (f *fakePrices) Snapshot() pricing.Snapshot { return f.snap }

type fakeStream struct {
	n int
}

func (f *fakeStream) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (f *fakeStream) Count() int { return f.n }

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	srv   *Server
	sink  *recordingSink
	dedup *dedup.Set
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	set, err := dedup.New(1000)
	require.NoError(t, err)
	sink := &recordingSink{}
	quiet := log.New(io.Discard, "", 0)

	svc := ingest.NewService(ingest.Options{
		Classifier: classifier.New(classifier.Options{}),
		Dedup:      set,
		Sink:       sink,
		AuthSecret: "Secret",
		Logger:     quiet,
	})

	opts := Options{
		Ingest:  svc,
		Holders: &fakeHolders{n: 42, age: 90 * time.Second},
		Prices: &fakePrices{snap: pricing.Snapshot{
			Price:     decimal.RequireFromString("150.25"),
			UpdatedAt: testNow.Add(-30 * time.Second),
		}},
		Stream: &fakeStream{n: 3},
		Dedup:  set,
		Logger: quiet,
		Now:    func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &fixture{srv: New(opts), sink: sink, dedup: set}
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Webhook server is running!", w.Body.String())
}

func TestWebhook_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)

	for _, hdr := range []map[string]string{
		nil,
		{"Authorization": "secret"},
		{"Authorization": "Bearer Secret"},
	} {
		w := f.do(http.MethodPost, "/webhook", s1Payload, hdr)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Unauthorized", w.Body.String())
	}
	assert.Empty(t, f.sink.events, "rejected requests must not be processed")
}

func TestWebhook_ProcessesAndDeduplicates(t *testing.T) {
	f := newFixture(t, nil)
	auth := map[string]string{"Authorization": "Secret"}

	w := f.do(http.MethodPost, "/webhook", s1Payload, auth)
	require.Equal(t, http.StatusOK, w.Code)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, ingest.Result{Received: 1, Buys: 1, Published: 1}, res)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, domain.SwapKindBuy, ev.Kind)
	assert.True(t, decimal.RequireFromString("0.1").Equal(ev.SolAmount))
	assert.True(t, decimal.NewFromInt(50).Equal(ev.TokenAmount))

	w = f.do(http.MethodPost, "/webhook", s1Payload, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, f.sink.events, 1)
}

func TestWebhook_UndecodableRecordIsSkipped(t *testing.T) {
	f := newFixture(t, nil)

	body := `[{"signature": 5}, ` + strings.TrimPrefix(s1Payload, "[")
	w := f.do(http.MethodPost, "/webhook", body, map[string]string{"Authorization": "Secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Received)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.Buys)
}

func TestWebhook_EmptyBatch(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/webhook", `[]`, map[string]string{"Authorization": "Secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_BadPayload(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/webhook", `{"not": "an array"}`, map[string]string{"Authorization": "Secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxBodyBytes = 16 })
	w := f.do(http.MethodPost, "/webhook", s1Payload, map[string]string{"Authorization": "Secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.sink.events)
}

func TestWebhook_ProcessingError(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Ingest = failingIngest{} })
	w := f.do(http.MethodPost, "/webhook", s1Payload, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHolders(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/holders", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"holdersCount": 42}`, w.Body.String())

	f = newFixture(t, func(o *Options) { o.Holders = &fakeHolders{err: errors.New("rpc down")} })
	w = f.do(http.MethodGet, "/holders", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMarketCap(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/market-cap", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "disabled without a market source")

	f = newFixture(t, func(o *Options) {
		o.Market = &fakeMarket{quote: market.Quote{
			PriceUSD:  decimal.RequireFromString("0.0000123"),
			MarketCap: decimal.RequireFromString("12300"),
		}}
	})
	w = f.do(http.MethodGet, "/market-cap", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"marketCap": 12300, "priceUsd": 0.0000123}`, w.Body.String())

	f = newFixture(t, func(o *Options) { o.Market = &fakeMarket{err: market.ErrNoTrades} })
	w = f.do(http.MethodGet, "/market-cap", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f = newFixture(t, func(o *Options) { o.Market = &fakeMarket{err: errors.New("bitquery down")} })
	w = f.do(http.MethodGet, "/market-cap", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodPost, "/webhook", s1Payload, map[string]string{"Authorization": "Secret"})

	w := f.do(http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, 150.25, resp.SolPriceUSD)
	assert.Equal(t, "30s", resp.PriceAge)
	assert.Equal(t, "1m30s", resp.HolderCacheAge)
	assert.Equal(t, 3, resp.Subscribers)
	assert.Equal(t, 1, resp.DedupSize)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamRoute(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = f.do(http.MethodGet, "/health", "", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AllowedOrigins = []string{"https://app.example"} })

	w := f.do(http.MethodOptions, "/holders", "", map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = f.do(http.MethodGet, "/holders", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := newFixture(t, nil)
	w = open.do(http.MethodGet, "/holders", "", map[string]string{"Origin": "https://any.example"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCheckOrigin(t *testing.T) {
	check := CheckOrigin([]string{"https://app.example/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, CheckOrigin(nil)(req))
}
