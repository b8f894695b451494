// Package api exposes the webhook receiver and read endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/ingest"
	"solana-swap-feed/internal/market"
	"solana-swap-feed/internal/observability"
	"solana-swap-feed/internal/pricing"
)

// DefaultMaxBodyBytes caps webhook payloads.
const DefaultMaxBodyBytes = 10 << 20

// Ingestor authenticates and processes webhook batches.
type Ingestor interface {
	Authorize(header string) error
	Process(ctx context.Context, records []domain.TransactionRecord) (ingest.Result, error)
}

// HolderCounter answers holder count queries.
type HolderCounter interface {
	Count(ctx context.Context) (int, error)
	Age() (time.Duration, bool)
}

// MarketCapper answers market cap queries.
type MarketCapper interface {
	MarketCap(ctx context.Context) (market.Quote, error)
}

// PriceSnapshotter exposes the cached SOL price.
type PriceSnapshotter interface {
	Snapshot() pricing.Snapshot
}

// Stream upgrades subscribers to the live feed.
type Stream interface {
	http.Handler
	Count() int
}

// Sizer reports the number of tracked signatures.
type Sizer interface {
	Len() int
}

// Options configures Server. Market may be nil to disable /market-cap.
type Options struct {
	Ingest         Ingestor
	Holders        HolderCounter
	Market         MarketCapper
	Prices         PriceSnapshotter
	Stream         Stream
	Dedup          Sizer
	AllowedOrigins []string
	MaxBodyBytes   int64 // Default: 10 MiB
	Logger         *log.Logger
	Now            func() time.Time
}

// Server routes HTTP requests to the pipeline components.
type Server struct {
	ingest  Ingestor
	holders HolderCounter
	market  MarketCapper
	prices  PriceSnapshotter
	stream  Stream
	dedup   Sizer
	logger  *log.Logger
	now     func() time.Time
	started time.Time

	engine *gin.Engine
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		ingest:  opts.Ingest,
		holders: opts.Holders,
		market:  opts.Market,
		prices:  opts.Prices,
		stream:  opts.Stream,
		dedup:   opts.Dedup,
		logger:  logger,
		now:     now,
		started: now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger.Writer()), CORS(opts.AllowedOrigins))

	r.GET("/", s.handleRoot)
	r.POST("/webhook", LimitBody(maxBody), s.handleWebhook)
	r.GET("/holders", s.handleHolders)
	r.GET("/market-cap", s.handleMarketCap)
	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	if s.stream != nil {
		r.GET("/ws", gin.WrapH(s.stream))
	}

	s.engine = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Webhook server is running!")
}

func (s *Server) handleWebhook(c *gin.Context) {
	if err := s.ingest.Authorize(c.GetHeader("Authorization")); err != nil {
		s.logger.Printf("Unauthorized webhook request from %s", c.ClientIP())
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	var raw []json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.logger.Printf("Rejecting webhook payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a JSON array of transactions"})
		return
	}

	records, undecodable := decodeRecords(raw)
	for range undecodable {
		observability.RecordOutcome(observability.OutcomeMalformed)
	}
	if len(undecodable) > 0 {
		s.logger.Printf("Skipping %d undecodable records (first: %v)", len(undecodable), undecodable[0])
	}

	res, err := s.ingest.Process(c.Request.Context(), records)
	res.Received += len(undecodable)
	res.Malformed += len(undecodable)
	if err != nil {
		s.logger.Printf("Error processing webhook batch: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, res)
}

// decodeRecords decodes each element on its own so one bad record cannot reject the batch.
func decodeRecords(raw []json.RawMessage) ([]domain.TransactionRecord, []error) {
	records := make([]domain.TransactionRecord, 0, len(raw))
	var errs []error
	for i, msg := range raw {
		var tx domain.TransactionRecord
		if err := json.Unmarshal(msg, &tx); err != nil {
			errs = append(errs, &recordError{index: i, err: err})
			continue
		}
		records = append(records, tx)
	}
	return records, errs
}

type recordError struct {
	index int
	err   error
}

func (e *recordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.index, e.err)
}

func (e *recordError) Unwrap() error { return e.err }

func (s *Server) handleHolders(c *gin.Context) {
	n, err := s.holders.Count(c.Request.Context())
	if err != nil {
		s.logger.Printf("Holder count unavailable: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "holder count unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdersCount": n})
}

func (s *Server) handleMarketCap(c *gin.Context) {
	if s.market == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "market cap is not configured"})
		return
	}

	q, err := s.market.MarketCap(c.Request.Context())
	switch {
	case errors.Is(err, market.ErrNoTrades):
		c.JSON(http.StatusNotFound, gin.H{"error": "no trades found for token"})
		return
	case err != nil:
		s.logger.Printf("Market cap unavailable: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "market cap unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"marketCap": q.MarketCap.InexactFloat64(),
		"priceUsd":  q.PriceUSD.InexactFloat64(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status         string     `json:"status"`
	Uptime         string     `json:"uptime"`
	Started        time.Time  `json:"started"`
	SolPriceUSD    float64    `json:"sol_price_usd"`
	PriceUpdatedAt *time.Time `json:"price_updated_at,omitempty"`
	PriceAge       string     `json:"price_age,omitempty"`
	HolderCacheAge string     `json:"holder_cache_age,omitempty"`
	Subscribers    int        `json:"subscribers"`
	DedupSize      int        `json:"dedup_size"`
}

func (s *Server) handleStatus(c *gin.Context) {
	now := s.now()
	resp := StatusResponse{
		Status:  "running",
		Uptime:  now.Sub(s.started).Round(time.Second).String(),
		Started: s.started,
	}

	if s.prices != nil {
		snap := s.prices.Snapshot()
		resp.SolPriceUSD = snap.Price.InexactFloat64()
		if !snap.UpdatedAt.IsZero() {
			updated := snap.UpdatedAt
			resp.PriceUpdatedAt = &updated
			resp.PriceAge = now.Sub(updated).Round(time.Second).String()
		}
	}
	if s.holders != nil {
		if age, ok := s.holders.Age(); ok {
			resp.HolderCacheAge = age.Round(time.Second).String()
		}
	}
	if s.stream != nil {
		resp.Subscribers = s.stream.Count()
	}
	if s.dedup != nil {
		resp.DedupSize = s.dedup.Len()
	}

	c.JSON(http.StatusOK, resp)
}
