// Package ingest classifies webhook batches and forwards significant swaps to fanout.
package ingest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/fanout"
	"solana-swap-feed/internal/observability"
	"solana-swap-feed/internal/solana"
)

// ErrUnauthorized is returned when the webhook secret does not match.
var ErrUnauthorized = errors.New("unauthorized")

// errMalformed marks records that cannot be classified.
var errMalformed = errors.New("malformed record")

// Timestamps below this are in seconds.
const millisecondThreshold = 1_000_000_000_000

// Classifier decides whether a record is a buy or a sell.
type Classifier interface {
	Classify(tx *domain.TransactionRecord) (*domain.SwapEvent, bool)
}

// Deduplicator is an atomic signature set.
type Deduplicator interface {
	MarkSeen(signature string) bool
	Forget(signature string)
	Len() int
}

// Sink accepts swap events without blocking.
type Sink interface {
	Submit(e *domain.SwapEvent) (bool, error)
}

// Options configures Service.
type Options struct {
	Classifier Classifier
	Dedup      Deduplicator
	Sink       Sink
	// AuthSecret is compared exactly against the Authorization header.
	AuthSecret string
	// StrictAddresses rejects records whose signature or fee payer is not a valid key.
	StrictAddresses bool
	Logger          *log.Logger
	Now             func() time.Time
}

// Result summarizes one processed batch.
type Result struct {
	Received   int `json:"received"`
	Buys       int `json:"buys"`
	Sells      int `json:"sells"`
	Ignored    int `json:"ignored"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Published  int `json:"published"`
}

// Service is the webhook ingest pipeline: dedup, classify, fan out.
// It is safe for concurrent batches.
type Service struct {
	classifier Classifier
	dedup      Deduplicator
	sink       Sink
	secret     []byte
	strict     bool
	logger     *log.Logger
	now        func() time.Time
}

// NewService creates an ingest service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		classifier: opts.Classifier,
		dedup:      opts.Dedup,
		sink:       opts.Sink,
		secret:     []byte(opts.AuthSecret),
		strict:     opts.StrictAddresses,
		logger:     logger,
		now:        now,
	}
}

// Authorize compares header against the configured secret, case-sensitively.
func (s *Service) Authorize(header string) error {
	if len(s.secret) == 0 || subtle.ConstantTimeCompare([]byte(header), s.secret) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Process handles one webhook batch. Malformed and duplicate records are skipped;
// an error means at least one record failed unexpectedly and was left unmarked
// so a redelivery can process it again.
func (s *Service) Process(ctx context.Context, records []domain.TransactionRecord) (Result, error) {
	start := s.now()
	res := Result{Received: len(records)}

	var errs []error
	for i := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.processRecord(&records[i], &res); err != nil {
			observability.RecordOutcome(observability.OutcomeFailed)
			s.logger.Printf("Error processing record %d (%s): %v", i, records[i].Signature, err)
			errs = append(errs, err)
		}
	}

	observability.UpdateDedupSize(s.dedup.Len())

	err := errors.Join(errs...)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordWebhookBatch(status, s.now().Sub(start))

	return res, err
}

func (s *Service) processRecord(tx *domain.TransactionRecord, res *Result) (err error) {
	tx.Timestamp = s.normalizeTimestamp(tx.Timestamp)

	if verr := s.validate(tx); verr != nil {
		res.Malformed++
		observability.RecordOutcome(observability.OutcomeMalformed)
		s.logger.Printf("Skipping malformed record: %v", verr)
		return nil
	}

	if !s.dedup.MarkSeen(tx.Signature) {
		res.Duplicates++
		observability.RecordOutcome(observability.OutcomeDuplicate)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			s.dedup.Forget(tx.Signature)
		}
	}()

	ev, ok := s.classifier.Classify(tx)
	if !ok {
		res.Ignored++
		observability.RecordOutcome(observability.OutcomeIgnore)
		return nil
	}

	switch ev.Kind {
	case domain.SwapKindBuy:
		res.Buys++
		observability.RecordOutcome(observability.OutcomeBuy)
	case domain.SwapKindSell:
		res.Sells++
		observability.RecordOutcome(observability.OutcomeSell)
	}

	if ev.MissingDecimals {
		observability.RecordMissingDecimals()
		s.logger.Printf("WARN: token transfer without decimals in %s (mint=%s), amount left unscaled", ev.Signature, ev.TokenMint)
	}

	queued, serr := s.sink.Submit(ev)
	switch {
	case errors.Is(serr, fanout.ErrQueueFull):
		// Delivery is best effort; the swap stays deduplicated.
	case serr != nil:
		return fmt.Errorf("submit %s: %w", ev.Signature, serr)
	case queued:
		res.Published++
	}
	return nil
}

func (s *Service) validate(tx *domain.TransactionRecord) error {
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", errMalformed)
	}
	if tx.FeePayer == "" {
		return fmt.Errorf("%w: %s has no fee payer", errMalformed, tx.Signature)
	}
	if !s.strict {
		return nil
	}
	if err := solana.ValidateSignature(tx.Signature); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := solana.ValidateAddress(tx.FeePayer); err != nil {
		return fmt.Errorf("%w: %s fee payer: %v", errMalformed, tx.Signature, err)
	}
	if !solana.IsOnCurve(tx.FeePayer) {
		return fmt.Errorf("%w: %s fee payer %s is not a signer key", errMalformed, tx.Signature, tx.FeePayer)
	}
	return nil
}

// normalizeTimestamp converts seconds to milliseconds; missing timestamps become receive time.
func (s *Service) normalizeTimestamp(ts int64) int64 {
	switch {
	case ts <= 0:
		return s.now().UnixMilli()
	case ts < millisecondThreshold:
		return ts * 1000
	default:
		return ts
	}
}
