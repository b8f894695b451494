// Package fanout delivers significant swap events to live subscribers.
package fanout

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/observability"
)

// Default configuration values.
const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 5 * time.Second
)

// DefaultThreshold is the minimum SOL amount of a published event.
var DefaultThreshold = decimal.New(1, -1)

// ErrQueueFull is returned when an event is dropped because delivery is backed up.
var ErrQueueFull = errors.New("fanout queue full")

// Publisher delivers notifications over one transport.
// Publish must not block on individual subscribers.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, n domain.Notification) error
}

// PriceReader returns the current SOL price in USD without blocking.
type PriceReader interface {
	Price() decimal.Decimal
}

// Options configures Fanout.
type Options struct {
	// Threshold is inclusive: events with SolAmount >= Threshold are published.
	// Default: DefaultThreshold. Point at zero to publish everything.
	Threshold      *decimal.Decimal
	QueueSize      int           // Capacity of the intake and of each publisher queue. Default: 1024
	PublishTimeout time.Duration // Per-publisher timeout. Default: 5s
	Logger         *log.Logger
}

// Fanout filters swap events by significance and hands them to a delivery goroutine.
// Each publisher drains its own queue, so a stalled sink only drops its own backlog.
type Fanout struct {
	prices         PriceReader
	lanes          []*lane
	threshold      decimal.Decimal
	publishTimeout time.Duration
	logger         *log.Logger

	queue chan *domain.SwapEvent
}

type lane struct {
	pub   Publisher
	queue chan domain.Notification
}

// New creates a fanout. Run must be started for events to be delivered.
func New(prices PriceReader, publishers []Publisher, opts Options) *Fanout {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	publishTimeout := opts.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	threshold := DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	lanes := make([]*lane, 0, len(publishers))
	for _, p := range publishers {
		lanes = append(lanes, &lane{pub: p, queue: make(chan domain.Notification, queueSize)})
	}

	return &Fanout{
		prices:         prices,
		lanes:          lanes,
		threshold:      threshold,
		publishTimeout: publishTimeout,
		logger:         logger,
		queue:          make(chan *domain.SwapEvent, queueSize),
	}
}

// Threshold returns the effective significance threshold.
func (f *Fanout) Threshold() decimal.Decimal {
	return f.threshold
}

// Qualifies reports whether e meets the significance threshold.
func (f *Fanout) Qualifies(e *domain.SwapEvent) bool {
	return e.SolAmount.GreaterThanOrEqual(f.threshold)
}

// Submit queues e for delivery without blocking.
// It returns false with a nil error for events below the threshold.
func (f *Fanout) Submit(e *domain.SwapEvent) (bool, error) {
	if !f.Qualifies(e) {
		observability.RecordBelowThreshold()
		return false, nil
	}

	select {
	case f.queue <- e:
		observability.UpdateQueueDepth(len(f.queue))
		return true, nil
	default:
		observability.RecordDropped("queue", "full")
		f.logger.Printf("WARN: fanout queue full, dropping %s %s", e.Kind, e.Signature)
		return false, ErrQueueFull
	}
}

// Run delivers queued events to every publisher.
// It blocks until context is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	f.logger.Printf("Fanout started, publishers: %d, threshold: %s SOL", len(f.lanes), f.threshold)

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range f.lanes {
		g.Go(func() error {
			f.drain(gctx, l)
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e := <-f.queue:
				observability.UpdateQueueDepth(len(f.queue))
				f.dispatch(e)
			}
		}
	})

	_ = g.Wait()
	f.logger.Println("Fanout stopping...")
	return ctx.Err()
}

// dispatch prices the event at emission time and hands it to each publisher queue.
func (f *Fanout) dispatch(e *domain.SwapEvent) {
	n := domain.NewNotification(e, f.prices.Price())

	for _, l := range f.lanes {
		select {
		case l.queue <- n:
		default:
			observability.RecordDropped(l.pub.Name(), "full")
			f.logger.Printf("WARN: %s queue full, dropping %s", l.pub.Name(), e.Signature)
		}
	}
}

func (f *Fanout) drain(ctx context.Context, l *lane) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.queue:
			f.publish(ctx, l.pub, n)
		}
	}
}

func (f *Fanout) publish(ctx context.Context, p Publisher, n domain.Notification) {
	pctx, cancel := context.WithTimeout(ctx, f.publishTimeout)
	defer cancel()

	if err := p.Publish(pctx, n); err != nil {
		observability.RecordDropped(p.Name(), "error")
		f.logger.Printf("Error publishing %s to %s: %v", n.Signature, p.Name(), err)
		return
	}
	observability.RecordPublished(p.Name())
}
