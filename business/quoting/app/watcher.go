package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/asset"
	"github.com/fd1az/quote-engine/internal/logger"
)

// WatchPair is one pair re-quoted on every tick.
type WatchPair struct {
	In       *asset.Asset
	Out      *asset.Asset
	AmountIn *big.Int
}

// Name returns "IN/OUT".
func (p WatchPair) Name() string {
	return p.In.Symbol() + "/" + p.Out.Symbol()
}

// Tick is one refresh signal. Block is zero for timer ticks.
type Tick struct {
	Block uint64
	At    time.Time
}

// Trigger produces refresh ticks until ctx is done, then closes the channel.
type Trigger interface {
	Ticks(ctx context.Context) (<-chan Tick, error)
}

// QuoteUpdate is the result of quoting one pair on one tick.
type QuoteUpdate struct {
	Block    uint64
	At       time.Time
	Pair     string
	AmountIn asset.Amount

	Optimal      asset.Amount
	OptimalVenue domain.VenueID

	Executable      asset.Amount
	ExecutableVenue domain.VenueID
	Pools           int
	// Rate is tokenOut per tokenIn of the executable quote, or of the optimal one when the
	// executable quote is missing.
	Rate decimal.Decimal

	// Rejected is set when the oracle reference refused the dex quote.
	Rejected bool
	Err      string
	Latency  time.Duration
}

// IntervalTrigger ticks on a fixed period, starting immediately.
type IntervalTrigger struct {
	interval time.Duration
}

var _ Trigger = (*IntervalTrigger)(nil)

func NewIntervalTrigger(interval time.Duration) *IntervalTrigger {
	return &IntervalTrigger{interval: interval}
}

func (t *IntervalTrigger) Ticks(ctx context.Context) (<-chan Tick, error) {
	if t.interval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("watch interval must be positive"))
	}

	ch := make(chan Tick, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		ch <- Tick{At: time.Now()}
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case ch <- Tick{At: now}:
				default:
					// Still busy with the previous tick.
				}
			}
		}
	}()
	return ch, nil
}

// Watcher re-quotes a fixed set of pairs on every tick and publishes the results.
type Watcher struct {
	swapper    Swapper
	trigger    Trigger
	pairs      []WatchPair
	publishers []QuotePublisher

	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewWatcher creates a watcher. Publishers receive updates in order; a failing publisher
// does not stop the others.
func NewWatcher(swapper Swapper, trigger Trigger, pairs []WatchPair, publishers []QuotePublisher, log logger.LoggerInterface) *Watcher {
	return &Watcher{
		swapper:    swapper,
		trigger:    trigger,
		pairs:      pairs,
		publishers: publishers,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

// Run blocks until ctx is done or the trigger closes.
func (w *Watcher) Run(ctx context.Context) error {
	ticks, err := w.trigger.Ticks(ctx)
	if err != nil {
		return fmt.Errorf("start trigger: %w", err)
	}

	w.logger.Info(ctx, "quote watcher started", "pairs", len(w.pairs))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "quote watcher stopping", "reason", ctx.Err())
			return nil
		case tick, ok := <-ticks:
			if !ok {
				w.logger.Info(ctx, "quote watcher trigger closed")
				return nil
			}
			w.Refresh(ctx, tick)
		}
	}
}

// Refresh quotes every pair concurrently for one tick and publishes each update.
func (w *Watcher) Refresh(ctx context.Context, tick Tick) []QuoteUpdate {
	ctx, span := w.tracer.Start(ctx, "quoting.watcher.refresh",
		trace.WithAttributes(
			attribute.Int64("block", int64(tick.Block)),
			attribute.Int("pairs", len(w.pairs)),
		),
	)
	defer span.End()

	updates := make([]QuoteUpdate, len(w.pairs))
	var g errgroup.Group
	for i, pair := range w.pairs {
		g.Go(func() error {
			updates[i] = w.quote(ctx, tick, pair)
			return nil
		})
	}
	_ = g.Wait()

	for _, u := range updates {
		w.publish(ctx, u)
	}
	return updates
}

func (w *Watcher) quote(ctx context.Context, tick Tick, pair WatchPair) QuoteUpdate {
	start := time.Now()
	in, out := pair.In.Address(), pair.Out.Address()

	u := QuoteUpdate{
		Block:      tick.Block,
		At:         tick.At,
		Pair:       pair.Name(),
		AmountIn:   asset.NewAmount(pair.In, pair.AmountIn),
		Optimal:    asset.NewAmount(pair.Out, nil),
		Executable: asset.NewAmount(pair.Out, nil),
	}

	optimal, err := w.swapper.FindOptimalSwap(ctx, in, out, pair.AmountIn)
	if err != nil {
		u.Err = err.Error()
	} else {
		u.Optimal = asset.NewAmount(pair.Out, optimal.AmountOut)
		u.OptimalVenue = optimal.Venue
	}

	exec, err := w.swapper.FindExecutableSwap(ctx, in, out, pair.AmountIn)
	switch {
	case apperror.HasCode(err, apperror.CodeSlippageExceeded):
		u.Rejected = true
		u.Err = err.Error()
	case err != nil:
		u.Err = err.Error()
	default:
		u.Executable = asset.NewAmount(pair.Out, exec.AmountOut)
		u.ExecutableVenue = exec.Venue
		u.Pools = exec.Hops()
	}

	if !u.Executable.IsZero() {
		u.Rate = asset.Rate(u.AmountIn, u.Executable)
	} else {
		u.Rate = asset.Rate(u.AmountIn, u.Optimal)
	}
	u.Latency = time.Since(start)

	w.logger.Debug(ctx, "pair quoted",
		"pair", u.Pair,
		"block", u.Block,
		"optimal", u.Optimal.String(),
		"executable", u.Executable.String(),
		"venue", u.ExecutableVenue,
		"rejected", u.Rejected,
		"latency", u.Latency)
	return u
}

func (w *Watcher) publish(ctx context.Context, u QuoteUpdate) {
	for _, p := range w.publishers {
		if err := p.Publish(ctx, u); err != nil {
			w.logger.Warn(ctx, "quote publish failed", "pair", u.Pair, "error", err)
		}
	}
}
