// Package dispatch sends records to a provider one at a time, in fixed-size
// chunks separated by a pause, and captures a DispatchResult for every item.
// A failed send is recorded and the run moves on; only cancellation of the
// context stops a dispatch early.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// Defaults for SMS dispatch.
const (
	DefaultChunkSize  = 75
	DefaultPause      = 10 * time.Second
	DefaultSettlement = 45 * time.Second
)

// Item is one unit of work. Key identifies the source record and becomes
// DispatchResult.Key.
type Item struct {
	Key  string
	To   string
	Body string
}

// SendFunc performs one provider call and returns the provider reference
// and status of the created resource.
type SendFunc func(ctx context.Context, it Item) (reference, status string, err error)

// Chunker paces sequential provider calls.
type Chunker struct {
	Size       int
	Pause      time.Duration
	Settlement time.Duration

	// Limiter throttles individual calls when set.
	Limiter *rate.Limiter

	Log zerolog.Logger

	// Observe, when set, receives every result as it is produced together
	// with the duration of the provider call.
	Observe func(res domain.DispatchResult, took time.Duration)

	// Sleep replaces the context-aware timer, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter returns a limiter allowing rps calls per second with the given
// burst, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}

// Dispatch calls send once per item, in order, chunk by chunk. After each
// chunk it logs the running number of successful sends and, unless it was
// the last chunk, waits Pause. It returns one result per item attempted;
// the error is non-nil only when ctx ended the run early, in which case the
// results cover the items sent before that point.
func (c *Chunker) Dispatch(ctx context.Context, items []Item, send SendFunc) ([]domain.DispatchResult, error) {
	tr := otel.Tracer("dispatch/Chunker")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.Int("items", len(items)),
			attribute.Int("chunk.size", c.size()),
		),
	)
	defer span.End()

	results := make([]domain.DispatchResult, 0, len(items))
	chunks := Chunks(items, c.size())
	ok := 0
	for i, chunk := range chunks {
		for _, it := range chunk {
			if err := c.wait(ctx); err != nil {
				return results, err
			}
			res := domain.DispatchResult{Key: it.Key}
			start := time.Now()
			res.Reference, res.Status, res.Err = send(ctx, it)
			took := time.Since(start)
			if res.OK() {
				ok++
			} else {
				c.Log.Warn().Err(res.Err).Str("key", it.Key).Msg("send failed")
			}
			results = append(results, res)
			if c.Observe != nil {
				c.Observe(res, took)
			}
		}
		c.Log.Info().Int("processed", ok).Int("chunk", i+1).Int("chunks", len(chunks)).
			Msgf("processed %d messages", ok)

		if i < len(chunks)-1 {
			if err := c.sleep(ctx, c.Pause); err != nil {
				return results, err
			}
		}
	}
	span.SetAttributes(attribute.Int("succeeded", ok))
	return results, nil
}

// Settle waits the settlement interval so the provider can report a
// delivery status for the messages just sent.
func (c *Chunker) Settle(ctx context.Context) error {
	c.Log.Info().Dur("wait", c.Settlement).Msg("waiting for statuses to settle")
	return c.sleep(ctx, c.Settlement)
}

func (c *Chunker) size() int {
	if c.Size < 1 {
		return DefaultChunkSize
	}
	return c.Size
}

func (c *Chunker) wait(ctx context.Context) error {
	if c.Limiter != nil {
		return c.Limiter.Wait(ctx)
	}
	return ctx.Err()
}

func (c *Chunker) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
