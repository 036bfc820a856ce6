package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/batching"
	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// CreateFunc submits one payout batch and returns the provider's batch
// reference and status.
type CreateFunc func(ctx context.Context, b batching.Batch) (reference, status string, err error)

// DispatchBatches sends one request per batch in the order given (callers
// pass batching.Group output, which is sorted by batch id). A failed batch
// is logged and recorded; the remaining batches are still sent.
func (c *Chunker) DispatchBatches(ctx context.Context, batches []batching.Batch, create CreateFunc) ([]domain.DispatchResult, error) {
	tr := otel.Tracer("dispatch/Chunker")
	ctx, span := tr.Start(ctx, "DispatchBatches",
		trace.WithAttributes(attribute.Int("batches", len(batches))),
	)
	defer span.End()

	results := make([]domain.DispatchResult, 0, len(batches))
	for _, b := range batches {
		if err := c.wait(ctx); err != nil {
			return results, err
		}
		res := domain.DispatchResult{Key: b.ID}
		start := time.Now()
		res.Reference, res.Status, res.Err = create(ctx, b)
		took := time.Since(start)
		if res.OK() {
			c.Log.Info().Str("batch_id", b.ID).Str("processed_code", res.Reference).Int("items", len(b.Payees)).
				Msg("payout batch processed")
		} else {
			c.Log.Warn().Err(res.Err).Str("batch_id", b.ID).Msg("payout batch failed")
		}
		results = append(results, res)
		if c.Observe != nil {
			c.Observe(res, took)
		}
	}
	return results, nil
}
