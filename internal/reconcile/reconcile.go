// Package reconcile joins asynchronous provider outcomes back onto the
// table a run started from. A merge never adds, drops or reorders input
// rows: every input row appears exactly once in the output, with empty
// cells where no outcome arrived.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

// MessageColumns are the columns CollectStatuses outcomes line up with.
var MessageColumns = []string{domain.ColMessageStatus, domain.ColMessageReference}

// PayoutColumns are the columns PayoutItemsOutcomes outcomes line up with.
var PayoutColumns = []string{domain.ColPayoutItemID, domain.ColTransactionStatus, domain.ColError}

// FetchFunc returns the current status of a provider reference.
type FetchFunc func(ctx context.Context, reference string) (status string, err error)

// CollectStatuses fetches the status of every successful dispatch result.
// Failed results produce no outcome. A failed fetch keeps the reference with
// an empty status. The error is non-nil only when ctx ended collection
// early; outcomes gathered so far are returned with it.
func CollectStatuses(ctx context.Context, lg zerolog.Logger, results []domain.DispatchResult, fetch FetchFunc) ([]domain.Outcome, error) {
	tr := otel.Tracer("reconcile")
	ctx, span := tr.Start(ctx, "CollectStatuses",
		trace.WithAttributes(attribute.Int("results", len(results))),
	)
	defer span.End()

	out := make([]domain.Outcome, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		status, err := fetch(ctx, r.Reference)
		if err != nil {
			lg.Warn().Err(err).Str("key", r.Key).Str("reference", r.Reference).Msg("status fetch failed")
			status = ""
		}
		out = append(out, domain.Outcome{Key: r.Key, Values: []string{status, r.Reference}})
	}
	return out, nil
}

// ReferenceOutcomes turns successful results into outcomes without a status
// lookup, for runs cut short before statuses were collected.
func ReferenceOutcomes(results []domain.DispatchResult) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, domain.Outcome{Key: r.Key, Values: []string{r.Status, r.Reference}})
		}
	}
	return out
}

// PayoutItemsOutcomes turns payout item details into outcomes keyed by
// item_id. The error column carries the provider error name only for items
// whose status contains FAILED.
func PayoutItemsOutcomes(items []domain.PayoutItem) []domain.Outcome {
	out := make([]domain.Outcome, len(items))
	for i, it := range items {
		errName := ""
		if strings.Contains(it.TransactionStatus, "FAILED") {
			errName = it.ErrorName
		}
		out[i] = domain.Outcome{
			Key:    it.ItemID,
			Values: []string{it.PayoutItemID, it.TransactionStatus, errName},
		}
	}
	return out
}

// Merge left-joins outcomes onto original by the key column and returns a
// new table: original rows in their original order, with columns appended
// (or overwritten when already present). Rows without an outcome get empty
// cells. When several outcomes share a key the first one wins and the
// repeated keys are returned in dups. original is not modified.
func Merge(original *table.Table, key string, columns []string, outcomes []domain.Outcome) (merged *table.Table, dups []string, err error) {
	if original.Index(key) < 0 {
		return nil, nil, fmt.Errorf("merge key %q: %w", key, table.ErrNoSuchColumn)
	}

	byKey := make(map[string][]string, len(outcomes))
	for _, o := range outcomes {
		if len(o.Values) != len(columns) {
			return nil, nil, fmt.Errorf("outcome %q has %d values for %d columns", o.Key, len(o.Values), len(columns))
		}
		if _, seen := byKey[o.Key]; seen {
			dups = append(dups, o.Key)
			continue
		}
		byKey[o.Key] = o.Values
	}

	merged = original.Clone()
	for _, c := range columns {
		merged.EnsureColumn(c)
	}
	for r := range merged.Rows {
		vals := byKey[merged.Get(r, key)]
		for i, c := range columns {
			v := ""
			if vals != nil {
				v = vals[i]
			}
			if err := merged.Set(r, c, v); err != nil {
				return nil, nil, err
			}
		}
	}
	return merged, dups, nil
}
