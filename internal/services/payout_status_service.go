package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/reconcile"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/table"
	"github.com/tbourn/go-outreach-batch/internal/validate"
)

// FinalColumns is the column order of the reconciled payout report.
var FinalColumns = []string{
	domain.ColBatchID,
	domain.ColFirstName,
	domain.ColReceiverEmail,
	domain.ColValue,
	domain.ColCurrency,
	domain.ColItemID,
	domain.ColProcessedCode,
	domain.ColPayoutItemID,
	domain.ColTransactionStatus,
	domain.ColError,
}

// PayoutStatusReport summarizes a reconciliation run.
type PayoutStatusReport struct {
	Rows      int
	Batches   int
	Found     int
	Failed    int
	Duplicate []string
	Output    string
}

// PayoutStatusService looks up every processed batch of a worksheet and
// writes the per-item payout state next to it.
type PayoutStatusService struct {
	Run      *runctx.Run
	Provider Payouts
}

// Reconcile reads the worksheet at path and writes <stem>_final<ext>.
func (s *PayoutStatusService) Reconcile(ctx context.Context, path string) (PayoutStatusReport, error) {
	tr := otel.Tracer("services/PayoutStatusService")
	ctx, span := tr.Start(ctx, "Reconcile", trace.WithAttributes(attribute.String("input", path)))
	defer span.End()

	lg := s.Run.Log
	var rep PayoutStatusReport

	s.Run.Stage("validate")
	t, err := table.ReadFile(path, "")
	if err != nil {
		return rep, fmt.Errorf("read %s: %w", path, err)
	}
	rep.Rows = t.Len()
	s.Run.Metrics.RecordsIn.WithLabelValues("payout-status").Add(float64(t.Len()))
	if err := validate.RequireColumns(t, domain.ColItemID, domain.ColProcessedCode); err != nil {
		return rep, err
	}

	codes := processedCodes(t)
	rep.Batches = len(codes)
	if len(codes) == 0 {
		return rep, ErrNoProcessedBatches
	}

	s.Run.Stage("lookup")
	s.Run.Progress.SetTotal(len(codes))
	observe := s.Run.Observer("payout_status")
	var items []domain.PayoutItem
	var runErr error
	for _, code := range codes {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		start := time.Now()
		d, err := s.Provider.Find(ctx, code)
		observe(domain.DispatchResult{Key: code, Reference: code, Status: d.BatchHeader.BatchStatus, Err: err}, time.Since(start))
		if err != nil {
			rep.Failed++
			lg.Warn().Err(err).Str("processed_code", code).Msg("payout batch lookup failed")
			continue
		}
		rep.Found++
		lg.Info().Str("processed_code", code).Str("status", d.BatchHeader.BatchStatus).
			Int("items", len(d.Items)).Msg("payout batch found")
		items = append(items, d.PayoutItems()...)
	}
	if runErr != nil {
		lg.Warn().Err(runErr).Msg("run interrupted; writing the batches found so far")
	}

	s.Run.Stage("write")
	merged, dups, err := reconcile.Merge(t, domain.ColItemID, reconcile.PayoutColumns, reconcile.PayoutItemsOutcomes(items))
	if err != nil {
		return rep, err
	}
	if len(dups) > 0 {
		lg.Warn().Strs("keys", dups).Msg("repeated item ids in provider response; first kept")
	}
	rep.Duplicate = dups

	rep.Output = table.DerivePath(path, "_final", "")
	if err := table.WriteFile(rep.Output, merged.Select(FinalColumns...)); err != nil {
		return rep, fmt.Errorf("write %s: %w", rep.Output, err)
	}
	span.SetAttributes(attribute.Int("found", rep.Found), attribute.Int("failed", rep.Failed))
	lg.Info().Str("output", rep.Output).Int("found", rep.Found).Int("failed", rep.Failed).
		Msgf("closing log for %s", path)
	return rep, runErr
}

// processedCodes returns the distinct non-empty processed codes of t in
// first-seen order.
func processedCodes(t *table.Table) []string {
	seen := make(map[string]bool)
	var out []string
	for r := range t.Rows {
		c := strings.TrimSpace(t.Get(r, domain.ColProcessedCode))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
