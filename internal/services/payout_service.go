package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/batching"
	"github.com/tbourn/go-outreach-batch/internal/dispatch"
	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/ledger"
	"github.com/tbourn/go-outreach-batch/internal/providers/paypal"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/table"
	"github.com/tbourn/go-outreach-batch/internal/validate"
)

const processedSuffix = "_processed"

// PayoutRequest names the inputs of one payout run.
type PayoutRequest struct {
	// Data is the payments workbook (read from the sheet named Study) or a
	// worksheet written by an earlier run. A workbook whose processed
	// worksheet already exists resumes from that worksheet.
	Data  string
	Study string
	// Template overrides where the subject and body come from. Empty means
	// the Template sheet of the payments workbook.
	Template string
}

// PayoutReport summarizes a payout run.
type PayoutReport struct {
	Rows        int
	Blacklisted int
	Enriched    int
	Pending     int
	Batches     int
	Paid        int // batches accepted by the provider
	Failed      int
	Output      string
}

// PayoutService pays every unpaid worksheet row, one provider request per
// batch, and records the provider's batch code against the rows it paid.
type PayoutService struct {
	Run      *runctx.Run
	Provider Payouts
	Chunker  dispatch.Chunker
	Assigner *batching.Assigner

	// Blacklist holds receiver e-mails that are never paid. Nil disables it.
	Blacklist ledger.Store

	// MaxBatch is the largest batch the provider accepts.
	MaxBatch int
}

// Pay runs the payout pipeline for req.
func (s *PayoutService) Pay(ctx context.Context, req PayoutRequest) (PayoutReport, error) {
	tr := otel.Tracer("services/PayoutService")
	ctx, span := tr.Start(ctx, "Pay",
		trace.WithAttributes(
			attribute.String("input", req.Data),
			attribute.String("study", req.Study),
		),
	)
	defer span.End()

	lg := s.Run.Log
	var rep PayoutReport
	lg.Info().Str("input", req.Data).Str("study", req.Study).Msgf("starting transactions for %s", req.Data)

	data, tplPath, err := payoutSources(req)
	if err != nil {
		return rep, err
	}
	if data != req.Data {
		lg.Info().Str("worksheet", data).Msg("resuming from processed worksheet")
	}

	s.Run.Stage("validate")
	t, err := s.worksheet(ctx, data, req.Study, &rep)
	if err != nil {
		return rep, err
	}

	tpl, err := LoadTemplate(tplPath, req.Study)
	if err != nil {
		return rep, err
	}

	pending := batching.Pending(batching.Payees(t))
	rep.Pending = len(pending)
	if len(pending) == 0 {
		lg.Info().Msg("no new transactions to process")
		return rep, nil
	}

	if err := validate.PayeeChecks(pending, s.maxBatch()); err != nil {
		return rep, err
	}
	if err := validate.CheckPayoutMessage(tpl.Subject, tpl.Body); err != nil {
		return rep, err
	}

	batches := batching.Group(pending)
	rep.Batches = len(batches)

	s.Run.Stage("dispatch")
	s.Run.Progress.SetTotal(len(batches))
	ch := s.Chunker
	ch.Log = lg
	ch.Observe = s.Run.Observer("payout")
	results, runErr := ch.DispatchBatches(ctx, batches, func(ctx context.Context, b batching.Batch) (string, string, error) {
		d, err := s.Provider.Create(ctx, BuildPayout(b, tpl))
		return d.BatchHeader.PayoutBatchID, d.BatchHeader.BatchStatus, err
	})

	members := make(map[string][]int, len(batches))
	for _, b := range batches {
		for _, p := range b.Payees {
			members[b.ID] = append(members[b.ID], p.Row)
		}
	}
	for _, res := range results {
		if !res.OK() {
			rep.Failed++
			continue
		}
		rep.Paid++
		for _, row := range members[res.Key] {
			if strings.TrimSpace(t.Get(row, domain.ColProcessedCode)) == "" {
				_ = t.Set(row, domain.ColProcessedCode, res.Reference)
			}
		}
	}
	if runErr != nil {
		lg.Warn().Err(runErr).Msg("run interrupted; writing the batches processed so far")
	}

	s.Run.Stage("write")
	rep.Output = ProcessedPath(data)
	if err := table.WriteFile(rep.Output, t); err != nil {
		return rep, fmt.Errorf("write %s: %w", rep.Output, err)
	}
	span.SetAttributes(attribute.Int("paid", rep.Paid), attribute.Int("failed", rep.Failed))
	lg.Info().Str("output", rep.Output).Int("paid", rep.Paid).Int("failed", rep.Failed).
		Msgf("closing log for %s", req.Data)
	return rep, runErr
}

// payoutSources picks the worksheet and template files of req. Batch ids
// are assigned once: a workbook that was already processed is read back
// from its processed worksheet, never enriched again.
func payoutSources(req PayoutRequest) (data, tpl string, err error) {
	data, tpl = req.Data, req.Template
	if table.IsWorkbook(req.Data) {
		if tpl == "" {
			tpl = req.Data
		}
		if p := ProcessedPath(req.Data); exists(p) {
			data = p
		}
		return data, tpl, nil
	}
	if tpl == "" {
		tpl = sourceWorkbook(req.Data)
	}
	if tpl == "" {
		return "", "", domain.NewSchemaError(ErrTemplateRequired, "%s", filepath.Base(req.Data))
	}
	return data, tpl, nil
}

// sourceWorkbook returns the payments workbook a processed worksheet was
// derived from, or "" when there is none on disk.
func sourceWorkbook(worksheet string) string {
	stem := strings.TrimSuffix(worksheet, filepath.Ext(worksheet))
	if !strings.HasSuffix(stem, processedSuffix) {
		return ""
	}
	stem = strings.TrimSuffix(stem, processedSuffix)
	for _, ext := range []string{".xlsx", ".xlsm"} {
		if exists(stem + ext) {
			return stem + ext
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// worksheet loads the payments sheet, removes blacklisted receivers and
// enriches it with batch and item ids.
func (s *PayoutService) worksheet(ctx context.Context, path, study string, rep *PayoutReport) (*table.Table, error) {
	t, err := table.ReadFile(path, study)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rep.Rows = t.Len()
	s.Run.Metrics.RecordsIn.WithLabelValues("payout").Add(float64(t.Len()))

	if err := validate.RequireColumns(t, domain.ColFirstName, domain.ColReceiverEmail, domain.ColValue); err != nil {
		return nil, err
	}

	if s.Blacklist != nil {
		bl, err := ledger.LoadBlacklist(ctx, s.Blacklist)
		if err != nil {
			return nil, fmt.Errorf("load blacklist: %w", err)
		}
		t, rep.Blacklisted = bl.FilterTable(t, domain.ColReceiverEmail)
		s.Run.Metrics.Dropped("blacklist", rep.Blacklisted)
		if rep.Blacklisted > 0 {
			s.Run.Log.Info().Int("removed", rep.Blacklisted).Msg("removed blacklisted addresses")
		}
	}

	a := s.Assigner
	if a == nil {
		a = batching.New(s.maxBatch(), nil)
	}
	rep.Enriched = batching.Enrich(t, a)
	return t, nil
}

func (s *PayoutService) maxBatch() int {
	if s.MaxBatch < 1 {
		return validate.MaxBatchSize
	}
	return s.MaxBatch
}

// BuildPayout renders the provider request of one batch. Payees must have
// passed the payee gates, which title-case names and parse amounts.
func BuildPayout(b batching.Batch, tpl Template) paypal.Payout {
	items := make([]paypal.Item, len(b.Payees))
	for i, p := range b.Payees {
		items[i] = paypal.Item{
			RecipientType: "EMAIL",
			Amount: paypal.Amount{
				Value:    fmt.Sprintf("%.2f", p.Amount),
				Currency: string(p.Currency),
			},
			Receiver:     strings.TrimSpace(p.ReceiverEmail),
			Note:         RenderNote(tpl.Body, p.FirstName),
			SenderItemID: p.ItemID,
		}
	}
	return paypal.Payout{
		SenderBatchHeader: paypal.SenderBatchHeader{
			SenderBatchID: b.ID,
			EmailSubject:  tpl.Subject,
		},
		Items: items,
	}
}

// ProcessedPath is where a payout run writes its worksheet: a CSV sibling
// of the input with a _processed suffix. A worksheet that already carries
// the suffix is written back in place, so re-runs update one file.
func ProcessedPath(input string) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	if strings.HasSuffix(stem, processedSuffix) {
		return stem + ".csv"
	}
	return table.DerivePath(input, processedSuffix, ".csv")
}
