package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/dispatch"
	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/ledger"
	"github.com/tbourn/go-outreach-batch/internal/reconcile"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/table"
	"github.com/tbourn/go-outreach-batch/internal/validate"
)

// HistoryPageSize is the page size used when scanning message history.
const HistoryPageSize = 1000

// SMSRequest names the inputs of one SMS run.
type SMSRequest struct {
	Phones   string // table with ExternalDataReference and SMS_PHONE_CLEAN
	Content  string // text file holding the message body
	Country  string // ISO code of the recipients
	WithLink bool   // append the url column to each body
	// CheckLedger refreshes the bad-recipient ledger from message history
	// and skips every destination it holds.
	CheckLedger bool
}

// SMSReport summarizes an SMS run.
type SMSReport struct {
	Input     int
	Retained  int
	Skipped   int // destinations in the ledger
	Sent      int
	Failed    int
	Output    string
	Duplicate []string
}

// SMSService sends one message per valid row and writes the delivery
// status of each back next to the input.
type SMSService struct {
	Run      *runctx.Run
	Provider Messenger
	From     string
	Chunker  dispatch.Chunker

	// Ledger is consulted when the request asks for it.
	Ledger *ledger.Ledger
}

// Send runs the SMS pipeline for req.
func (s *SMSService) Send(ctx context.Context, req SMSRequest) (SMSReport, error) {
	tr := otel.Tracer("services/SMSService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("input", req.Phones),
			attribute.String("country", req.Country),
			attribute.Bool("link", req.WithLink),
		),
	)
	defer span.End()

	lg := s.Run.Log
	var rep SMSReport
	lg.Info().Str("input", req.Phones).Msgf("starting transactions for %s", req.Phones)

	s.Run.Stage("validate")
	if _, err := domain.LookupCountry(req.Country); err != nil {
		return rep, err
	}
	body, err := readMessage(req.Content)
	if err != nil {
		return rep, err
	}

	orig, err := table.ReadFile(req.Phones, "")
	if err != nil {
		return rep, fmt.Errorf("read %s: %w", req.Phones, err)
	}
	rep.Input = orig.Len()
	s.Run.Metrics.RecordsIn.WithLabelValues("sms").Add(float64(orig.Len()))

	cols := []string{domain.ColExternalID, domain.ColPhone}
	if req.WithLink {
		cols = append(cols, domain.ColURL)
	}
	if err := validate.RequireColumns(orig, cols...); err != nil {
		return rep, err
	}

	valid, gates, err := validate.PhoneChecks(lg, records(orig, req.WithLink), req.Country)
	if err != nil {
		return rep, err
	}
	s.Run.Metrics.Dropped("numeric", gates.NonNumeric)
	s.Run.Metrics.Dropped("length", gates.WrongLength)

	recipients, err := validate.FormatPhones(valid, req.Country)
	if err != nil {
		return rep, err
	}

	if req.CheckLedger && s.Ledger != nil {
		s.Run.Stage("ledger")
		recipients, rep.Skipped, err = s.screen(ctx, recipients)
		if err != nil {
			return rep, err
		}
	}
	rep.Retained = len(recipients)

	items := make([]dispatch.Item, len(recipients))
	for i, r := range recipients {
		items[i] = dispatch.Item{Key: r.ExternalID, To: r.To, Body: body}
		if req.WithLink {
			items[i].Body = body + " " + r.Link
		}
	}

	s.Run.Stage("dispatch")
	s.Run.Progress.SetTotal(len(items))
	ch := s.Chunker
	ch.Log = lg
	ch.Observe = s.Run.Observer("sms")

	results, runErr := ch.Dispatch(ctx, items, func(ctx context.Context, it dispatch.Item) (string, string, error) {
		m, err := s.Provider.Send(ctx, s.From, it.To, it.Body)
		return m.SID, m.Status, err
	})
	for _, r := range results {
		if r.OK() {
			rep.Sent++
		} else {
			rep.Failed++
		}
	}

	outcomes := reconcile.ReferenceOutcomes(results)
	if runErr == nil && rep.Sent > 0 {
		s.Run.Stage("settle")
		if runErr = ch.Settle(ctx); runErr == nil {
			s.Run.Stage("reconcile")
			var collected []domain.Outcome
			collected, runErr = reconcile.CollectStatuses(ctx, lg, results, func(ctx context.Context, ref string) (string, error) {
				m, err := s.Provider.Fetch(ctx, ref)
				return m.Status, err
			})
			if runErr == nil {
				outcomes = collected
			}
		}
	}
	if runErr != nil {
		lg.Warn().Err(runErr).Msg("run interrupted; writing the statuses known so far")
	}

	s.Run.Stage("write")
	merged, dups, err := reconcile.Merge(orig, domain.ColExternalID, reconcile.MessageColumns, outcomes)
	if err != nil {
		return rep, err
	}
	if len(dups) > 0 {
		lg.Warn().Strs("keys", dups).Msg("repeated ExternalDataReference values; first status kept")
	}
	rep.Duplicate = dups
	rep.Output = table.DerivePath(req.Phones, "_delivery", "")
	if err := table.WriteFile(rep.Output, merged); err != nil {
		return rep, fmt.Errorf("write %s: %w", rep.Output, err)
	}
	span.SetAttributes(attribute.Int("sent", rep.Sent), attribute.Int("failed", rep.Failed))
	lg.Info().Str("output", rep.Output).Int("sent", rep.Sent).Int("failed", rep.Failed).
		Msgf("closing log for %s", req.Phones)
	return rep, runErr
}

// screen refreshes the ledger from message history and drops every
// recipient it holds.
func (s *SMSService) screen(ctx context.Context, recipients []domain.Recipient) ([]domain.Recipient, int, error) {
	msgs, err := s.Provider.List(ctx, HistoryPageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list message history: %w", err)
	}
	history := make([]ledger.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if code := m.Code(); code != 0 {
			history = append(history, ledger.HistoryEntry{To: m.To, ErrorCode: code})
		}
	}

	l := *s.Ledger
	l.Log = s.Run.Log
	set, err := l.Refresh(ctx, history)
	if err != nil {
		return nil, 0, fmt.Errorf("refresh ledger: %w", err)
	}
	s.Run.Metrics.LedgerSize.Set(float64(set.Len()))

	kept, removed := set.Filter(recipients)
	s.Run.Metrics.Dropped("ledger", removed)
	if removed > 0 {
		s.Run.Log.Info().Int("skipped", removed).Msg("skipping known bad numbers")
	}
	return kept, removed, nil
}

// readMessage loads a message body and trims surrounding newlines.
func readMessage(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	body := strings.Trim(string(b), "\r\n")
	if err := validate.CheckMessage(body); err != nil {
		return "", err
	}
	return body, nil
}

func records(t *table.Table, withLink bool) []domain.Record {
	out := make([]domain.Record, t.Len())
	for r := range t.Rows {
		out[r] = domain.Record{
			Row:         r,
			ExternalID:  t.Get(r, domain.ColExternalID),
			Destination: t.Get(r, domain.ColPhone),
		}
		if withLink {
			out[r].Link = t.Get(r, domain.ColURL)
		}
	}
	return out
}
