package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/dispatch"
	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/providers/bitly"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/table"
	"github.com/tbourn/go-outreach-batch/internal/validate"
)

// ShortenReport summarizes a shortening run.
type ShortenReport struct {
	Input     int
	Shortened int
	Failed    int
	Output    string
}

// ShortenService replaces every long link with a short one. The chunker
// paces the provider: its Size is the number of calls between pauses.
type ShortenService struct {
	Run      *runctx.Run
	Provider Shortener
	Chunker  dispatch.Chunker
}

// Shorten reads the link column of path and writes <stem>_bitly<ext> with a
// url column holding the short link, or the provider's reason when a link
// could not be shortened.
func (s *ShortenService) Shorten(ctx context.Context, path string) (ShortenReport, error) {
	tr := otel.Tracer("services/ShortenService")
	ctx, span := tr.Start(ctx, "Shorten", trace.WithAttributes(attribute.String("input", path)))
	defer span.End()

	lg := s.Run.Log
	var rep ShortenReport

	s.Run.Stage("validate")
	t, err := table.ReadFile(path, "")
	if err != nil {
		return rep, fmt.Errorf("read %s: %w", path, err)
	}
	rep.Input = t.Len()
	s.Run.Metrics.RecordsIn.WithLabelValues("shorten").Add(float64(t.Len()))
	if err := validate.RequireColumns(t, domain.ColLink); err != nil {
		return rep, err
	}

	items := make([]dispatch.Item, t.Len())
	for r := range t.Rows {
		items[r] = dispatch.Item{Key: strconv.Itoa(r), To: t.Get(r, domain.ColLink)}
	}

	s.Run.Stage("dispatch")
	s.Run.Progress.SetTotal(len(items))
	ch := s.Chunker
	ch.Log = lg
	ch.Observe = s.Run.Observer("shorten")
	results, runErr := ch.Dispatch(ctx, items, func(ctx context.Context, it dispatch.Item) (string, string, error) {
		short, err := s.Provider.Shorten(ctx, it.To)
		return short, "", err
	})

	s.Run.Stage("write")
	out := t.Clone()
	out.EnsureColumn(domain.ColURL)
	for _, res := range results {
		row, _ := strconv.Atoi(res.Key)
		val := res.Reference
		if res.OK() {
			rep.Shortened++
		} else {
			rep.Failed++
			val = failureText(res.Err)
		}
		if err := out.Set(row, domain.ColURL, val); err != nil {
			return rep, err
		}
	}
	if runErr != nil {
		lg.Warn().Err(runErr).Int("done", len(results)).Msg("run interrupted; writing the links shortened so far")
	}

	rep.Output = table.DerivePath(path, "_bitly", "")
	if err := table.WriteFile(rep.Output, out); err != nil {
		return rep, fmt.Errorf("write %s: %w", rep.Output, err)
	}
	lg.Info().Str("output", rep.Output).Int("shortened", rep.Shortened).Int("failed", rep.Failed).Msg("links shortened")
	return rep, runErr
}

// failureText is what lands in the url cell of a link that failed: the
// provider's status text when it gave one.
func failureText(err error) string {
	var se *bitly.StatusError
	if errors.As(err, &se) {
		return se.StatusTxt
	}
	return ""
}
