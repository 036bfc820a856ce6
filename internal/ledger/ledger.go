package ledger

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

// DefaultExcludedCodes are provider error codes that never mark a
// destination as bad. 30001 is Twilio's queue overflow, a sender-side
// condition.
var DefaultExcludedCodes = []int{30001}

// HistoryEntry is one message from the provider's sending history.
type HistoryEntry struct {
	To        string
	ErrorCode int
}

// Set is an ordered, deduplicated set of destinations. A folded set
// compares case-insensitively.
type Set struct {
	items []string
	index map[string]struct{}
	fold  bool
}

// NewSet builds a set from items, dropping repeats and blanks.
func NewSet(items []string) Set { return newSet(items, false) }

// NewFoldedSet builds a case-insensitive set, as used for e-mail addresses.
func NewFoldedSet(items []string) Set { return newSet(items, true) }

func newSet(items []string, fold bool) Set {
	s := Set{index: make(map[string]struct{}, len(items)), fold: fold}
	s.add(items...)
	return s
}

func (s *Set) norm(v string) string {
	v = strings.TrimSpace(v)
	if s.fold {
		v = strings.ToLower(v)
	}
	return v
}

// add appends values not yet present and returns how many were new.
func (s *Set) add(vals ...string) int {
	n := 0
	for _, v := range vals {
		k := s.norm(v)
		if k == "" {
			continue
		}
		if _, ok := s.index[k]; ok {
			continue
		}
		s.index[k] = struct{}{}
		s.items = append(s.items, k)
		n++
	}
	return n
}

// Contains reports whether v is in the set.
func (s Set) Contains(v string) bool {
	_, ok := s.index[s.norm(v)]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s.items) }

// Items returns the members in insertion order.
func (s Set) Items() []string { return slices.Clone(s.items) }

// Filter removes recipients whose destination is in the set. Order is
// preserved.
func (s Set) Filter(recipients []domain.Recipient) (kept []domain.Recipient, removed int) {
	kept = make([]domain.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if s.Contains(r.To) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed
}

// FilterTable returns a copy of t without the rows whose col value is in
// the set.
func (s Set) FilterTable(t *table.Table, col string) (*table.Table, int) {
	out := table.New(t.Columns...)
	removed := 0
	for r, row := range t.Rows {
		if s.Contains(t.Get(r, col)) {
			removed++
			continue
		}
		out.Rows = append(out.Rows, slices.Clone(row))
	}
	return out, removed
}

// Ledger is the bad-recipient ledger backed by a Store.
type Ledger struct {
	Store    Store
	Excluded []int
	Log      zerolog.Logger
}

// Load returns the persisted set.
func (l *Ledger) Load(ctx context.Context) (Set, error) {
	items, err := l.Store.Load(ctx)
	if err != nil {
		return Set{}, err
	}
	return NewSet(items), nil
}

// Refresh adds every destination in history that failed with an error code
// outside the excluded set, keeps existing entries first in their stored
// order, persists the result and returns it.
func (l *Ledger) Refresh(ctx context.Context, history []HistoryEntry) (Set, error) {
	tr := otel.Tracer("ledger")
	ctx, span := tr.Start(ctx, "Refresh",
		trace.WithAttributes(attribute.Int("history", len(history))),
	)
	defer span.End()

	set, err := l.Load(ctx)
	if err != nil {
		return Set{}, err
	}
	before := set.Len()

	for _, h := range history {
		if h.ErrorCode == 0 || slices.Contains(l.excluded(), h.ErrorCode) {
			continue
		}
		set.add(h.To)
	}

	if err := l.Store.Save(ctx, set.items); err != nil {
		return Set{}, err
	}
	l.Log.Info().Int("known", before).Int("added", set.Len()-before).Msg("bad-recipient ledger refreshed")
	span.SetAttributes(attribute.Int("size", set.Len()))
	return set, nil
}

func (l *Ledger) excluded() []int {
	if l.Excluded == nil {
		return DefaultExcludedCodes
	}
	return l.Excluded
}

// LoadBlacklist reads the payments blacklist as a case-insensitive set.
func LoadBlacklist(ctx context.Context, s Store) (Set, error) {
	items, err := s.Load(ctx)
	if err != nil {
		return Set{}, err
	}
	return NewFoldedSet(items), nil
}
