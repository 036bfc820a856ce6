package batching

import (
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

func seeded() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }

// scripted returns queued values, then 1 forever.
type scripted struct{ vals []int }

func (s *scripted) IntN(n int) int {
	if len(s.vals) == 0 {
		return 1
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v % n
}

func batchSizes(as []domain.Assignment) map[string]int {
	m := make(map[string]int)
	for _, a := range as {
		m[a.BatchID]++
	}
	return m
}

func TestToken_SixDistinctAlphanumerics(t *testing.T) {
	a := New(DefaultSize, seeded())
	for i := 0; i < 200; i++ {
		tok := a.Token()
		if len(tok) != TokenLen {
			t.Fatalf("token %q has length %d", tok, len(tok))
		}
		seen := map[rune]bool{}
		for _, r := range tok {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("token %q has character %q outside the alphabet", tok, r)
			}
			if seen[r] {
				t.Fatalf("token %q repeats %q", tok, r)
			}
			seen[r] = true
		}
	}
}

func TestAssign_300Records(t *testing.T) {
	as := New(250, seeded()).Assign(300)
	if len(as) != 300 {
		t.Fatalf("len = %d", len(as))
	}
	sizes := batchSizes(as)
	if len(sizes) != 2 {
		t.Fatalf("batches = %v", sizes)
	}
	if sizes[as[0].BatchID] != 250 || sizes[as[299].BatchID] != 50 {
		t.Fatalf("sizes = %v", sizes)
	}

	items := map[string]bool{}
	for i, a := range as {
		if items[a.ItemID] {
			t.Fatalf("duplicate item id %q", a.ItemID)
		}
		items[a.ItemID] = true
		if want := ItemID(a.BatchID, i); a.ItemID != want {
			t.Fatalf("item %d = %q, want %q", i, a.ItemID, want)
		}
	}
}

func TestAssign_FullBatchesSortedAndContiguous(t *testing.T) {
	as := New(10, seeded()).Assign(45)
	var order []string
	for i, a := range as {
		if i == 0 || as[i-1].BatchID != a.BatchID {
			order = append(order, a.BatchID)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 contiguous runs, got %v", order)
	}
	full := order[:4]
	if !sort.StringsAreSorted(full) {
		t.Fatalf("full batch tokens not sorted: %v", full)
	}
	if n := batchSizes(as)[order[4]]; n != 5 {
		t.Fatalf("remainder batch has %d records", n)
	}
}

func TestAssign_EdgeCounts(t *testing.T) {
	cases := []struct {
		n, size, batches int
	}{
		{0, 250, 0},
		{1, 250, 1},
		{249, 250, 1},
		{250, 250, 1},
		{500, 250, 2},
		{501, 250, 3},
	}
	for _, tc := range cases {
		as := New(tc.size, seeded()).Assign(tc.n)
		if len(as) != tc.n || len(batchSizes(as)) != tc.batches {
			t.Fatalf("Assign(%d) = %d records in %d batches, want %d batches", tc.n, len(as), len(batchSizes(as)), tc.batches)
		}
	}
}

func TestAssign_RedrawsCollidingTokens(t *testing.T) {
	src := &scripted{vals: make([]int, 2*TokenLen)}
	as := New(1, src).Assign(2)
	if as[0].BatchID != "abcdef" || as[1].BatchID != "bcdefg" {
		t.Fatalf("batches = %q, %q", as[0].BatchID, as[1].BatchID)
	}
}

func TestAssign_ZeroValueUsesDefaults(t *testing.T) {
	var a Assigner
	as := a.Assign(DefaultSize + 1)
	if len(batchSizes(as)) != 2 {
		t.Fatalf("zero-value assigner should use DefaultSize")
	}
}

func sheet() *table.Table {
	tb := table.New(domain.ColFirstName, domain.ColReceiverEmail, domain.ColValue)
	tb.Append("ana", "ana@example.com", "10")
	tb.Append("ben", "ben@example.com", "5")
	tb.Append("cy", "cy@example.org", "7.5")
	return tb
}

func TestEnrich_NewWorksheet(t *testing.T) {
	tb := sheet()
	if n := Enrich(tb, New(2, seeded())); n != 3 {
		t.Fatalf("Enrich assigned %d rows", n)
	}
	for _, col := range []string{domain.ColBatchID, domain.ColCurrency, domain.ColItemID, domain.ColProcessedCode} {
		if !tb.Has(col) {
			t.Fatalf("missing column %s", col)
		}
	}
	ps := Payees(tb)
	for i, p := range ps {
		if p.Currency != domain.CurrencyUSD || p.ProcessedCode != "" || p.ItemID != ItemID(p.BatchID, i) {
			t.Fatalf("payee %d = %+v", i, p)
		}
	}
	if ps[0].BatchID != ps[1].BatchID || ps[1].BatchID == ps[2].BatchID {
		t.Fatalf("unexpected batching: %+v", ps)
	}
}

func TestEnrich_KeepsExistingIDs(t *testing.T) {
	tb := sheet()
	tb.EnsureColumn(domain.ColBatchID)
	tb.EnsureColumn(domain.ColItemID)
	tb.EnsureColumn(domain.ColProcessedCode)
	tb.EnsureColumn(domain.ColCurrency)
	_ = tb.Set(0, domain.ColBatchID, "OLDBAT")
	_ = tb.Set(0, domain.ColItemID, "OLDBAT_0")
	_ = tb.Set(0, domain.ColProcessedCode, "PAID123")
	_ = tb.Set(0, domain.ColCurrency, "PHP")

	if n := Enrich(tb, New(250, seeded())); n != 2 {
		t.Fatalf("Enrich assigned %d rows, want 2", n)
	}
	ps := Payees(tb)
	if ps[0].BatchID != "OLDBAT" || ps[0].ProcessedCode != "PAID123" || ps[0].Currency != "PHP" {
		t.Fatalf("existing row rewritten: %+v", ps[0])
	}
	if ps[1].BatchID == "OLDBAT" || ps[1].BatchID != ps[2].BatchID {
		t.Fatalf("fresh rows = %+v %+v", ps[1], ps[2])
	}

	pending := Pending(ps)
	if len(pending) != 2 || pending[0].Row != 1 {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestGroup_SortedByBatchPreservingOrder(t *testing.T) {
	ps := []domain.Payee{
		{Row: 0, BatchID: "zz"},
		{Row: 1, BatchID: "aa"},
		{Row: 2, BatchID: "zz"},
		{Row: 3, BatchID: "aa"},
	}
	got := Group(ps)
	if len(got) != 2 || got[0].ID != "aa" || got[1].ID != "zz" {
		t.Fatalf("groups = %+v", got)
	}
	if got[0].Payees[0].Row != 1 || got[0].Payees[1].Row != 3 || got[1].Payees[1].Row != 2 {
		t.Fatalf("member order lost: %+v", got)
	}
}
