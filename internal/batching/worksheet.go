package batching

import (
	"sort"
	"strings"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

// Batch is one group of payees sent in a single payout request.
type Batch struct {
	ID     string
	Payees []domain.Payee
}

// Enrich turns a payments sheet into a payout worksheet in place. It adds
// the batch_id, currency, item_id and processed_code columns when absent,
// defaults empty currencies to USD, and assigns batch and item ids to every
// row that does not carry both yet. Rows that already have ids keep them,
// so a worksheet from an earlier run can be sent again and only its unpaid
// rows go out. It returns the number of rows that received new ids.
func Enrich(t *table.Table, a *Assigner) int {
	for _, col := range []string{domain.ColBatchID, domain.ColCurrency, domain.ColItemID, domain.ColProcessedCode} {
		t.EnsureColumn(col)
	}

	var fresh []int
	for r := range t.Rows {
		if strings.TrimSpace(t.Get(r, domain.ColCurrency)) == "" {
			_ = t.Set(r, domain.ColCurrency, string(domain.DefaultCurrency))
		}
		b, id := t.Get(r, domain.ColBatchID), t.Get(r, domain.ColItemID)
		if b == "" || id == "" {
			fresh = append(fresh, r)
			continue
		}
		a.Reserve(b)
	}

	for i, as := range a.Assign(len(fresh)) {
		r := fresh[i]
		_ = t.Set(r, domain.ColBatchID, as.BatchID)
		_ = t.Set(r, domain.ColItemID, as.ItemID)
		_ = t.Set(r, domain.ColProcessedCode, "")
	}
	return len(fresh)
}

// Payees reads every worksheet row as a Payee. Values are left raw; the
// payee gates normalize them.
func Payees(t *table.Table) []domain.Payee {
	out := make([]domain.Payee, t.Len())
	for r := range t.Rows {
		out[r] = domain.Payee{
			Row:           r,
			FirstName:     t.Get(r, domain.ColFirstName),
			ReceiverEmail: t.Get(r, domain.ColReceiverEmail),
			Value:         t.Get(r, domain.ColValue),
			Currency:      domain.Currency(t.Get(r, domain.ColCurrency)),
			BatchID:       t.Get(r, domain.ColBatchID),
			ItemID:        t.Get(r, domain.ColItemID),
			ProcessedCode: strings.TrimSpace(t.Get(r, domain.ColProcessedCode)),
		}
	}
	return out
}

// Pending returns the payees that have not been paid yet.
func Pending(payees []domain.Payee) []domain.Payee {
	out := make([]domain.Payee, 0, len(payees))
	for _, p := range payees {
		if p.ProcessedCode == "" {
			out = append(out, p)
		}
	}
	return out
}

// Group collects payees by batch id. Batches are returned in sorted id
// order and keep the worksheet order of their members.
func Group(payees []domain.Payee) []Batch {
	idx := make(map[string]int)
	var out []Batch
	for _, p := range payees {
		i, ok := idx[p.BatchID]
		if !ok {
			i = len(out)
			idx[p.BatchID] = i
			out = append(out, Batch{ID: p.BatchID})
		}
		out[i].Payees = append(out[i].Payees, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
