package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

func inputTable() *table.Table {
	tb := table.New(domain.ColExternalID, domain.ColPhone)
	tb.Append("A1", "1111111111")
	tb.Append("A2", "2222222222")
	tb.Append("A3", "333333333")
	return tb
}

func TestMerge_LeftJoinPreservesRows(t *testing.T) {
	in := inputTable()
	outcomes := []domain.Outcome{
		{Key: "A1", Values: []string{"delivered", "SM1"}},
		{Key: "A2", Values: []string{"failed", "SM2"}},
	}

	got, dups, err := Merge(in, domain.ColExternalID, MessageColumns, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(dups) != 0 {
		t.Fatalf("dups = %v", dups)
	}
	want := [][]string{
		{"A1", "1111111111", "delivered", "SM1"},
		{"A2", "2222222222", "failed", "SM2"},
		{"A3", "333333333", "", ""},
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("rows = %#v", got.Rows)
	}
	if !reflect.DeepEqual(got.Columns, []string{domain.ColExternalID, domain.ColPhone, domain.ColMessageStatus, domain.ColMessageReference}) {
		t.Fatalf("columns = %v", got.Columns)
	}
}

func TestMerge_IsPureAndRepeatable(t *testing.T) {
	in := inputTable()
	before := in.Clone()
	outcomes := []domain.Outcome{{Key: "A2", Values: []string{"sent", "SM2"}}}

	first, _, err := Merge(in, domain.ColExternalID, MessageColumns, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	second, _, _ := Merge(in, domain.ColExternalID, MessageColumns, outcomes)
	if !reflect.DeepEqual(in, before) {
		t.Fatalf("input mutated: %#v", in)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merges differ")
	}

	again, _, _ := Merge(first, domain.ColExternalID, MessageColumns, outcomes)
	if !reflect.DeepEqual(again, first) {
		t.Fatalf("re-merging onto merged output should overwrite, got %#v", again.Columns)
	}
}

func TestMerge_DuplicateKeysFirstWins(t *testing.T) {
	in := inputTable()
	outcomes := []domain.Outcome{
		{Key: "A1", Values: []string{"delivered", "SM1"}},
		{Key: "A1", Values: []string{"failed", "SM9"}},
	}
	got, dups, err := Merge(in, domain.ColExternalID, MessageColumns, outcomes)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.Len() != in.Len() {
		t.Fatalf("cardinality changed: %d != %d", got.Len(), in.Len())
	}
	if got.Get(0, domain.ColMessageReference) != "SM1" || !reflect.DeepEqual(dups, []string{"A1"}) {
		t.Fatalf("first outcome should win: %#v dups=%v", got.Rows[0], dups)
	}
}

func TestMerge_DuplicateInputKeysBothMatched(t *testing.T) {
	in := table.New("item_id", "value")
	in.Append("X_0", "1")
	in.Append("X_0", "2")
	got, _, err := Merge(in, "item_id", PayoutColumns, []domain.Outcome{{Key: "X_0", Values: []string{"P1", "SUCCESS", ""}}})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.Len() != 2 || got.Get(1, domain.ColPayoutItemID) != "P1" {
		t.Fatalf("rows = %#v", got.Rows)
	}
}

func TestMerge_Errors(t *testing.T) {
	in := inputTable()
	if _, _, err := Merge(in, "nope", MessageColumns, nil); !errors.Is(err, table.ErrNoSuchColumn) {
		t.Fatalf("missing key err = %v", err)
	}
	bad := []domain.Outcome{{Key: "A1", Values: []string{"only-one"}}}
	if _, _, err := Merge(in, domain.ColExternalID, MessageColumns, bad); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestCollectStatuses(t *testing.T) {
	results := []domain.DispatchResult{
		{Key: "A1", Reference: "SM1", Status: "queued"},
		{Key: "A2", Err: errors.New("invalid number")},
		{Key: "A3", Reference: "SM3", Status: "queued"},
	}
	fetch := func(_ context.Context, ref string) (string, error) {
		if ref == "SM3" {
			return "", errors.New("timeout")
		}
		return "delivered", nil
	}
	got, err := CollectStatuses(context.Background(), zerolog.Nop(), results, fetch)
	if err != nil {
		t.Fatalf("CollectStatuses: %v", err)
	}
	want := []domain.Outcome{
		{Key: "A1", Values: []string{"delivered", "SM1"}},
		{Key: "A3", Values: []string{"", "SM3"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("outcomes = %+v", got)
	}
}

func TestCollectStatuses_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := []domain.DispatchResult{{Key: "A1", Reference: "SM1"}}
	called := false
	_, err := CollectStatuses(ctx, zerolog.Nop(), results, func(context.Context, string) (string, error) {
		called = true
		return "", nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestReferenceOutcomes(t *testing.T) {
	results := []domain.DispatchResult{
		{Key: "A1", Reference: "SM1", Status: "queued"},
		{Key: "A2", Err: errors.New("x")},
	}
	got := ReferenceOutcomes(results)
	if len(got) != 1 || !reflect.DeepEqual(got[0].Values, []string{"queued", "SM1"}) {
		t.Fatalf("outcomes = %+v", got)
	}
}

func TestPayoutItemsOutcomes(t *testing.T) {
	items := []domain.PayoutItem{
		{ItemID: "AAAAAA_0", PayoutItemID: "P0", TransactionStatus: "SUCCESS", ErrorName: "ignored"},
		{ItemID: "AAAAAA_1", PayoutItemID: "P1", TransactionStatus: "FAILED", ErrorName: "RECEIVER_UNREGISTERED"},
	}
	got := PayoutItemsOutcomes(items)
	if !reflect.DeepEqual(got[0].Values, []string{"P0", "SUCCESS", ""}) {
		t.Fatalf("success outcome = %v", got[0].Values)
	}
	if !reflect.DeepEqual(got[1].Values, []string{"P1", "FAILED", "RECEIVER_UNREGISTERED"}) {
		t.Fatalf("failed outcome = %v", got[1].Values)
	}
}
