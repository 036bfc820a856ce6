package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-outreach-batch/internal/dispatch"
	"github.com/tbourn/go-outreach-batch/internal/providers/paypal"
	"github.com/tbourn/go-outreach-batch/internal/providers/twilio"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

// ---------- test helpers ----------

func newRun(t *testing.T, command string) *runctx.Run {
	t.Helper()
	r, err := runctx.Open(runctx.Options{Command: command, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("runctx.Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// instantChunker paces nothing: pauses return immediately unless ctx ended.
func instantChunker(size int) dispatch.Chunker {
	return dispatch.Chunker{
		Size:       size,
		Pause:      time.Second,
		Settlement: time.Second,
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func readTable(t *testing.T, path string) *table.Table {
	t.Helper()
	tb, err := table.ReadFile(path, "")
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return tb
}

func rowByKey(t *testing.T, tb *table.Table, col, key string) int {
	t.Helper()
	for r := range tb.Rows {
		if tb.Get(r, col) == key {
			return r
		}
	}
	t.Fatalf("no row with %s=%q", col, key)
	return -1
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file at %s, stat err=%v", path, err)
	}
}

// ---------- fake providers ----------

type sent struct{ From, To, Body string }

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sent
	fail    map[string]error // by destination
	status  string           // returned by Fetch
	history []twilio.Message
	onSend  func(n int)
}

func (f *fakeMessenger) Send(_ context.Context, from, to, body string) (twilio.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sent{from, to, body})
	n := len(f.sent)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(n)
	}
	if err := f.fail[to]; err != nil {
		return twilio.Message{}, err
	}
	return twilio.Message{SID: fmt.Sprintf("SM%d", n), To: to, Status: "queued"}, nil
}

func (f *fakeMessenger) Fetch(_ context.Context, sid string) (twilio.Message, error) {
	return twilio.Message{SID: sid, Status: f.status}, nil
}

func (f *fakeMessenger) List(context.Context, int) ([]twilio.Message, error) {
	return f.history, nil
}

type fakeShortener struct {
	calls int
	fail  map[string]error
}

func (f *fakeShortener) Shorten(_ context.Context, long string) (string, error) {
	f.calls++
	if err := f.fail[long]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://bit.ly/s%d", f.calls), nil
}

type fakePayouts struct {
	created []paypal.Payout
	createErr error
	found     map[string]paypal.BatchDetail
	findErr   map[string]error
	finds     []string
}

func (f *fakePayouts) Create(_ context.Context, p paypal.Payout) (paypal.BatchDetail, error) {
	f.created = append(f.created, p)
	if f.createErr != nil {
		return paypal.BatchDetail{}, f.createErr
	}
	return paypal.BatchDetail{BatchHeader: paypal.BatchHeader{
		PayoutBatchID: fmt.Sprintf("PB%d", len(f.created)),
		BatchStatus:   "PENDING",
	}}, nil
}

func (f *fakePayouts) Find(_ context.Context, id string) (paypal.BatchDetail, error) {
	f.finds = append(f.finds, id)
	if err := f.findErr[id]; err != nil {
		return paypal.BatchDetail{}, err
	}
	return f.found[id], nil
}

func itemDetail(senderItemID, payoutItemID, status, errName string) paypal.ItemDetail {
	var it paypal.ItemDetail
	it.PayoutItemID = payoutItemID
	it.TransactionStatus = status
	it.PayoutItem.SenderItemID = senderItemID
	if errName != "" {
		it.Errors = &paypal.ItemError{Name: errName}
	}
	return it
}
