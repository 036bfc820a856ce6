package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/ledger"
	"github.com/tbourn/go-outreach-batch/internal/providers/twilio"
)

const phonesCSV = `ExternalDataReference,SMS_PHONE_CLEAN,url
A1,1111111111,http://x.test/1
A2,abc,http://x.test/2
A3,12345,http://x.test/3
`

func TestSMS_SendsValidRowsAndMergesStatuses(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", phonesCSV)
	content := writeFile(t, dir, "msg.txt", "Hello there\n")

	prov := &fakeMessenger{status: "delivered"}
	run := newRun(t, "sms")
	svc := &SMSService{Run: run, Provider: prov, From: "+15550000000", Chunker: instantChunker(75)}

	rep, err := svc.Send(context.Background(), SMSRequest{Phones: phones, Content: content, Country: "US", WithLink: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Input != 3 || rep.Retained != 1 || rep.Sent != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(prov.sent) != 1 {
		t.Fatalf("sent = %+v", prov.sent)
	}
	got := prov.sent[0]
	if got.To != "+11111111111" || got.Body != "Hello there http://x.test/1" || got.From != "+15550000000" {
		t.Fatalf("unexpected send %+v", got)
	}

	if rep.Output != filepath.Join(dir, "phones_delivery.csv") {
		t.Fatalf("output = %s", rep.Output)
	}
	out := readTable(t, rep.Output)
	if out.Len() != 3 {
		t.Fatalf("output rows = %d, want every input row", out.Len())
	}
	a1 := rowByKey(t, out, domain.ColExternalID, "A1")
	if s := out.Get(a1, domain.ColMessageStatus); s != "delivered" {
		t.Fatalf("A1 status = %q", s)
	}
	if ref := out.Get(a1, domain.ColMessageReference); ref != "SM1" {
		t.Fatalf("A1 reference = %q", ref)
	}
	for _, k := range []string{"A2", "A3"} {
		r := rowByKey(t, out, domain.ColExternalID, k)
		if out.Get(r, domain.ColMessageStatus) != "" || out.Get(r, domain.ColMessageReference) != "" {
			t.Fatalf("%s should have empty status cells", k)
		}
	}

	if v := testutil.ToFloat64(run.Metrics.RecordsDropped.WithLabelValues("numeric")); v != 1 {
		t.Fatalf("numeric drops = %v", v)
	}
	if v := testutil.ToFloat64(run.Metrics.RecordsDropped.WithLabelValues("length")); v != 1 {
		t.Fatalf("length drops = %v", v)
	}
	if snap := run.Progress.Snapshot(); snap.Sent != 1 || snap.Total != 1 {
		t.Fatalf("progress = %+v", snap)
	}
}

func TestSMS_WithoutLinkSendsBareBody(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nA1,1111111111\n")
	content := writeFile(t, dir, "msg.txt", "Hi")

	prov := &fakeMessenger{status: "sent"}
	svc := &SMSService{Run: newRun(t, "sms"), Provider: prov, Chunker: instantChunker(75)}
	if _, err := svc.Send(context.Background(), SMSRequest{Phones: phones, Content: content, Country: "us"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(prov.sent) != 1 || prov.sent[0].Body != "Hi" {
		t.Fatalf("sent = %+v", prov.sent)
	}
}

func TestSMS_FailedSendIsRecordedAndRunContinues(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nA1,1111111111\nA2,2222222222\n")
	content := writeFile(t, dir, "msg.txt", "Hi")

	prov := &fakeMessenger{status: "delivered", fail: map[string]error{"+11111111111": errors.New("boom")}}
	svc := &SMSService{Run: newRun(t, "sms"), Provider: prov, Chunker: instantChunker(1)}
	rep, err := svc.Send(context.Background(), SMSRequest{Phones: phones, Content: content, Country: "US"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Sent != 1 || rep.Failed != 1 || len(prov.sent) != 2 {
		t.Fatalf("report = %+v sent=%d", rep, len(prov.sent))
	}
	out := readTable(t, rep.Output)
	if s := out.Get(rowByKey(t, out, domain.ColExternalID, "A1"), domain.ColMessageStatus); s != "" {
		t.Fatalf("failed row status = %q", s)
	}
	if s := out.Get(rowByKey(t, out, domain.ColExternalID, "A2"), domain.ColMessageStatus); s != "delivered" {
		t.Fatalf("A2 status = %q", s)
	}
}

func TestSMS_LedgerSkipsKnownBadNumbers(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nB1,2222222222\nB2,3333333333\nB3,4444444444\n")
	content := writeFile(t, dir, "msg.txt", "Hi")

	bad, overflow := 30003, 30001
	prov := &fakeMessenger{
		status: "delivered",
		history: []twilio.Message{
			{To: "+12222222222", ErrorCode: &bad},
			{To: "+14444444444", ErrorCode: &overflow},
			{To: "+13333333333"},
		},
	}
	store := &ledger.FileStore{Path: filepath.Join(dir, "ledger.json")}
	run := newRun(t, "sms")
	svc := &SMSService{Run: run, Provider: prov, Chunker: instantChunker(75), Ledger: &ledger.Ledger{Store: store}}

	rep, err := svc.Send(context.Background(), SMSRequest{Phones: phones, Content: content, Country: "US", CheckLedger: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Skipped != 1 || rep.Sent != 2 {
		t.Fatalf("report = %+v", rep)
	}
	for _, s := range prov.sent {
		if s.To == "+12222222222" {
			t.Fatalf("ledger number was sent to")
		}
	}
	items, err := store.Load(context.Background())
	if err != nil || len(items) != 1 || items[0] != "+12222222222" {
		t.Fatalf("persisted ledger = %v, %v", items, err)
	}
	if v := testutil.ToFloat64(run.Metrics.LedgerSize); v != 1 {
		t.Fatalf("ledger size gauge = %v", v)
	}
	if v := testutil.ToFloat64(run.Metrics.RecordsDropped.WithLabelValues("ledger")); v != 1 {
		t.Fatalf("ledger drops = %v", v)
	}
}

func TestSMS_CancelWritesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nA1,1111111111\nA2,2222222222\nA3,3333333333\n")
	content := writeFile(t, dir, "msg.txt", "Hi")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prov := &fakeMessenger{status: "delivered", onSend: func(int) { cancel() }}
	svc := &SMSService{Run: newRun(t, "sms"), Provider: prov, Chunker: instantChunker(1)}

	rep, err := svc.Send(ctx, SMSRequest{Phones: phones, Content: content, Country: "US"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(prov.sent) != 1 {
		t.Fatalf("sends after cancel: %d", len(prov.sent))
	}
	out := readTable(t, rep.Output)
	if out.Len() != 3 {
		t.Fatalf("partial output rows = %d", out.Len())
	}
	a1 := rowByKey(t, out, domain.ColExternalID, "A1")
	if out.Get(a1, domain.ColMessageReference) != "SM1" || out.Get(a1, domain.ColMessageStatus) != "queued" {
		t.Fatalf("A1 should carry its send status: %v", out.Rows[a1])
	}
}

func TestSMS_BlockingGatesStopBeforeSending(t *testing.T) {
	dir := t.TempDir()
	content := writeFile(t, dir, "msg.txt", "Hi")
	empty := writeFile(t, dir, "empty.txt", "\n")
	good := writeFile(t, dir, "good.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nA1,1111111111\n")
	noPhone := writeFile(t, dir, "nophone.csv", "ExternalDataReference\nA1\n")

	cases := []struct {
		name   string
		req    SMSRequest
		config bool
	}{
		{"missing column", SMSRequest{Phones: noPhone, Content: content, Country: "US"}, false},
		{"missing url column", SMSRequest{Phones: good, Content: content, Country: "US", WithLink: true}, false},
		{"empty message", SMSRequest{Phones: good, Content: empty, Country: "US"}, false},
		{"unsupported country", SMSRequest{Phones: good, Content: content, Country: "FR"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prov := &fakeMessenger{}
			svc := &SMSService{Run: newRun(t, "sms"), Provider: prov, Chunker: instantChunker(75)}
			_, err := svc.Send(context.Background(), tc.req)
			if tc.config && !domain.IsConfigError(err) {
				t.Fatalf("want config error, got %v", err)
			}
			if !tc.config && !domain.IsSchemaError(err) {
				t.Fatalf("want schema error, got %v", err)
			}
			if len(prov.sent) != 0 {
				t.Fatalf("provider called %d times", len(prov.sent))
			}
			assertNoFile(t, filepath.Join(dir, "good_delivery.csv"))
			assertNoFile(t, filepath.Join(dir, "nophone_delivery.csv"))
		})
	}
}

func TestSMS_DuplicateKeysKeepFirstStatus(t *testing.T) {
	dir := t.TempDir()
	phones := writeFile(t, dir, "phones.csv", "ExternalDataReference,SMS_PHONE_CLEAN\nA1,1111111111\nA1,2222222222\n")
	content := writeFile(t, dir, "msg.txt", "Hi")

	prov := &fakeMessenger{status: "delivered"}
	svc := &SMSService{Run: newRun(t, "sms"), Provider: prov, Chunker: instantChunker(75)}
	rep, err := svc.Send(context.Background(), SMSRequest{Phones: phones, Content: content, Country: "US"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rep.Duplicate) != 1 || rep.Duplicate[0] != "A1" {
		t.Fatalf("duplicates = %v", rep.Duplicate)
	}
	out := readTable(t, rep.Output)
	if out.Len() != 2 {
		t.Fatalf("rows = %d", out.Len())
	}
	for r := range out.Rows {
		if ref := out.Get(r, domain.ColMessageReference); ref != "SM1" {
			t.Fatalf("row %d reference = %q, want first outcome", r, ref)
		}
	}
}
