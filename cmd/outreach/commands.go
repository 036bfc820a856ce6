package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-outreach-batch/internal/batching"
	"github.com/tbourn/go-outreach-batch/internal/dispatch"
	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/ledger"
	"github.com/tbourn/go-outreach-batch/internal/providers/bitly"
	"github.com/tbourn/go-outreach-batch/internal/providers/paypal"
	"github.com/tbourn/go-outreach-batch/internal/providers/twilio"
	"github.com/tbourn/go-outreach-batch/internal/runctx"
	"github.com/tbourn/go-outreach-batch/internal/services"
	"github.com/tbourn/go-outreach-batch/internal/sysutil"
)

// openRun starts the per-run context for command.
func (e *env) openRun(command string) (*runctx.Run, error) {
	return runctx.Open(runctx.Options{
		Command:         command,
		LogDir:          e.cfg.LogDir,
		Stderr:          e.stderr,
		Pretty:          e.cfg.LogPretty,
		Redact:          e.cfg.LogRedact,
		StatusAddr:      e.cfg.StatusAddr,
		ServiceName:     e.cfg.OTEL.ServiceName,
		MetricsTextfile: e.cfg.MetricsTextfile,
	})
}

func (e *env) limiter() dispatch.Chunker {
	return dispatch.Chunker{Limiter: dispatch.NewLimiter(e.cfg.SendRPS, e.cfg.SendBurst)}
}

// finish closes run and logs how the command ended.
func finish(run *runctx.Run, err error) error {
	if err != nil {
		run.Log.Error().Err(err).Msg("run failed")
	}
	if cerr := run.Close(); cerr != nil && err == nil {
		return cerr
	}
	return err
}

// ---- sms ----

func runSMS(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("sms", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	var (
		auth, content, nation, phones string
		errorCheck, withLink          bool
	)
	fs.StringVar(&auth, "a", "", "Twilio credentials as SID,TOKEN,FROM")
	fs.StringVar(&content, "c", "", "text file holding the message body")
	fs.BoolVar(&errorCheck, "e", false, "refresh the bad-number ledger and skip its numbers")
	fs.BoolVar(&withLink, "l", false, "append the url column to each message")
	fs.StringVar(&nation, "n", "", "recipient country code (US, MA, PH)")
	fs.StringVar(&phones, "p", "", "table with ExternalDataReference and SMS_PHONE_CLEAN")
	if err := parseFlags(fs, args, map[string]*string{"c": &content, "n": &nation, "p": &phones}); err != nil {
		return err
	}

	creds, err := sysutil.SplitAuth(auth, 3)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	p := e.cfg.Providers
	sid := sysutil.FirstNonEmpty(creds[0], p.TwilioAccountSID)
	token := sysutil.FirstNonEmpty(creds[1], p.TwilioAuthToken)
	from := sysutil.FirstNonEmpty(creds[2], p.TwilioFrom)
	if sid == "" || token == "" || from == "" {
		return domain.NewConfigError(twilio.ErrMissingCredentials, "pass -a SID,TOKEN,FROM or set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM")
	}

	run, err := e.openRun("sms")
	if err != nil {
		return err
	}

	ch := e.limiter()
	ch.Size, ch.Pause, ch.Settlement = e.cfg.SMSChunkSize, e.cfg.SMSChunkPause, e.cfg.SettlementWait
	svc := &services.SMSService{
		Run:      run,
		Provider: twilio.New(p.TwilioBaseURL, sid, token, p.HTTPTimeout),
		From:     from,
		Chunker:  ch,
	}
	if errorCheck {
		store, closeStore, err := ledger.Open(e.cfg.LedgerPath)
		if err != nil {
			return finish(run, fmt.Errorf("open ledger: %w", err))
		}
		defer closeStore()
		svc.Ledger = &ledger.Ledger{Store: store, Excluded: e.cfg.LedgerExcludedCodes}
	}

	rep, err := svc.Send(ctx, services.SMSRequest{
		Phones:      phones,
		Content:     content,
		Country:     nation,
		WithLink:    withLink,
		CheckLedger: errorCheck,
	})
	if rep.Output != "" {
		summary(run.Log, "sms").Int("input", rep.Input).Int("retained", rep.Retained).
			Int("skipped", rep.Skipped).Int("sent", rep.Sent).Int("failed", rep.Failed).
			Str("output", rep.Output).Msg("sms run complete")
	}
	return finish(run, err)
}

// ---- shorten ----

func runShorten(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("shorten", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	var auth, data string
	fs.StringVar(&auth, "a", "", "Bitly access token")
	fs.StringVar(&data, "d", "", "table with a link column")
	if err := parseFlags(fs, args, map[string]*string{"d": &data}); err != nil {
		return err
	}

	token := sysutil.FirstNonEmpty(auth, e.cfg.Providers.BitlyToken)
	if token == "" {
		return domain.NewConfigError(bitly.ErrMissingToken, "pass -a TOKEN or set BITLY_TOKEN")
	}

	run, err := e.openRun("shorten")
	if err != nil {
		return err
	}

	ch := e.limiter()
	ch.Size, ch.Pause = e.cfg.ShortenPauseEvery, e.cfg.ShortenPause
	if e.cfg.ShortenPauseEvery == 0 {
		ch.Pause = 0
	}
	svc := &services.ShortenService{
		Run:      run,
		Provider: bitly.New(e.cfg.Providers.BitlyBaseURL, token, e.cfg.Providers.HTTPTimeout),
		Chunker:  ch,
	}
	rep, err := svc.Shorten(ctx, data)
	if rep.Output != "" {
		summary(run.Log, "shorten").Int("input", rep.Input).Int("shortened", rep.Shortened).
			Int("failed", rep.Failed).Str("output", rep.Output).Msg("shorten run complete")
	}
	return finish(run, err)
}

// ---- payout ----

func runPayout(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("payout", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	var auth, mode, data, study, tpl string
	fs.StringVar(&auth, "a", "", "PayPal credentials as CLIENT_ID,SECRET")
	fs.StringVar(&mode, "e", "", "PayPal environment: sandbox or live (default PAYPAL_MODE)")
	fs.StringVar(&data, "d", "", "payments workbook or processed worksheet")
	fs.StringVar(&study, "s", "", "study name: the data sheet and template key")
	fs.StringVar(&tpl, "t", "", "YAML template file (default: Template sheet of the payments workbook)")
	if err := parseFlags(fs, args, map[string]*string{"d": &data, "s": &study}); err != nil {
		return err
	}

	client, err := e.paypal(ctx, auth, mode)
	if err != nil {
		return err
	}
	run, err := e.openRun("payout")
	if err != nil {
		return err
	}

	blacklist, closeBlacklist, err := ledger.Open(e.cfg.BlacklistPath)
	if err != nil {
		return finish(run, fmt.Errorf("open blacklist: %w", err))
	}
	defer closeBlacklist()

	svc := &services.PayoutService{
		Run:       run,
		Provider:  client,
		Chunker:   e.limiter(),
		Assigner:  batching.New(e.cfg.PayoutBatchSize, nil),
		Blacklist: blacklist,
		MaxBatch:  e.cfg.PayoutBatchSize,
	}
	rep, err := svc.Pay(ctx, services.PayoutRequest{Data: data, Study: study, Template: tpl})
	if rep.Output != "" {
		summary(run.Log, "payout").Int("rows", rep.Rows).Int("blacklisted", rep.Blacklisted).
			Int("pending", rep.Pending).Int("batches", rep.Batches).Int("paid", rep.Paid).
			Int("failed", rep.Failed).Str("output", rep.Output).Msg("payout run complete")
	}
	return finish(run, err)
}

// ---- payout-status ----

func runPayoutStatus(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("payout-status", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	var auth, mode, payments string
	fs.StringVar(&auth, "a", "", "PayPal credentials as CLIENT_ID,SECRET")
	fs.StringVar(&mode, "e", "", "PayPal environment: sandbox or live (default PAYPAL_MODE)")
	fs.StringVar(&payments, "p", "", "processed worksheet written by payout")
	if err := parseFlags(fs, args, map[string]*string{"p": &payments}); err != nil {
		return err
	}

	client, err := e.paypal(ctx, auth, mode)
	if err != nil {
		return err
	}
	run, err := e.openRun("payout-status")
	if err != nil {
		return err
	}

	svc := &services.PayoutStatusService{Run: run, Provider: client}
	rep, err := svc.Reconcile(ctx, payments)
	if rep.Output != "" {
		summary(run.Log, "payout-status").Int("rows", rep.Rows).Int("batches", rep.Batches).
			Int("found", rep.Found).Int("failed", rep.Failed).Str("output", rep.Output).
			Msg("payout status run complete")
	}
	return finish(run, err)
}

// paypal resolves credentials and environment and builds the client.
func (e *env) paypal(ctx context.Context, auth, mode string) (*paypal.Client, error) {
	creds, err := sysutil.SplitAuth(auth, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	p := e.cfg.Providers
	id := sysutil.FirstNonEmpty(creds[0], p.PayPalClientID)
	secret := sysutil.FirstNonEmpty(creds[1], p.PayPalClientSecret)

	base := p.PayPalBaseURL
	if base == "" || mode != "" {
		base, err = paypal.BaseURLFor(sysutil.FirstNonEmpty(mode, p.PayPalMode))
		if err != nil {
			return nil, domain.NewConfigError(err, "%q", mode)
		}
	}
	c, err := paypal.New(ctx, base, id, secret, p.HTTPTimeout)
	if err != nil {
		return nil, domain.NewConfigError(err, "pass -a CLIENT_ID,SECRET or set PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET")
	}
	return c, nil
}

func summary(lg zerolog.Logger, command string) *zerolog.Event {
	return lg.Info().Str("summary", command).Time("finished_at", time.Now().UTC())
}
