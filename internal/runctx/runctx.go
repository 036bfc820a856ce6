// Package runctx builds the per-run context shared by every stage of a
// command: a run id, the run logger, the metrics registry, the progress
// tracker and the optional status server. A Run is created once in main,
// passed down explicitly, and closed on exit.
package runctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	httpapi "github.com/tbourn/go-outreach-batch/internal/http"
	"github.com/tbourn/go-outreach-batch/internal/observability"
)

// Options configure a run.
type Options struct {
	Command string

	// LogDir receives <command>.log; empty disables the file sink.
	LogDir string
	// Stderr receives console output; nil means os.Stderr.
	Stderr io.Writer
	// Pretty switches the stderr sink to the human-readable console writer.
	Pretty bool
	// Redact scrubs recipient phone numbers and e-mail addresses from
	// every sink.
	Redact bool

	// StatusAddr starts the status server when not empty.
	StatusAddr  string
	ServiceName string

	// MetricsTextfile is written on Close when not empty.
	MetricsTextfile string

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Run is the state of one command invocation.
type Run struct {
	ID       string
	Command  string
	Log      zerolog.Logger
	Metrics  *observability.Metrics
	Progress *observability.Progress
	Started  time.Time

	logFile  *os.File
	status   *httpapi.Server
	textfile string
	now      func() time.Time
}

// Open creates the run: it opens the log sink, builds metrics and
// progress, and starts the status server if one is configured.
func Open(opt Options) (*Run, error) {
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	r := &Run{
		ID:       uuid.NewString(),
		Command:  opt.Command,
		Metrics:  observability.NewMetrics(),
		Started:  now(),
		textfile: opt.MetricsTextfile,
		now:      now,
	}
	r.Progress = observability.NewProgress(r.ID, opt.Command)

	scrub := func(w io.Writer) io.Writer {
		if opt.Redact {
			return redactWriter{w: w}
		}
		return w
	}

	var stderr io.Writer = os.Stderr
	if opt.Stderr != nil {
		stderr = opt.Stderr
	}
	stderr = scrub(stderr)
	if opt.Pretty {
		stderr = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}
	sinks := []io.Writer{stderr}

	if opt.LogDir != "" {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opt.LogDir, opt.Command+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		r.logFile = f
		sinks = append(sinks, scrub(f))
	}

	r.Log = zerolog.New(zerolog.MultiLevelWriter(sinks...)).With().
		Timestamp().
		Str("run_id", r.ID).
		Str("command", opt.Command).
		Logger()

	if opt.StatusAddr != "" {
		h := httpapi.NewRouter(httpapi.Options{
			ServiceName: opt.ServiceName,
			Log:         r.Log,
			Progress:    r.Progress,
			Registry:    r.Metrics.Registry,
			Metrics:     r.Metrics.Handler(),
		})
		srv, err := httpapi.Start(opt.StatusAddr, h, r.Log)
		if err != nil {
			r.closeLog()
			return nil, fmt.Errorf("start status server: %w", err)
		}
		r.status = srv
	}

	r.Log.Info().Msgf("starting %s", opt.Command)
	return r, nil
}

// StatusAddr is the bound status server address, or "" when disabled.
func (r *Run) StatusAddr() string {
	if r.status == nil {
		return ""
	}
	return r.status.Addr()
}

// Stage records the pipeline stage on the progress tracker and in the log.
func (r *Run) Stage(name string) {
	r.Progress.SetStage(name)
	r.Log.Debug().Str("stage", name).Msg("stage")
}

// Observer returns a dispatch observer feeding the metrics and progress of
// channel.
func (r *Run) Observer(channel string) func(domain.DispatchResult, time.Duration) {
	return func(res domain.DispatchResult, took time.Duration) {
		r.Metrics.ObserveDispatch(channel, res, took)
		r.Progress.Record(res)
	}
}

// Close finishes the run: it records the run duration, writes the metrics
// textfile, stops the status server and closes the log file. It is safe to
// call more than once.
func (r *Run) Close() error {
	var errs []error
	end := r.now()
	r.Metrics.Finish(r.Started, end)

	if r.textfile != "" {
		if err := r.Metrics.WriteTextfile(r.textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
		r.textfile = ""
	}
	if r.status != nil {
		if err := r.status.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
		r.status = nil
	}
	if r.logFile != nil {
		r.Log.Info().Dur("elapsed", end.Sub(r.Started)).Msgf("closing log for %s", r.Command)
		r.closeLog()
	}
	return errors.Join(errs...)
}

func (r *Run) closeLog() {
	if r.logFile != nil {
		_ = r.logFile.Close()
		r.logFile = nil
	}
}
