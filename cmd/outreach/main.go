// Command outreach sends SMS and PayPal payouts in batches from tabular
// input files and reconciles the provider outcomes back into output files.
//
//	outreach sms -a SID,TOKEN,FROM -c message.txt -n US -p phones.csv [-l] [-e]
//	outreach shorten -a TOKEN -d links.csv
//	outreach payout -a CLIENT_ID,SECRET -d payments.xlsx -s study [-t template.yaml] [-e live]
//	outreach payout-status -a CLIENT_ID,SECRET -p payments_processed.csv [-e live]
//
// Credentials left out of -a fall back to the environment (see .env).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-outreach-batch/internal/config"
	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/observability"
	"github.com/tbourn/go-outreach-batch/internal/sysutil"
)

var version = "dev"

// errUsage marks a command line that could not be parsed.
var errUsage = errors.New("usage")

// command runs one subcommand with its own flag set.
type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"sms":           {"send one SMS per valid row and collect delivery statuses", runSMS},
	"shorten":       {"shorten the link column through Bitly", runShorten},
	"payout":        {"pay every unpaid worksheet row in PayPal batches", runPayout},
	"payout-status": {"look up processed payout batches and write the final report", runPayoutStatus},
}

var commandOrder = []string{"sms", "shorten", "payout", "payout-status"}

// env is what every subcommand shares.
type env struct {
	cfg    config.Config
	stderr io.Writer
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches to a subcommand and maps its error to an exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
			usage(stderr)
			return 0
		}
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	sysutil.SetLogLevel(cfg.LogLevel)

	shutdown, err := observability.SetupTracing(ctx, cfg.OTEL, version, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "otel: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	err = cmd.run(ctx, &env{cfg: cfg, stderr: stderr}, args[1:])
	if err != nil && !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
	}
	return exitCode(err)
}

// exitCode is 2 for configuration and usage errors, 130 for an
// interrupted run and 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage), domain.IsConfigError(err):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: outreach <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

// parseFlags parses args and reports missing required flags as usage errors.
func parseFlags(fs *flag.FlagSet, args []string, required map[string]*string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments %v\n", fs.Args())
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	for _, name := range slices.Sorted(maps.Keys(required)) {
		if *required[name] == "" {
			fmt.Fprintf(fs.Output(), "flag -%s is required\n", name)
			fs.Usage()
			return fmt.Errorf("%w: -%s is required", errUsage, name)
		}
	}
	return nil
}
