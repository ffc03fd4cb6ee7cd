// Package main executes a JSON-lines call script against a ledger, prints
// every outcome, and verifies the ledger invariants afterwards.
//
// With the default memory store every run starts from a fresh distribution;
// with badger or postgres the script continues the persisted ledger.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"token-ledger/internal/backend"
	"token-ledger/internal/config"
	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/replay"
	"token-ledger/internal/verification"
)

const (
	success = 0
	failure = 1
)

// Output is the final line printed after all outcomes.
type Output struct {
	Summary     replay.Summary            `json:"summary"`
	Supply      uint64                    `json:"supply"`
	Events      int                       `json:"events"`
	Divergences []verification.Divergence `json:"divergences,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {

	cfg, err := config.Load(".env")
	if err != nil {
		log := zerolog.New(os.Stderr)
		log.Error().Err(err).Msg("could not load configuration")
		return failure
	}

	// Command line parameter initialization.
	var (
		flagCalls  string
		flagLevel  string
		flagEvents bool
		flagQuiet  bool
	)

	pflag.StringVarP(&flagCalls, "calls", "c", "", "path to the JSON-lines call script (- for stdin)")
	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.StringVarP(&cfg.Store, "store", "s", cfg.Store, "storage backend (memory, badger, postgres)")
	pflag.StringVarP(&cfg.BadgerDir, "badger-dir", "d", cfg.BadgerDir, "path to badger database directory")
	pflag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	pflag.BoolVarP(&flagEvents, "events", "e", false, "print the stored event log after the run")
	pflag.BoolVarP(&flagQuiet, "quiet", "q", false, "print only the final summary")

	pflag.Parse()

	// Logger initialization.
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	level, err := zerolog.ParseLevel(flagLevel)
	if err != nil {
		log.Error().Str("level", flagLevel).Err(err).Msg("could not parse log level")
		return failure
	}
	log = log.Level(level)

	if flagCalls == "" {
		log.Error().Msg("call script is required (-c, --calls)")
		return failure
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return failure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	calls, err := readScript(flagCalls)
	if err != nil {
		log.Error().Str("calls", flagCalls).Err(err).Msg("could not read call script")
		return failure
	}

	// Analytics are not mirrored during a replay.
	cfg.ClickhouseDSN = ""
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("could not open storage backend")
		return failure
	}
	defer func() {
		err := stores.Close()
		if err != nil {
			log.Error().Err(err).Msg("could not close storage backend")
		}
	}()

	opts := []ledger.Option{ledger.WithLogger(log)}
	for _, sink := range stores.Sinks() {
		opts = append(opts, ledger.WithSink(sink))
	}
	l, err := ledger.New(ctx, ledgerCfg, stores.Ledger, opts...)
	if err != nil {
		log.Error().Err(err).Msg("could not initialize ledger")
		return failure
	}

	outcomes, err := replay.NewRunner(l, log).Run(ctx, calls)
	if err != nil {
		log.Error().Err(err).Int("executed", len(outcomes)).Msg("call script interrupted")
		return failure
	}

	enc := json.NewEncoder(os.Stdout)
	if !flagQuiet {
		for _, o := range outcomes {
			if err := enc.Encode(o); err != nil {
				log.Error().Err(err).Msg("could not write outcome")
				return failure
			}
		}
	}

	if flagEvents {
		err := replay.ReplayEvents(ctx, stores.Events, &eventPrinter{enc: enc})
		if err != nil {
			log.Error().Err(err).Msg("could not print event log")
			return failure
		}
	}

	report, err := verification.NewVerifier(stores.Ledger, stores.Events).Verify(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not verify ledger")
		return failure
	}

	out := Output{
		Summary:     replay.Summarize(outcomes),
		Supply:      report.StoredSupply,
		Events:      report.Events,
		Divergences: report.Divergences,
	}
	if err := enc.Encode(out); err != nil {
		log.Error().Err(err).Msg("could not write summary")
		return failure
	}

	if !report.Match() {
		for _, d := range report.Divergences {
			log.Error().Str("divergence", d.String()).Msg("ledger invariant violated")
		}
		return failure
	}

	return success
}

func readScript(path string) ([]replay.ScriptedCall, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	return replay.ReadCalls(r)
}

// eventPrinter writes each replayed event as one JSON line.
type eventPrinter struct {
	enc *json.Encoder
}

func (p *eventPrinter) OnEvent(_ context.Context, event *domain.Event) error {
	return p.enc.Encode(event)
}
