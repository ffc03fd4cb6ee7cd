// Package main writes the holders report (report.md and holders.csv) for a
// persisted ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"token-ledger/internal/backend"
	"token-ledger/internal/config"
	"token-ledger/internal/reporting"
)

const (
	success = 0
	failure = 1
)

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
		flagLevel  string
		flagOutput string
		flagStrict bool
	)

	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.StringVarP(&flagOutput, "output-dir", "o", "docs", "output directory for generated files")
	pflag.StringVarP(&cfg.Store, "store", "s", cfg.Store, "storage backend (badger, postgres)")
	pflag.StringVarP(&cfg.BadgerDir, "badger-dir", "d", cfg.BadgerDir, "path to badger database directory")
	pflag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	pflag.BoolVar(&flagStrict, "strict", false, "exit with failure when the integrity check finds divergences")

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

	if cfg.Store == config.StoreMemory {
		log.Error().Msg("the memory store holds no persisted ledger, use --store badger or --store postgres")
		return failure
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return failure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The report only reads, it never mirrors to analytics.
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

	gen := reporting.NewGenerator(stores.Ledger, stores.Events, ledgerCfg.Token).
		WithLabel(ledgerCfg.Owner, "owner")
	for _, a := range ledgerCfg.Distribution {
		gen = gen.WithLabel(a.Recipient, a.Label)
	}

	start := time.Now()
	report, err := gen.Generate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not generate report")
		return failure
	}

	err = reporting.WriteFiles(flagOutput, report)
	if err != nil {
		log.Error().Str("output_dir", flagOutput).Err(err).Msg("could not write report")
		return failure
	}

	log.Info().
		Str("output_dir", flagOutput).
		Int("holders", len(report.Holders)).
		Bool("consistent", report.Integrity.Consistent).
		Dur("duration", time.Since(start)).
		Msg("report generated")

	if flagStrict && !report.Integrity.Consistent {
		return failure
	}

	return success
}
