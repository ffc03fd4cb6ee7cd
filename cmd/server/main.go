// Package main runs a ledger process: it opens the configured storage, builds
// the ledger (running the initial distribution on a fresh store), optionally
// executes a call script, and serves the read-only HTTP surface together with
// the live event feed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"token-ledger/internal/backend"
	"token-ledger/internal/config"
	"token-ledger/internal/ledger"
	"token-ledger/internal/replay"
	"token-ledger/internal/stream"
)

const (
	success = 0
	failure = 1
)

func main() {
	os.Exit(run())
}

func run() int {

	// Signal catching for clean shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// Environment first, so that it provides the flag defaults.
	envFile := os.Getenv("LEDGER_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		log := zerolog.New(os.Stderr)
		log.Error().Err(err).Msg("could not load configuration")
		return failure
	}

	// Command line parameter initialization.
	var (
		flagCalls      string
		flagLevel      string
		flagShutdown   time.Duration
		flagSubscriber int
	)

	pflag.StringVarP(&flagCalls, "calls", "c", "", "path to a JSON-lines call script executed at start")
	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.StringVarP(&cfg.Store, "store", "s", cfg.Store, "storage backend (memory, badger, postgres)")
	pflag.StringVarP(&cfg.BadgerDir, "badger-dir", "d", cfg.BadgerDir, "path to badger database directory")
	pflag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	pflag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string for the analytics event sink")
	pflag.StringVarP(&cfg.HTTPAddr, "addr", "a", cfg.HTTPAddr, "HTTP listen address")
	pflag.DurationVar(&flagShutdown, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	pflag.IntVar(&flagSubscriber, "subscriber-buffer", stream.DefaultHubConfig().SendBuffer, "per-subscriber event buffer size")

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

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return failure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the configured storage backend.
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

	// The hub is registered last so that subscribers only see events that
	// were already persisted.
	hubCfg := stream.DefaultHubConfig()
	hubCfg.SendBuffer = flagSubscriber
	hub := stream.NewHub(hubCfg, log)

	opts := []ledger.Option{ledger.WithLogger(log)}
	for _, sink := range stores.Sinks() {
		opts = append(opts, ledger.WithSink(sink))
	}
	opts = append(opts, ledger.WithSink(hub))

	l, err := ledger.New(ctx, ledgerCfg, stores.Ledger, opts...)
	if err != nil {
		log.Error().Err(err).Msg("could not initialize ledger")
		return failure
	}

	log.Info().
		Str("owner", ledgerCfg.Owner.String()).
		Str("dao", ledgerCfg.DAO.String()).
		Str("symbol", ledgerCfg.Token.Symbol).
		Msg("ledger ready")

	if flagCalls != "" {
		err := runScript(ctx, log, l, flagCalls)
		if err != nil {
			log.Error().Str("calls", flagCalls).Err(err).Msg("could not run call script")
			return failure
		}
	}

	a := &api{
		ledger:  l,
		store:   stores.Ledger,
		events:  stores.Events,
		hub:     hub,
		health:  stores.Ping,
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now(),
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case <-sig:
		log.Info().Msg("ledger server stopping")
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
			return failure
		}
		return success
	}

	go func() {
		<-sig
		log.Warn().Msg("forcing exit")
		os.Exit(failure)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), flagShutdown)
	defer shutdownCancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		log.Error().Err(err).Msg("could not shut down http server")
		return failure
	}

	log.Info().Msg("ledger server stopped")

	return success
}

// runScript executes a call script against the ledger and logs its summary.
func runScript(ctx context.Context, log zerolog.Logger, l *ledger.Ledger, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	calls, err := replay.ReadCalls(file)
	if err != nil {
		return err
	}

	outcomes, err := replay.NewRunner(l, log).Run(ctx, calls)
	if err != nil {
		return err
	}

	summary := replay.Summarize(outcomes)
	log.Info().
		Int("total", summary.Total).
		Int("ok", summary.Ok).
		Int("failed", summary.Failed).
		Msg("call script executed")

	return nil
}
