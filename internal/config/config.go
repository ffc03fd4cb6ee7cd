// Package config loads ledger configuration from the environment.
//
// Values come from process env vars, optionally seeded from a .env file that
// never overrides variables already set. Binaries use the loaded values as
// defaults for their command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/storage"
)

// Store kinds accepted by LEDGER_STORE.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

// Defaults used when the corresponding variable is unset.
const (
	DefaultTokenName           = "Ledger Token"
	DefaultTokenSymbol         = "LDG"
	DefaultTokenDecimals       = 6
	DefaultDAOAllocation       = 400_000_000_000
	DefaultLiquidityAllocation = 350_000_000_000
	DefaultAirdropAllocation   = 250_000_000_000
	DefaultBadgerDir           = "data/ledger"
	DefaultHTTPAddr            = ":8080"
)

// Config is the flat process configuration.
type Config struct {
	Owner     string
	DAO       string
	Liquidity string
	Airdrop   string

	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	TokenURI      string

	DAOAllocation       uint64
	LiquidityAllocation uint64
	AirdropAllocation   uint64

	Store         string
	BadgerDir     string
	PostgresDSN   string
	ClickhouseDSN string
	HTTPAddr      string
}

// Load reads the .env file at envFile (if it exists) and then the process
// environment.
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment, applying defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Owner:         os.Getenv("LEDGER_OWNER"),
		DAO:           os.Getenv("LEDGER_DAO"),
		Liquidity:     os.Getenv("LEDGER_LIQUIDITY"),
		Airdrop:       os.Getenv("LEDGER_AIRDROP"),
		TokenName:     getenv("LEDGER_TOKEN_NAME", DefaultTokenName),
		TokenSymbol:   getenv("LEDGER_TOKEN_SYMBOL", DefaultTokenSymbol),
		TokenURI:      os.Getenv("LEDGER_TOKEN_URI"),
		Store:         getenv("LEDGER_STORE", StoreMemory),
		BadgerDir:     getenv("LEDGER_BADGER_DIR", DefaultBadgerDir),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		HTTPAddr:      getenv("LEDGER_HTTP_ADDR", DefaultHTTPAddr),
	}

	decimals, err := parseUint("LEDGER_TOKEN_DECIMALS", DefaultTokenDecimals, 8)
	if err != nil {
		return nil, err
	}
	cfg.TokenDecimals = uint8(decimals)

	if cfg.DAOAllocation, err = parseUint("LEDGER_DAO_ALLOCATION", DefaultDAOAllocation, 64); err != nil {
		return nil, err
	}
	if cfg.LiquidityAllocation, err = parseUint("LEDGER_LIQUIDITY_ALLOCATION", DefaultLiquidityAllocation, 64); err != nil {
		return nil, err
	}
	if cfg.AirdropAllocation, err = parseUint("LEDGER_AIRDROP_ALLOCATION", DefaultAirdropAllocation, 64); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can build a ledger.
// Owner and DAO may be the same principal; the roles are still checked independently.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("%w: LEDGER_OWNER is required", storage.ErrInvalidInput)
	}
	for _, p := range []struct{ key, value string }{
		{"LEDGER_OWNER", c.Owner},
		{"LEDGER_DAO", c.DAO},
		{"LEDGER_LIQUIDITY", c.Liquidity},
		{"LEDGER_AIRDROP", c.Airdrop},
	} {
		if p.value == "" {
			continue
		}
		if _, err := domain.ParsePrincipal(p.value); err != nil {
			return fmt.Errorf("%w: %s: %v", storage.ErrInvalidInput, p.key, err)
		}
	}

	switch c.Store {
	case StoreMemory:
	case StoreBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("%w: LEDGER_BADGER_DIR is required for the badger store", storage.ErrInvalidInput)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres store", storage.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown store %q (want memory, badger or postgres)", storage.ErrInvalidInput, c.Store)
	}

	var sum uint64
	for _, amount := range []uint64{c.DAOAllocation, c.LiquidityAllocation, c.AirdropAllocation} {
		if sum+amount < sum {
			return fmt.Errorf("%w: initial allocations overflow the supply", storage.ErrInvalidInput)
		}
		sum += amount
	}
	return nil
}

// LedgerConfig resolves principals and produces the immutable ledger configuration.
// Unset sub-accounts are derived from the owner.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	if err := c.Validate(); err != nil {
		return ledger.Config{}, err
	}

	owner, err := domain.ParsePrincipal(c.Owner)
	if err != nil {
		return ledger.Config{}, err
	}

	dao, err := resolveSubAccount(owner, c.DAO, domain.AllocationDAO)
	if err != nil {
		return ledger.Config{}, err
	}
	liquidity, err := resolveSubAccount(owner, c.Liquidity, domain.AllocationLiquidity)
	if err != nil {
		return ledger.Config{}, err
	}
	airdrop, err := resolveSubAccount(owner, c.Airdrop, domain.AllocationAirdrop)
	if err != nil {
		return ledger.Config{}, err
	}

	var distribution []domain.Allocation
	for _, a := range []domain.Allocation{
		{Label: domain.AllocationDAO, Recipient: dao, Amount: c.DAOAllocation},
		{Label: domain.AllocationLiquidity, Recipient: liquidity, Amount: c.LiquidityAllocation},
		{Label: domain.AllocationAirdrop, Recipient: airdrop, Amount: c.AirdropAllocation},
	} {
		// A zero allocation disables that recipient.
		if a.Amount > 0 {
			distribution = append(distribution, a)
		}
	}

	return ledger.Config{
		Owner: owner,
		DAO:   dao,
		Token: domain.TokenInfo{
			Name:     c.TokenName,
			Symbol:   c.TokenSymbol,
			Decimals: c.TokenDecimals,
		},
		Distribution: distribution,
		TokenURI:     c.TokenURI,
	}, nil
}

// LoadEnvFile sets variables from a KEY=VALUE file. Variables already present
// in the environment are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		if _, ok := os.LookupEnv(key); !ok {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}

func resolveSubAccount(owner domain.Principal, value, name string) (domain.Principal, error) {
	if value != "" {
		return domain.ParsePrincipal(value)
	}
	return domain.DeriveSubAccount(owner, name)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseUint(key string, def uint64, bits int) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.ReplaceAll(v, "_", ""), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", storage.ErrInvalidInput, key, err)
	}
	return n, nil
}
