// Package ledger implements the fungible-token accounting engine: balances,
// total supply, role checks and the public operations built on them.
//
// Every mutating call runs against a staged overlay of the store and is
// committed as one atomic change set, so a failing call leaves no trace.
// Calls are serialized; each one observes all previous calls in full.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// Config is the construction-time configuration. Immutable after New.
type Config struct {
	Owner        domain.Principal    // minting authority
	DAO          domain.Principal    // metadata-governance authority
	Token        domain.TokenInfo    // name, symbol, decimals
	Distribution []domain.Allocation // minted once at construction
	TokenURI     string              // initial metadata pointer
}

// Validate checks the configuration before any state is touched.
func (c Config) Validate() error {
	if c.Owner.IsZero() {
		return errors.New("owner principal is required")
	}
	if c.DAO.IsZero() {
		return errors.New("dao principal is required")
	}
	for i, a := range c.Distribution {
		if a.Recipient.IsZero() {
			return fmt.Errorf("allocation %d (%s): recipient is required", i, a.Label)
		}
		if a.Amount == 0 {
			return fmt.Errorf("allocation %d (%s): %w", i, a.Label, ErrInvalidAmount)
		}
	}
	return nil
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) {
		l.log = log.With().Str("component", "ledger").Logger()
	}
}

// WithSink registers an event sink. Sinks are called in registration order.
func WithSink(sink EventSink) Option {
	return func(l *Ledger) {
		l.sinks = append(l.sinks, sink)
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger is the single owner of balance and supply state.
type Ledger struct {
	mu     sync.Mutex
	cfg    Config
	policy Policy
	store  storage.LedgerStore
	sinks  []EventSink
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a ledger over store. When the store holds no initialized state,
// the initial distribution and token URI are committed before New returns.
// Reopening an initialized store never mints again.
func New(ctx context.Context, cfg Config, store storage.LedgerStore, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}

	l := &Ledger{
		cfg:    cfg,
		policy: NewPolicy(cfg.Owner, cfg.DAO),
		store:  store,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.initialize(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// initialize runs the one-time distribution.
func (l *Ledger) initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := newStage(ctx, l.store, l.now().UnixMilli())
	if err != nil {
		return err
	}
	if st.state.Initialized {
		l.log.Info().
			Uint64("supply", st.state.Supply).
			Uint64("sequence", st.state.Sequence).
			Msg("ledger state already initialized, skipping distribution")
		return nil
	}

	for _, a := range l.cfg.Distribution {
		if err := st.mint(a.Recipient, a.Amount); err != nil {
			return fmt.Errorf("distribute %s allocation: %w", a.Label, err)
		}
		l.log.Info().
			Str("label", a.Label).
			Str("recipient", a.Recipient.String()).
			Uint64("amount", a.Amount).
			Msg("initial allocation minted")
	}
	st.state.TokenURI = l.cfg.TokenURI
	st.state.Initialized = true

	return l.commit(ctx, "initialize", st)
}

// Policy returns the access policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Config returns the construction-time configuration.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Mint creates amount new tokens for recipient. Only the owner may mint.
func (l *Ledger) Mint(ctx context.Context, caller domain.Principal, amount uint64, recipient domain.Principal) error {
	return l.apply(ctx, domain.OpMint, caller, func(st *stage) error {
		if !l.policy.IsOwner(caller) {
			return ErrUnauthorized
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		return st.mint(recipient, amount)
	})
}

// Transfer moves amount from sender to recipient. The caller must be the sender.
// Self-transfers are valid and leave the balance unchanged. memo is opaque.
func (l *Ledger) Transfer(
	ctx context.Context,
	caller domain.Principal,
	amount uint64,
	sender domain.Principal,
	recipient domain.Principal,
	memo []byte,
) error {
	return l.apply(ctx, domain.OpTransfer, caller, func(st *stage) error {
		return checkedMove(st, caller, domain.TransferItem{
			Amount:    amount,
			Sender:    sender,
			Recipient: recipient,
			Memo:      memo,
		})
	})
}

// Burn destroys amount tokens from the caller's own balance.
func (l *Ledger) Burn(ctx context.Context, caller domain.Principal, amount uint64) error {
	return l.apply(ctx, domain.OpBurn, caller, func(st *stage) error {
		if amount == 0 {
			return ErrInvalidAmount
		}
		return st.burn(caller, amount)
	})
}

// GetBalance returns the balance of p, zero if p was never credited.
func (l *Ledger) GetBalance(ctx context.Context, p domain.Principal) (uint64, error) {
	return l.store.Balance(ctx, p)
}

// GetTotalSupply returns the current total supply.
func (l *Ledger) GetTotalSupply(ctx context.Context) (uint64, error) {
	state, err := l.store.State(ctx)
	if err != nil {
		return 0, err
	}
	return state.Supply, nil
}

// GetName returns the token name.
func (l *Ledger) GetName() string {
	return l.cfg.Token.Name
}

// GetSymbol returns the token symbol.
func (l *Ledger) GetSymbol() string {
	return l.cfg.Token.Symbol
}

// GetDecimals returns the number of decimals of the token.
func (l *Ledger) GetDecimals() uint8 {
	return l.cfg.Token.Decimals
}

// checkedMove validates one transfer against the self-authorization rule and
// stages it.
func checkedMove(st *stage, caller domain.Principal, item domain.TransferItem) error {
	if caller != item.Sender {
		return ErrUnauthorized
	}
	if item.Amount == 0 {
		return ErrInvalidAmount
	}
	return st.move(item.Sender, item.Recipient, item.Amount, item.Memo)
}

// apply runs fn on a fresh stage and commits it when fn succeeds.
// On failure the stage is discarded.
func (l *Ledger) apply(ctx context.Context, op string, caller domain.Principal, fn func(*stage) error) error {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := newStage(ctx, l.store, l.now().UnixMilli())
	if err != nil {
		observability.RecordLedgerCall(op, KindOf(err), time.Since(start).Seconds())
		return err
	}

	if err := fn(st); err != nil {
		l.log.Debug().
			Str("op", op).
			Str("caller", caller.String()).
			Err(err).
			Msg("call rejected")
		observability.RecordLedgerCall(op, KindOf(err), time.Since(start).Seconds())
		return err
	}

	if err := l.commit(ctx, op, st); err != nil {
		observability.RecordLedgerCall(op, KindOf(err), time.Since(start).Seconds())
		return err
	}

	l.log.Info().
		Str("op", op).
		Str("caller", caller.String()).
		Int("events", len(st.events)).
		Uint64("supply", st.state.Supply).
		Msg("call committed")
	observability.RecordLedgerCall(op, "ok", time.Since(start).Seconds())
	return nil
}

// commit writes the stage atomically and then notifies sinks. A store that
// keeps its own event log receives the events in the same transaction.
func (l *Ledger) commit(ctx context.Context, op string, st *stage) error {
	var err error
	if journal, ok := l.store.(storage.JournalingLedgerStore); ok {
		err = journal.CommitWithEvents(ctx, st.changeSet(), st.events)
	} else {
		err = l.store.Commit(ctx, st.changeSet())
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}

	observability.UpdateLedgerState(st.state.Supply, st.state.Sequence, l.now().Unix())
	for _, e := range st.events {
		if e.Kind != domain.EventKindTokenURI {
			observability.RecordTokens(string(e.Kind), e.Amount)
		}
	}

	l.publish(ctx, st.events)
	return nil
}

// publish delivers events to every sink. Failures are logged only.
func (l *Ledger) publish(ctx context.Context, events []*domain.Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range l.sinks {
		err := sink.Publish(ctx, events)
		observability.RecordEventsPublished(sink.Name(), len(events), err)
		if err != nil {
			l.log.Error().
				Str("sink", sink.Name()).
				Uint64("first_sequence", events[0].Sequence).
				Int("events", len(events)).
				Err(err).
				Msg("could not publish events")
		}
	}
}
