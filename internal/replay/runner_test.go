package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/storage/memory"
)

var (
	owner   = domain.Principal{0xd0}
	dao     = domain.Principal{0xda}
	wallet1 = domain.Principal{0x01}
	wallet2 = domain.Principal{0x02}
)

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	cfg := ledger.Config{
		Owner: owner,
		DAO:   dao,
		Token: domain.TokenInfo{Name: "Replay", Symbol: "RPL", Decimals: 2},
	}
	l, err := ledger.New(context.Background(), cfg, memory.NewLedgerStore(), opts...)
	require.NoError(t, err)
	return l
}

func script() string {
	return fmt.Sprintf(`
# concrete scenario
{"op":"mint","caller":"%[1]s","amount":1000,"recipient":"%[2]s"}
{"op":"transfer","caller":"%[2]s","amount":100,"sender":"%[2]s","recipient":"%[3]s"}

{"op":"transfer","caller":"%[3]s","amount":200,"sender":"%[3]s","recipient":"%[2]s"}
{"op":"get-balance","principal":"%[2]s"}
{"op":"get-total-supply"}
`, owner, wallet1, wallet2)
}

func TestReadCalls(t *testing.T) {
	calls, err := ReadCalls(strings.NewReader(script()))
	require.NoError(t, err)
	require.Len(t, calls, 5)

	assert.Equal(t, 3, calls[0].Line)
	assert.Equal(t, domain.OpMint, calls[0].Call.Op)
	assert.Equal(t, owner, calls[0].Call.Caller)
	assert.Equal(t, uint64(1000), calls[0].Call.Amount)
	assert.Equal(t, 6, calls[2].Line)
	assert.Equal(t, wallet1, calls[3].Call.Principal)
}

func TestReadCalls_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "mint 100"},
		{"unknown field", `{"op":"mint","amuont":5}`},
		{"missing op", `{"amount":5}`},
		{"bad principal", `{"op":"get-balance","principal":"0OIl"}`},
		{"negative amount", `{"op":"burn","amount":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCalls(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCall))
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestRunner_Run(t *testing.T) {
	calls, err := ReadCalls(strings.NewReader(script()))
	require.NoError(t, err)

	runner := NewRunner(newLedger(t), zerolog.Nop())
	outcomes, err := runner.Run(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	assert.True(t, outcomes[0].Result.Ok)
	assert.True(t, outcomes[1].Result.Ok)

	assert.False(t, outcomes[2].Result.Ok)
	assert.Equal(t, uint32(ledger.CodeInsufficientBalance), outcomes[2].Result.Code)

	assert.Equal(t, uint64(900), outcomes[3].Result.Value)
	assert.Equal(t, uint64(1000), outcomes[4].Result.Value)

	summary := Summarize(outcomes)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Ok)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ByCode[uint32(ledger.CodeInsufficientBalance)])
	assert.Equal(t, 2, summary.ByOp[domain.OpTransfer])
	assert.Equal(t, 8, summary.LastLine)
}

func TestRunner_CancelledContext(t *testing.T) {
	calls, err := ReadCalls(strings.NewReader(script()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := NewRunner(newLedger(t), zerolog.Nop()).Run(ctx, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}

// collectingEngine collects events for verification.
type collectingEngine struct {
	events []*domain.Event
}

func (e *collectingEngine) OnEvent(_ context.Context, event *domain.Event) error {
	e.events = append(e.events, event)
	return nil
}

func TestReplayEvents(t *testing.T) {
	events := memory.NewEventStore()
	l := newLedger(t, ledger.WithSink(ledger.NewStoreSink("memory", events)))
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, owner, 50, wallet1))
	require.NoError(t, l.Transfer(ctx, wallet1, 20, wallet1, wallet2, nil))
	require.NoError(t, l.Burn(ctx, wallet2, 5))

	engine := &collectingEngine{}
	require.NoError(t, ReplayEvents(ctx, events, engine))
	require.Len(t, engine.events, 3)
	assert.Equal(t, domain.EventKindMint, engine.events[0].Kind)
	assert.Equal(t, domain.EventKindTransfer, engine.events[1].Kind)
	assert.Equal(t, domain.EventKindBurn, engine.events[2].Kind)
}

func TestValidateOrdering(t *testing.T) {
	ordered := []*domain.Event{{Sequence: 1}, {Sequence: 2}, {Sequence: 5}}
	assert.NoError(t, ValidateOrdering(ordered))

	dup := []*domain.Event{{Sequence: 1}, {Sequence: 1}}
	assert.ErrorIs(t, ValidateOrdering(dup), ErrInvalidOrdering)

	shuffled := []*domain.Event{{Sequence: 3}, {Sequence: 1}, {Sequence: 2}}
	SortEvents(shuffled)
	assert.NoError(t, ValidateOrdering(shuffled))
	assert.Equal(t, uint64(1), shuffled[0].Sequence)
}
