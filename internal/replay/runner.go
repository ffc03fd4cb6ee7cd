package replay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"token-ledger/internal/storage"
)

// Runner executes call scripts and replays stored event logs.
type Runner struct {
	exec Executor
	log  zerolog.Logger
}

// NewRunner creates a new replay runner.
func NewRunner(exec Executor, log zerolog.Logger) *Runner {
	return &Runner{
		exec: exec,
		log:  log.With().Str("component", "replay").Logger(),
	}
}

// Run executes calls in order. A failing call does not stop the run; its
// failure is part of the outcome. Only context cancellation stops early.
func (r *Runner) Run(ctx context.Context, calls []ScriptedCall) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(calls))

	for _, c := range calls {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		res := r.exec.Execute(ctx, c.Call)
		outcomes = append(outcomes, Outcome{Line: c.Line, Call: c.Call, Result: res})

		if res.Ok {
			r.log.Debug().Int("line", c.Line).Str("op", c.Call.Op).Msg("call succeeded")
		} else {
			r.log.Info().
				Int("line", c.Line).
				Str("op", c.Call.Op).
				Uint32("code", res.Code).
				Str("error", res.Error).
				Msg("call failed")
		}
	}

	return outcomes, nil
}

// ReplayEvents loads the event log and feeds it to engine in sequence order.
func ReplayEvents(ctx context.Context, store storage.EventStore, engine EventEngine) error {
	events, err := store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	SortEvents(events)
	if err := ValidateOrdering(events); err != nil {
		return err
	}

	for _, event := range events {
		if err := engine.OnEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
