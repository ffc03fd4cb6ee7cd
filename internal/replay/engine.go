package replay

import (
	"context"

	"token-ledger/internal/domain"
)

// Executor runs one call against a ledger. *ledger.Ledger implements it.
type Executor interface {
	Execute(ctx context.Context, call domain.Call) domain.Result
}

// EventEngine processes committed events in sequence order.
type EventEngine interface {
	// OnEvent is called for each event in order.
	OnEvent(ctx context.Context, event *domain.Event) error
}

// Outcome pairs a scripted call with its result.
type Outcome struct {
	Line   int           `json:"line"` // 1-based line in the script
	Call   domain.Call   `json:"call"`
	Result domain.Result `json:"result"`
}

// Summary counts outcomes by failure code.
type Summary struct {
	Total    int            `json:"total"`
	Ok       int            `json:"ok"`
	Failed   int            `json:"failed"`
	ByCode   map[uint32]int `json:"by_code,omitempty"`
	ByOp     map[string]int `json:"by_op,omitempty"`
	LastLine int            `json:"last_line"`
}

// Summarize aggregates outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		ByCode: make(map[uint32]int),
		ByOp:   make(map[string]int),
	}
	for _, o := range outcomes {
		s.Total++
		s.ByOp[o.Call.Op]++
		if o.Result.Ok {
			s.Ok++
		} else {
			s.Failed++
			s.ByCode[o.Result.Code]++
		}
		s.LastLine = o.Line
	}
	return s
}
