package ledger

import (
	"context"

	"token-ledger/internal/domain"
)

// Execute dispatches a call by operation name and wraps the outcome.
// Mutating operations return ok(true); reads return ok(value).
func (l *Ledger) Execute(ctx context.Context, call domain.Call) domain.Result {
	switch call.Op {
	case domain.OpMint:
		return okTrue(l.Mint(ctx, call.Caller, call.Amount, call.Recipient))
	case domain.OpTransfer:
		return okTrue(l.Transfer(ctx, call.Caller, call.Amount, call.Sender, call.Recipient, call.Memo))
	case domain.OpTransferMany:
		return okTrue(l.TransferMany(ctx, call.Caller, call.Items))
	case domain.OpBurn:
		return okTrue(l.Burn(ctx, call.Caller, call.Amount))
	case domain.OpUpdateTokenURI:
		return okTrue(l.UpdateTokenURI(ctx, call.Caller, call.URI))
	case domain.OpGetBalance:
		balance, err := l.GetBalance(ctx, call.Principal)
		return okValue(balance, err)
	case domain.OpGetTokenURI:
		uri, err := l.GetTokenURI(ctx)
		return okValue(uri, err)
	case domain.OpGetTotalSupply:
		supply, err := l.GetTotalSupply(ctx)
		return okValue(supply, err)
	case domain.OpGetName:
		return okValue(l.GetName(), nil)
	case domain.OpGetSymbol:
		return okValue(l.GetSymbol(), nil)
	case domain.OpGetDecimals:
		return okValue(l.GetDecimals(), nil)
	default:
		return failure(ErrUnknownOperation)
	}
}

func okTrue(err error) domain.Result {
	return okValue(true, err)
}

func okValue(value any, err error) domain.Result {
	if err != nil {
		return failure(err)
	}
	return domain.Result{Ok: true, Value: value}
}

func failure(err error) domain.Result {
	return domain.Result{
		Ok:    false,
		Code:  uint32(CodeOf(err)),
		Error: err.Error(),
	}
}
