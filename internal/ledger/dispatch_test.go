package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
)

func TestExecute(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		call  domain.Call
		ok    bool
		value any
		code  Code
	}{
		{
			name:  "mint",
			call:  domain.Call{Op: domain.OpMint, Caller: owner, Amount: 1000, Recipient: wallet1},
			ok:    true,
			value: true,
		},
		{
			name: "unauthorized mint",
			call: domain.Call{Op: domain.OpMint, Caller: wallet1, Amount: 1000, Recipient: wallet1},
			code: CodeUnauthorized,
		},
		{
			name:  "transfer",
			call:  domain.Call{Op: domain.OpTransfer, Caller: wallet1, Amount: 100, Sender: wallet1, Recipient: wallet2},
			ok:    true,
			value: true,
		},
		{
			name: "overdraw",
			call: domain.Call{Op: domain.OpTransfer, Caller: wallet2, Amount: 200, Sender: wallet2, Recipient: wallet1},
			code: CodeInsufficientBalance,
		},
		{
			name: "batch",
			call: domain.Call{Op: domain.OpTransferMany, Caller: wallet1, Items: []domain.TransferItem{
				{Amount: 0, Sender: wallet1, Recipient: wallet3},
			}},
			code: CodeInvalidAmount,
		},
		{
			name:  "burn",
			call:  domain.Call{Op: domain.OpBurn, Caller: wallet2, Amount: 50},
			ok:    true,
			value: true,
		},
		{
			name:  "balance",
			call:  domain.Call{Op: domain.OpGetBalance, Principal: wallet1},
			ok:    true,
			value: uint64(900),
		},
		{
			name:  "supply",
			call:  domain.Call{Op: domain.OpGetTotalSupply},
			ok:    true,
			value: uint64(950),
		},
		{
			name: "uri update by owner",
			call: domain.Call{Op: domain.OpUpdateTokenURI, Caller: owner, URI: "x"},
			code: CodeUnauthorized,
		},
		{
			name:  "uri update by dao",
			call:  domain.Call{Op: domain.OpUpdateTokenURI, Caller: dao, URI: "ipfs://new"},
			ok:    true,
			value: true,
		},
		{
			name:  "uri",
			call:  domain.Call{Op: domain.OpGetTokenURI},
			ok:    true,
			value: "ipfs://new",
		},
		{
			name:  "name",
			call:  domain.Call{Op: domain.OpGetName},
			ok:    true,
			value: "Test Token",
		},
		{
			name:  "symbol",
			call:  domain.Call{Op: domain.OpGetSymbol},
			ok:    true,
			value: "TST",
		},
		{
			name:  "decimals",
			call:  domain.Call{Op: domain.OpGetDecimals},
			ok:    true,
			value: uint8(6),
		},
		{
			name: "unknown",
			call: domain.Call{Op: "approve"},
			code: CodeUnknownOperation,
		},
	}

	// Cases run in order; later ones depend on earlier state.
	for _, tt := range tests {
		res := l.Execute(ctx, tt.call)
		require.Equal(t, tt.ok, res.Ok, "%s: %+v", tt.name, res)
		if tt.ok {
			assert.Equal(t, tt.value, res.Value, tt.name)
			assert.Zero(t, res.Code, tt.name)
		} else {
			assert.Equal(t, uint32(tt.code), res.Code, tt.name)
			assert.NotEmpty(t, res.Error, tt.name)
		}
	}
}
