package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
)

func TestTransferMany(t *testing.T) {
	setup := func(t *testing.T) *Ledger {
		l, _ := newTestLedger(t)
		require.NoError(t, l.Mint(context.Background(), owner, 1000, wallet1))
		return l
	}

	t.Run("applies every item", func(t *testing.T) {
		l := setup(t)
		err := l.TransferMany(context.Background(), wallet1, []domain.TransferItem{
			{Amount: 100, Sender: wallet1, Recipient: wallet2},
			{Amount: 250, Sender: wallet1, Recipient: wallet3, Memo: []byte("invoice-7")},
			{Amount: 50, Sender: wallet1, Recipient: wallet2},
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(600), balanceOf(t, l, wallet1))
		assert.Equal(t, uint64(150), balanceOf(t, l, wallet2))
		assert.Equal(t, uint64(250), balanceOf(t, l, wallet3))
		assert.Equal(t, uint64(1000), supplyOf(t, l))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		l := setup(t)
		require.NoError(t, l.TransferMany(context.Background(), wallet1, nil))
		assert.Equal(t, uint64(1000), balanceOf(t, l, wallet1))
	})

	t.Run("failing item rolls back earlier items", func(t *testing.T) {
		l := setup(t)
		err := l.TransferMany(context.Background(), wallet1, []domain.TransferItem{
			{Amount: 600, Sender: wallet1, Recipient: wallet2},
			{Amount: 600, Sender: wallet1, Recipient: wallet3},
			{Amount: 1, Sender: wallet1, Recipient: wallet2},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		var batchErr *BatchError
		require.True(t, errors.As(err, &batchErr))
		assert.Equal(t, 1, batchErr.Index)

		assert.Equal(t, uint64(1000), balanceOf(t, l, wallet1))
		assert.Zero(t, balanceOf(t, l, wallet2))
		assert.Zero(t, balanceOf(t, l, wallet3))
	})

	t.Run("items see earlier staged credits", func(t *testing.T) {
		l := setup(t)
		require.NoError(t, l.Transfer(context.Background(), wallet1, 1000, wallet1, wallet2, nil))

		// wallet2 sends to itself first; the balance check of item 1 uses the staged value
		err := l.TransferMany(context.Background(), wallet2, []domain.TransferItem{
			{Amount: 1000, Sender: wallet2, Recipient: wallet2},
			{Amount: 1000, Sender: wallet2, Recipient: wallet3},
		})
		require.NoError(t, err)
		assert.Zero(t, balanceOf(t, l, wallet2))
		assert.Equal(t, uint64(1000), balanceOf(t, l, wallet3))
	})

	t.Run("item with foreign sender is unauthorized", func(t *testing.T) {
		l := setup(t)
		err := l.TransferMany(context.Background(), wallet2, []domain.TransferItem{
			{Amount: 100, Sender: wallet1, Recipient: wallet2},
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, uint64(1000), balanceOf(t, l, wallet1))
	})

	t.Run("zero amount item is invalid", func(t *testing.T) {
		l := setup(t)
		err := l.TransferMany(context.Background(), wallet1, []domain.TransferItem{
			{Amount: 10, Sender: wallet1, Recipient: wallet2},
			{Amount: 0, Sender: wallet1, Recipient: wallet2},
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Equal(t, CodeInvalidAmount, CodeOf(err))
		assert.Zero(t, balanceOf(t, l, wallet2))
	})
}
