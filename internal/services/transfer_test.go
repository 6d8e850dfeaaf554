package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/amqp"
	"moneypools/internal/core"
)

func TestTransfer_Committed(t *testing.T) {
	f := newFixture(t)
	from := f.pool(t, "checking", money("100", usd))
	to := f.pool(t, "savings", money("0", usd))

	for _, sum := range []string{"25", "-25"} {
		res, err := f.svc.Transfer(context.Background(), owner, TransferRequest{
			FromPoolID:  from.ID,
			ToPoolID:    to.ID,
			Sum:         money(sum, usd),
			Description: "rainy day",
		})
		require.NoError(t, err)
		assert.Equal(t, TransferCommitted, res.Outcome)
		require.NotNil(t, res.Deduction)
		require.NotNil(t, res.Addition)
		assert.True(t, res.Deduction.Sum.Equal(res.Addition.Sum.Neg()))
		assert.Equal(t, "Transfer to savings: rainy day", res.Deduction.Description)
		assert.Equal(t, "Transfer from checking: rainy day", res.Addition.Description)
	}

	assert.Equal(t, []string{"50.00 USD"}, f.balance(t, from.ID))
	assert.Equal(t, []string{"50.00 USD"}, f.balance(t, to.ID))
}

func TestTransfer_CrossCurrency(t *testing.T) {
	f := newFixture(t)
	from := f.pool(t, "checking", money("100", usd))
	to := f.pool(t, "euro", money("0", eur))

	res, err := f.svc.Transfer(context.Background(), owner, TransferRequest{FromPoolID: from.ID, ToPoolID: to.ID, Sum: money("25", usd)})
	require.NoError(t, err)
	assert.Equal(t, "-25.00 USD", res.Deduction.Sum.String())
	assert.Equal(t, "22.50 EUR", res.Addition.Sum.String())
	require.NotNil(t, res.Addition.OriginalCurrency)
	assert.Equal(t, "USD", res.Addition.OriginalCurrency.Code)
	assert.Equal(t, "Transfer to euro", res.Deduction.Description)
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.pool(t, "a", money("100", usd))
	b := f.pool(t, "b", money("0", usd))

	_, err := f.svc.Transfer(ctx, owner, TransferRequest{FromPoolID: a.ID, ToPoolID: b.ID, Sum: money("0", usd)})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.Transfer(ctx, owner, TransferRequest{FromPoolID: a.ID, ToPoolID: a.ID, Sum: money("1", usd)})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.Transfer(ctx, owner, TransferRequest{FromPoolID: a.ID, ToPoolID: "missing", Sum: money("1", usd)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Empty(t, f.events.types())
}

func TestTransfer_RevertedAfterFailure(t *testing.T) {
	f := newFixture(t)
	from := f.pool(t, "checking", money("100", usd))
	to := f.pool(t, "savings", money("0", usd))
	f.store.failAddPool = to.ID

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.svc.Transfer(ctx, owner, TransferRequest{FromPoolID: from.ID, ToPoolID: to.ID, Sum: money("25", usd)})
	cancel()

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPartiallyReverted)
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotErrorIs(t, err, core.ErrInconsistentState)
	assert.Equal(t, TransferRevertedAfterFailure, res.Outcome)
	assert.Nil(t, res.Addition)

	assert.Equal(t, []string{"100.00 USD"}, f.balance(t, from.ID))
	ts, err := f.svc.ListTransactions(context.Background(), owner, core.TransactionFilter{}, core.LatestFirst, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, ts)
}

func TestTransfer_Inconsistent(t *testing.T) {
	f := newFixture(t)
	from := f.pool(t, "checking", money("100", usd))
	to := f.pool(t, "savings", money("0", usd))
	f.store.failAddPool = to.ID
	f.store.failDelete = true

	res, err := f.svc.Transfer(context.Background(), owner, TransferRequest{FromPoolID: from.ID, ToPoolID: to.ID, Sum: money("25", usd)})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInconsistentState)
	assert.NotErrorIs(t, err, core.ErrPartiallyReverted)
	assert.Equal(t, TransferInconsistent, res.Outcome)
	require.NotNil(t, res.Deduction)

	assert.Equal(t, []string{"75.00 USD"}, f.balance(t, from.ID))
	assert.Equal(t, []amqp.EventType{amqp.EventTransactionAdded, amqp.EventTransferInconsistent}, f.events.types())

	last := f.events.events[len(f.events.events)-1]
	require.NotNil(t, last.Transfer)
	assert.Equal(t, res.Deduction.ID, last.Transfer.DeductionID)
	assert.Equal(t, to.ID, last.Transfer.ToPoolID)
}
