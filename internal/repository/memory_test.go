package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
)

var (
	testOwner  = model.MustParseAddress("0x1000000000000000000000000000000000000001")
	testHolder = model.MustParseAddress("0x2000000000000000000000000000000000000002")
	testLedger = model.MustParseAddress("0x5000000000000000000000000000000000000005")
)

func newTestMemoryRepository(t *testing.T) *MemoryRepository {
	t.Helper()

	r := NewMemoryRepository()
	_, err := r.InitRoles(context.Background(), model.Roles{Owner: testOwner, Oracle: model.ZeroAddress})
	require.NoError(t, err)
	return r
}

func testPolicy(flightID string) *model.Policy {
	return &model.Policy{
		Holder:         testHolder,
		FlightID:       flightID,
		Premium:        model.Units(10),
		Payout:         model.Units(100),
		DelayThreshold: 120,
		DepartureAt:    time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC),
		FlightStatus:   model.FlightStatusOnTime,
		Status:         model.PolicyStatusActive,
	}
}

func TestMemoryRepository_NotInitialized(t *testing.T) {
	r := NewMemoryRepository()

	err := r.InTx(context.Background(), func(tx Tx) error { return nil })
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = r.Roles(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestMemoryRepository_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	r := newTestMemoryRepository(t)

	boom := errors.New("boom")
	err := r.InTx(ctx, func(tx Tx) error {
		if err := tx.Mint(ctx, testHolder, model.Units(50)); err != nil {
			return err
		}
		if _, err := tx.InsertPolicy(ctx, testPolicy("TK1")); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, model.Event{ID: "e1", Type: model.EventPolicyCreated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balance, err := r.BalanceOf(ctx, testHolder)
	require.NoError(t, err)
	assert.Zero(t, balance)

	has, err := r.FlightHasPolicy(ctx, "TK1")
	require.NoError(t, err)
	assert.False(t, has)

	events, err := r.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// идентификатор откаченной вставки не расходуется
	var id int64
	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		var err error
		id, err = tx.InsertPolicy(ctx, testPolicy("TK1"))
		return err
	}))
	assert.Equal(t, int64(1), id)
}

func TestMemoryRepository_FlightUniqueness(t *testing.T) {
	ctx := context.Background()
	r := newTestMemoryRepository(t)

	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		_, err := tx.InsertPolicy(ctx, testPolicy("TK1"))
		return err
	}))

	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.InsertPolicy(ctx, testPolicy("TK1"))
		return err
	})
	require.ErrorIs(t, err, ErrFlightInsured)
}

func TestMemoryRepository_Token(t *testing.T) {
	ctx := context.Background()
	r := newTestMemoryRepository(t)

	require.NoError(t, r.WithToken(ctx, func(tk token.Token) error {
		return tk.Mint(ctx, testHolder, model.Units(20))
	}))

	err := r.WithToken(ctx, func(tk token.Token) error {
		return tk.TransferFrom(ctx, testLedger, testHolder, testLedger, model.Units(10))
	})
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, r.WithToken(ctx, func(tk token.Token) error {
		return tk.Approve(ctx, testHolder, testLedger, model.Units(15))
	}))
	require.NoError(t, r.WithToken(ctx, func(tk token.Token) error {
		return tk.TransferFrom(ctx, testLedger, testHolder, testLedger, model.Units(10))
	}))

	allowance, err := r.Allowance(ctx, testHolder, testLedger)
	require.NoError(t, err)
	assert.Equal(t, model.Units(5), allowance)

	err = r.WithToken(ctx, func(tk token.Token) error {
		return tk.Transfer(ctx, testHolder, testLedger, model.Units(11))
	})
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	err = r.WithToken(ctx, func(tk token.Token) error {
		return tk.Transfer(ctx, testHolder, testLedger, 0)
	})
	require.ErrorIs(t, err, token.ErrNonPositiveAmount)

	holderBalance, err := r.BalanceOf(ctx, testHolder)
	require.NoError(t, err)
	ledgerBalance, err := r.BalanceOf(ctx, testLedger)
	require.NoError(t, err)
	assert.Equal(t, model.Units(10), holderBalance)
	assert.Equal(t, model.Units(10), ledgerBalance)
}

func TestMemoryRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	r := newTestMemoryRepository(t)

	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		for _, id := range []string{"e1", "e2", "e3"} {
			if err := tx.AppendEvent(ctx, model.Event{ID: id, Type: model.EventOracleUpdated}); err != nil {
				return err
			}
		}
		return nil
	}))

	events, err := r.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)

	require.NoError(t, r.MarkEventsPublished(ctx, []string{"e1", "e2"}))

	events, err = r.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e3", events[0].ID)

	require.NoError(t, r.MarkEventsPublished(ctx, []string{"e3"}))
	assert.Empty(t, r.state.pending)

	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		return tx.AppendEvent(ctx, model.Event{ID: "e4", Type: model.EventOracleUpdated})
	}))
	require.Len(t, r.state.pending, 1)
	assert.Equal(t, "e4", r.state.pending[0].ID)
}

func TestMemoryRepository_Liability(t *testing.T) {
	ctx := context.Background()
	r := newTestMemoryRepository(t)

	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertPolicy(ctx, testPolicy("TK1")); err != nil {
			return err
		}
		paid := testPolicy("TK2")
		if _, err := tx.InsertPolicy(ctx, paid); err != nil {
			return err
		}
		paid.Status = model.PolicyStatusPaid
		return tx.UpdatePolicy(ctx, paid)
	}))

	total, count, err := r.ActiveLiability(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Units(100), total)
	assert.Equal(t, int64(1), count)

	ids, err := r.ActivePolicyIDsForFlight(ctx, "TK2")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = r.PolicyIDsByHolder(ctx, testHolder)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}
