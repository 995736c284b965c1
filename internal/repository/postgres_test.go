package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
)

// Интеграционный тест запускается только при заданной TEST_DATABASE_URI
// и ожидает пустую базу данных.
func newTestPostgresRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = r.pool.Exec(context.Background(),
		`TRUNCATE ledger_events, token_allowances, token_balances, policies, ledger_roles RESTART IDENTITY`)
	require.NoError(t, err)

	return r
}

func TestPostgresRepository_PolicyLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestPostgresRepository(t)

	err := r.InTx(ctx, func(tx Tx) error { return nil })
	require.ErrorIs(t, err, ErrNotInitialized)

	roles, err := r.InitRoles(ctx, model.Roles{Owner: testOwner, Oracle: model.ZeroAddress})
	require.NoError(t, err)
	assert.Equal(t, testOwner, roles.Owner)

	var id int64
	require.NoError(t, r.InTx(ctx, func(tx Tx) error {
		var err error
		id, err = tx.InsertPolicy(ctx, testPolicy("TK1"))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, model.Event{
			ID:      "7b3f5b8e-4a5e-4f55-9d59-1c7a6b0c2a11",
			Type:    model.EventPolicyCreated,
			Payload: map[string]any{"flight_id": "TK1"},
		})
	}))
	assert.Equal(t, int64(1), id)

	err = r.InTx(ctx, func(tx Tx) error {
		_, err := tx.InsertPolicy(ctx, testPolicy("TK1"))
		return err
	})
	require.ErrorIs(t, err, ErrFlightInsured)

	p, err := r.GetPolicy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testHolder, p.Holder)
	assert.Equal(t, model.Units(100), p.Payout)

	events, err := r.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TK1", events[0].Payload["flight_id"])

	require.NoError(t, r.MarkEventsPublished(ctx, []string{events[0].ID}))
	events, err = r.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPostgresRepository_Token(t *testing.T) {
	ctx := context.Background()
	r := newTestPostgresRepository(t)

	_, err := r.InitRoles(ctx, model.Roles{Owner: testOwner, Oracle: model.ZeroAddress})
	require.NoError(t, err)

	require.NoError(t, r.WithToken(ctx, func(tk token.Token) error {
		if err := tk.Mint(ctx, testHolder, model.Units(20)); err != nil {
			return err
		}
		return tk.Approve(ctx, testHolder, testLedger, model.Units(10))
	}))

	err = r.WithToken(ctx, func(tk token.Token) error {
		return tk.TransferFrom(ctx, testLedger, testHolder, testLedger, model.Units(11))
	})
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, r.WithToken(ctx, func(tk token.Token) error {
		return tk.TransferFrom(ctx, testLedger, testHolder, testLedger, model.Units(10))
	}))

	balance, err := r.BalanceOf(ctx, testLedger)
	require.NoError(t, err)
	assert.Equal(t, model.Units(10), balance)

	err = r.WithToken(ctx, func(tk token.Token) error {
		return tk.Transfer(ctx, testHolder, testLedger, model.Units(11))
	})
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
}
