package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const policyColumns = `id, holder, flight_id, premium, payout, delay_threshold, departure_at,
	flight_status, actual_delay_minutes, status, created_at, flight_status_updated_at, settled_at`

// PostgresRepository предоставляет доступ к состоянию реестра в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn в транзакции. Строка ролей блокируется в начале каждой
// транзакции, поэтому изменяющие операции реестра выполняются строго по очереди.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var one int
		err = tx.QueryRow(ctx, `SELECT 1 FROM ledger_roles WHERE id = 1 FOR UPDATE`).Scan(&one)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotInitialized
			}
			return fmt.Errorf("lock ledger: %w", err)
		}

		if err := fn(&pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// WithToken выполняет операции с токеном в отдельной транзакции.
func (r *PostgresRepository) WithToken(ctx context.Context, fn func(t token.Token) error) error {
	return r.InTx(ctx, func(tx Tx) error {
		return fn(tx)
	})
}

// InitRoles записывает роли, если они ещё не заданы, и возвращает действующие.
func (r *PostgresRepository) InitRoles(ctx context.Context, roles model.Roles) (model.Roles, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ledger_roles (id, owner, oracle) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`,
		string(roles.Owner), string(roles.Oracle),
	)
	if err != nil {
		return model.Roles{}, fmt.Errorf("init roles: %w", err)
	}
	return r.Roles(ctx)
}

// Roles возвращает роли реестра.
func (r *PostgresRepository) Roles(ctx context.Context) (model.Roles, error) {
	return queryRoles(r.pool.QueryRow(ctx, `SELECT owner, oracle FROM ledger_roles WHERE id = 1`))
}

// GetPolicy возвращает полис по идентификатору.
func (r *PostgresRepository) GetPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	return scanPolicy(row)
}

// PolicyIDsByHolder возвращает идентификаторы полисов держателя.
func (r *PostgresRepository) PolicyIDsByHolder(ctx context.Context, holder model.Address) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT id FROM policies WHERE holder = $1 ORDER BY id`, string(holder))
}

// PoliciesByHolder возвращает полисы держателя по возрастанию идентификатора.
func (r *PostgresRepository) PoliciesByHolder(ctx context.Context, holder model.Address) ([]model.Policy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE holder = $1 ORDER BY id`,
		string(holder),
	)
	if err != nil {
		return nil, fmt.Errorf("select policies: %w", err)
	}
	defer rows.Close()

	var res []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FlightHasPolicy сообщает, есть ли у рейса полис.
func (r *PostgresRepository) FlightHasPolicy(ctx context.Context, flightID string) (bool, error) {
	return flightHasPolicy(r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM policies WHERE flight_id = $1)`, flightID))
}

// HolderHasFlight сообщает, есть ли у держателя полис на рейс.
func (r *PostgresRepository) HolderHasFlight(ctx context.Context, holder model.Address, flightID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM policies WHERE holder = $1 AND flight_id = $2)`,
		string(holder), flightID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check holder flight: %w", err)
	}
	return exists, nil
}

// ActivePolicyIDsForFlight возвращает активные полисы рейса.
func (r *PostgresRepository) ActivePolicyIDsForFlight(ctx context.Context, flightID string) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT id FROM policies WHERE flight_id = $1 AND status = $2 ORDER BY id`,
		flightID, string(model.PolicyStatusActive),
	)
}

// ActiveLiability возвращает сумму выплат и число активных полисов.
func (r *PostgresRepository) ActiveLiability(ctx context.Context) (model.Amount, int64, error) {
	var total, count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(payout), 0), COUNT(*) FROM policies WHERE status = $1`,
		string(model.PolicyStatusActive),
	).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum liability: %w", err)
	}
	return model.Amount(total), count, nil
}

// BalanceOf возвращает баланс счёта.
func (r *PostgresRepository) BalanceOf(ctx context.Context, account model.Address) (model.Amount, error) {
	return balanceOf(ctx, r.pool, account)
}

// Allowance возвращает разрешение spender на списание со счёта owner.
func (r *PostgresRepository) Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error) {
	return allowance(ctx, r.pool, owner, spender)
}

// PendingEvents возвращает неопубликованные события в порядке появления.
func (r *PostgresRepository) PendingEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, type, COALESCE(policy_id, 0), payload, occurred_at
		 FROM ledger_events
		 WHERE published_at IS NULL
		 ORDER BY seq
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		var (
			e       model.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.PolicyID, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(typ)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventsPublished отмечает события опубликованными.
func (r *PostgresRepository) MarkEventsPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE ledger_events SET published_at = now() WHERE id = ANY($1::uuid[])`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select policy ids: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect policy ids: %w", err)
	}
	return ids, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryRoles(row pgx.Row) (model.Roles, error) {
	var owner, oracle string
	if err := row.Scan(&owner, &oracle); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Roles{}, ErrNotInitialized
		}
		return model.Roles{}, fmt.Errorf("select roles: %w", err)
	}
	return model.Roles{Owner: model.Address(owner), Oracle: model.Address(oracle)}, nil
}

func flightHasPolicy(row pgx.Row) (bool, error) {
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check flight: %w", err)
	}
	return exists, nil
}

func balanceOf(ctx context.Context, q querier, account model.Address) (model.Amount, error) {
	var balance int64
	err := q.QueryRow(ctx, `SELECT balance FROM token_balances WHERE account = $1`, string(account)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return model.Amount(balance), nil
}

func allowance(ctx context.Context, q querier, owner, spender model.Address) (model.Amount, error) {
	var amount int64
	err := q.QueryRow(ctx,
		`SELECT amount FROM token_allowances WHERE owner = $1 AND spender = $2`,
		string(owner), string(spender),
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select allowance: %w", err)
	}
	return model.Amount(amount), nil
}

func scanPolicy(row pgx.Row) (*model.Policy, error) {
	var (
		p                   model.Policy
		holder, flightState string
		status              string
		premium, payout     int64
	)
	err := row.Scan(
		&p.ID, &holder, &p.FlightID, &premium, &payout, &p.DelayThreshold, &p.DepartureAt,
		&flightState, &p.ActualDelayMinutes, &status, &p.CreatedAt, &p.FlightStatusUpdatedAt, &p.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}

	p.Holder = model.Address(holder)
	p.Premium = model.Amount(premium)
	p.Payout = model.Amount(payout)
	p.FlightStatus = model.FlightStatus(flightState)
	p.Status = model.PolicyStatus(status)
	return &p, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Roles(ctx context.Context) (model.Roles, error) {
	return queryRoles(t.tx.QueryRow(ctx, `SELECT owner, oracle FROM ledger_roles WHERE id = 1`))
}

func (t *pgTx) SetRoles(ctx context.Context, roles model.Roles) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE ledger_roles SET owner = $1, oracle = $2, updated_at = now() WHERE id = 1`,
		string(roles.Owner), string(roles.Oracle),
	)
	if err != nil {
		return fmt.Errorf("update roles: %w", err)
	}
	return nil
}

func (t *pgTx) LockPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1 FOR UPDATE`, id)
	return scanPolicy(row)
}

func (t *pgTx) FlightHasPolicy(ctx context.Context, flightID string) (bool, error) {
	return flightHasPolicy(t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM policies WHERE flight_id = $1)`, flightID))
}

func (t *pgTx) InsertPolicy(ctx context.Context, p *model.Policy) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO policies (holder, flight_id, premium, payout, delay_threshold, departure_at,
			flight_status, actual_delay_minutes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		string(p.Holder), p.FlightID, int64(p.Premium), int64(p.Payout), p.DelayThreshold, p.DepartureAt,
		string(p.FlightStatus), p.ActualDelayMinutes, string(p.Status), p.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrFlightInsured, p.FlightID)
		}
		return 0, fmt.Errorf("insert policy: %w", err)
	}
	p.ID = id
	return id, nil
}

func (t *pgTx) UpdatePolicy(ctx context.Context, p *model.Policy) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE policies
		 SET flight_status = $2, actual_delay_minutes = $3, status = $4,
		     flight_status_updated_at = $5, settled_at = $6
		 WHERE id = $1`,
		p.ID, string(p.FlightStatus), p.ActualDelayMinutes, string(p.Status),
		p.FlightStatusUpdatedAt, p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e model.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	var policyID *int64
	if e.PolicyID != 0 {
		policyID = &e.PolicyID
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO ledger_events (id, type, policy_id, payload, occurred_at)
		 VALUES ($1::uuid, $2, $3, $4::jsonb, $5)`,
		e.ID, string(e.Type), policyID, string(payload), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *pgTx) BalanceOf(ctx context.Context, account model.Address) (model.Amount, error) {
	return balanceOf(ctx, t.tx, account)
}

func (t *pgTx) Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error) {
	return allowance(ctx, t.tx, owner, spender)
}

func (t *pgTx) Approve(ctx context.Context, owner, spender model.Address, amount model.Amount) error {
	if owner.IsZero() || spender.IsZero() {
		return token.ErrZeroAddress
	}
	if amount < 0 {
		return token.ErrNegativeAllowance
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO token_allowances (owner, spender, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
		string(owner), string(spender), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("upsert allowance: %w", err)
	}
	return nil
}

func (t *pgTx) Transfer(ctx context.Context, from, to model.Address, amount model.Amount) error {
	if err := token.CheckTransfer(from, to, amount); err != nil {
		return err
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE token_balances SET balance = balance - $2 WHERE account = $1 AND balance >= $2`,
		string(from), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrInsufficientBalance
	}

	return t.credit(ctx, to, amount)
}

func (t *pgTx) TransferFrom(ctx context.Context, spender, from, to model.Address, amount model.Amount) error {
	if err := token.CheckTransfer(from, to, amount); err != nil {
		return err
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE token_allowances SET amount = amount - $3 WHERE owner = $1 AND spender = $2 AND amount >= $3`,
		string(from), string(spender), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("spend allowance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrInsufficientAllowance
	}

	return t.Transfer(ctx, from, to, amount)
}

func (t *pgTx) Mint(ctx context.Context, to model.Address, amount model.Amount) error {
	if amount <= 0 {
		return token.ErrNonPositiveAmount
	}
	if to.IsZero() {
		return token.ErrZeroAddress
	}
	return t.credit(ctx, to, amount)
}

func (t *pgTx) credit(ctx context.Context, to model.Address, amount model.Amount) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO token_balances (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET balance = token_balances.balance + EXCLUDED.balance`,
		string(to), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}
