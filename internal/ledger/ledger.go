// Package ledger реализует реестр полисов: создание, отчёты оракула,
// выплаты и истечение полисов.
//
// Все изменяющие операции выполняются в одной транзакции хранилища и
// применяются либо целиком, либо не применяются вовсе.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/repository"
)

// Store описывает хранилище, с которым работает реестр.
type Store interface {
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
	InitRoles(ctx context.Context, roles model.Roles) (model.Roles, error)

	Roles(ctx context.Context) (model.Roles, error)
	GetPolicy(ctx context.Context, id int64) (*model.Policy, error)
	PolicyIDsByHolder(ctx context.Context, holder model.Address) ([]int64, error)
	PoliciesByHolder(ctx context.Context, holder model.Address) ([]model.Policy, error)
	FlightHasPolicy(ctx context.Context, flightID string) (bool, error)
	HolderHasFlight(ctx context.Context, holder model.Address, flightID string) (bool, error)
	ActivePolicyIDsForFlight(ctx context.Context, flightID string) ([]int64, error)
	ActiveLiability(ctx context.Context) (model.Amount, int64, error)
	BalanceOf(ctx context.Context, account model.Address) (model.Amount, error)
}

// CreatePolicyParams содержит параметры нового полиса.
type CreatePolicyParams struct {
	FlightID       string
	Premium        model.Amount
	Payout         model.Amount
	DelayThreshold int64
	DepartureAt    time.Time
}

// Ledger содержит бизнес-логику реестра полисов.
type Ledger struct {
	store     Store
	custody   model.Address
	authority Authority
	now       func() time.Time
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithAuthority подменяет проверку ролей владельца и оракула.
func WithAuthority(a Authority) Option {
	return func(l *Ledger) {
		l.authority = a
	}
}

// New создаёт реестр поверх хранилища. custody задаёт адрес счёта, на котором
// реестр держит премии и из которого платит выплаты.
func New(store Store, custody model.Address, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		custody:   custody,
		authority: RoleAuthority{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init записывает владельца реестра при первом запуске и возвращает действующие роли.
func (l *Ledger) Init(ctx context.Context, owner model.Address) (model.Roles, error) {
	if owner.IsZero() {
		return model.Roles{}, ErrInvalidOwner
	}
	return l.store.InitRoles(ctx, model.Roles{Owner: owner, Oracle: model.ZeroAddress})
}

// CustodyAddress возвращает адрес счёта реестра.
func (l *Ledger) CustodyAddress() model.Address {
	return l.custody
}

// CreatePolicy создаёт полис и списывает премию со счёта вызывающего
// в пользу реестра. Требует предварительного разрешения на сумму премии.
func (l *Ledger) CreatePolicy(ctx context.Context, caller model.Address, p CreatePolicyParams) (int64, error) {
	now := l.now()
	flightID := strings.TrimSpace(p.FlightID)
	departure := p.DepartureAt.UTC().Truncate(time.Second)

	switch {
	case flightID == "":
		return 0, ErrEmptyFlightID
	case p.Premium <= 0:
		return 0, ErrZeroPremium
	case p.Payout <= 0:
		return 0, ErrZeroPayout
	case p.DelayThreshold <= 0:
		return 0, ErrZeroDelayThreshold
	case !departure.After(now):
		return 0, ErrDepartureInPast
	}

	var id int64
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		insured, err := tx.FlightHasPolicy(ctx, flightID)
		if err != nil {
			return err
		}
		if insured {
			return ErrFlightAlreadyInsured
		}

		if err := tx.TransferFrom(ctx, l.custody, caller, l.custody, p.Premium); err != nil {
			return err
		}

		policy := &model.Policy{
			Holder:         caller,
			FlightID:       flightID,
			Premium:        p.Premium,
			Payout:         p.Payout,
			DelayThreshold: p.DelayThreshold,
			DepartureAt:    departure,
			FlightStatus:   model.FlightStatusOnTime,
			Status:         model.PolicyStatusActive,
			CreatedAt:      now.UTC(),
		}

		id, err = tx.InsertPolicy(ctx, policy)
		if err != nil {
			if errors.Is(err, repository.ErrFlightInsured) {
				return ErrFlightAlreadyInsured
			}
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventPolicyCreated, id, map[string]any{
			"holder":          caller,
			"flight_id":       flightID,
			"premium":         p.Premium.String(),
			"payout":          p.Payout.String(),
			"delay_threshold": p.DelayThreshold,
			"departure":       policy.DepartureAt.Unix(),
		}))
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// SetOracleAddress заменяет адрес оракула. Доступно только владельцу.
func (l *Ledger) SetOracleAddress(ctx context.Context, caller, oracle model.Address) error {
	return l.store.InTx(ctx, func(tx repository.Tx) error {
		if err := l.authority.RequireOwner(ctx, tx, caller); err != nil {
			return err
		}
		if oracle.IsZero() {
			return ErrInvalidOracle
		}

		roles, err := tx.Roles(ctx)
		if err != nil {
			return err
		}
		previous := roles.Oracle
		roles.Oracle = oracle
		if err := tx.SetRoles(ctx, roles); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventOracleUpdated, 0, map[string]any{
			"previous": previous,
			"oracle":   oracle,
		}))
	})
}

// TransferOwnership передаёт роль владельца. Доступно только владельцу.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, owner model.Address) error {
	return l.store.InTx(ctx, func(tx repository.Tx) error {
		if err := l.authority.RequireOwner(ctx, tx, caller); err != nil {
			return err
		}
		if owner.IsZero() {
			return ErrInvalidOwner
		}

		roles, err := tx.Roles(ctx)
		if err != nil {
			return err
		}
		previous := roles.Owner
		roles.Owner = owner
		if err := tx.SetRoles(ctx, roles); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventOwnershipTransferred, 0, map[string]any{
			"previous": previous,
			"owner":    owner,
		}))
	})
}

// UpdateFlightStatus записывает наблюдение оракула о рейсе полиса.
// Статус полиса не меняется: выплату или истечение инициирует держатель.
func (l *Ledger) UpdateFlightStatus(ctx context.Context, caller model.Address, policyID int64, status model.FlightStatus, delayMinutes int64) error {
	return l.store.InTx(ctx, func(tx repository.Tx) error {
		if err := l.authority.RequireOracle(ctx, tx, caller); err != nil {
			return err
		}

		p, err := l.lockPolicy(ctx, tx, policyID)
		if err != nil {
			return err
		}

		if !status.Valid() {
			return ErrInvalidFlightStatus
		}
		if delayMinutes < 0 {
			return ErrNegativeDelay
		}
		if p.Status != model.PolicyStatusActive {
			return ErrPolicyNotActive
		}

		if status != model.FlightStatusDelayed {
			delayMinutes = 0
		}

		now := l.now().UTC()
		p.FlightStatus = status
		p.ActualDelayMinutes = delayMinutes
		p.FlightStatusUpdatedAt = &now

		if err := tx.UpdatePolicy(ctx, p); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventFlightStatusUpdated, p.ID, map[string]any{
			"flight_id":     p.FlightID,
			"flight_status": status,
			"delay_minutes": delayMinutes,
		}))
	})
}

// ProcessClaim выплачивает держателю сумму полиса, если рейс отменён
// или задержан не меньше порога. Доступно только держателю после вылета.
func (l *Ledger) ProcessClaim(ctx context.Context, caller model.Address, policyID int64) error {
	return l.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := l.settleable(ctx, tx, caller, policyID, ErrClaimBeforeDepart)
		if err != nil {
			return err
		}
		if !p.QualifiesForPayout() {
			return ErrNotQualified
		}

		custody, err := tx.BalanceOf(ctx, l.custody)
		if err != nil {
			return err
		}
		if custody < p.Payout {
			return ErrInsufficientCustody
		}

		if err := tx.Transfer(ctx, l.custody, p.Holder, p.Payout); err != nil {
			return err
		}

		now := l.now().UTC()
		p.Status = model.PolicyStatusPaid
		p.SettledAt = &now
		if err := tx.UpdatePolicy(ctx, p); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventPolicyPaid, p.ID, map[string]any{
			"holder":        p.Holder,
			"flight_id":     p.FlightID,
			"payout":        p.Payout.String(),
			"flight_status": p.FlightStatus,
			"delay_minutes": p.ActualDelayMinutes,
		}))
	})
}

// ExpirePolicy закрывает полис без выплаты, если рейс не дал оснований для неё.
// Доступно только держателю после вылета.
func (l *Ledger) ExpirePolicy(ctx context.Context, caller model.Address, policyID int64) error {
	return l.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := l.settleable(ctx, tx, caller, policyID, ErrExpireBeforeDepart)
		if err != nil {
			return err
		}
		if p.QualifiesForPayout() {
			return ErrQualifiesForPayout
		}

		now := l.now().UTC()
		p.Status = model.PolicyStatusExpired
		p.SettledAt = &now
		if err := tx.UpdatePolicy(ctx, p); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, l.event(model.EventPolicyExpired, p.ID, map[string]any{
			"holder":        p.Holder,
			"flight_id":     p.FlightID,
			"flight_status": p.FlightStatus,
			"delay_minutes": p.ActualDelayMinutes,
		}))
	})
}

// settleable проверяет общие условия закрытия полиса в порядке:
// существование, держатель, активность, наступление вылета.
func (l *Ledger) settleable(ctx context.Context, tx repository.Tx, caller model.Address, policyID int64, beforeDeparture error) (*model.Policy, error) {
	p, err := l.lockPolicy(ctx, tx, policyID)
	if err != nil {
		return nil, err
	}
	if p.Holder != caller {
		return nil, ErrNotHolder
	}
	if p.Status != model.PolicyStatusActive {
		return nil, ErrPolicyNotActive
	}
	if !p.Departed(l.now()) {
		return nil, beforeDeparture
	}
	return p, nil
}

func (l *Ledger) lockPolicy(ctx context.Context, tx repository.Tx, id int64) (*model.Policy, error) {
	p, err := tx.LockPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("lock policy %d: %w", id, err)
	}
	return p, nil
}

func (l *Ledger) event(t model.EventType, policyID int64, payload map[string]any) model.Event {
	return model.Event{
		ID:         uuid.NewString(),
		Type:       t,
		PolicyID:   policyID,
		Payload:    payload,
		OccurredAt: l.now().UTC(),
	}
}
