package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/repository"
)

// GetPolicy возвращает полис по идентификатору.
func (l *Ledger) GetPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	p, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}

// PolicyIDsForHolder возвращает идентификаторы полисов держателя по возрастанию.
func (l *Ledger) PolicyIDsForHolder(ctx context.Context, holder model.Address) ([]int64, error) {
	return l.store.PolicyIDsByHolder(ctx, holder)
}

// PoliciesForHolder возвращает полисы держателя по возрастанию идентификатора.
func (l *Ledger) PoliciesForHolder(ctx context.Context, holder model.Address) ([]model.Policy, error) {
	return l.store.PoliciesByHolder(ctx, holder)
}

// FlightHasPolicy сообщает, застрахован ли рейс кем-либо.
func (l *Ledger) FlightHasPolicy(ctx context.Context, flightID string) (bool, error) {
	return l.store.FlightHasPolicy(ctx, strings.TrimSpace(flightID))
}

// HasInsuredFlight сообщает, застраховал ли держатель указанный рейс.
func (l *Ledger) HasInsuredFlight(ctx context.Context, holder model.Address, flightID string) (bool, error) {
	return l.store.HolderHasFlight(ctx, holder, strings.TrimSpace(flightID))
}

// ActivePoliciesForFlight возвращает активные полисы рейса.
func (l *Ledger) ActivePoliciesForFlight(ctx context.Context, flightID string) ([]int64, error) {
	return l.store.ActivePolicyIDsForFlight(ctx, strings.TrimSpace(flightID))
}

// Roles возвращает адреса владельца и оракула.
func (l *Ledger) Roles(ctx context.Context) (model.Roles, error) {
	return l.store.Roles(ctx)
}

// CustodyBalance возвращает остаток стейблкоина на счёте реестра.
func (l *Ledger) CustodyBalance(ctx context.Context) (model.Amount, error) {
	return l.store.BalanceOf(ctx, l.custody)
}

// Solvency сравнивает остаток на счёте реестра с суммой выплат по активным полисам.
// Реестр не требует резерва при создании полиса: пополняет счёт оператор.
func (l *Ledger) Solvency(ctx context.Context) (model.Solvency, error) {
	custody, err := l.store.BalanceOf(ctx, l.custody)
	if err != nil {
		return model.Solvency{}, err
	}
	liability, active, err := l.store.ActiveLiability(ctx)
	if err != nil {
		return model.Solvency{}, err
	}

	s := model.Solvency{
		Custody:     custody,
		Liability:   liability,
		ActiveCount: active,
	}
	if liability > custody {
		s.Shortfall = liability - custody
	}
	return s, nil
}
