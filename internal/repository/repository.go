// Package repository содержит хранилища состояния реестра: PostgreSQL и in-memory.
package repository

import (
	"context"
	"errors"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
)

var (
	// ErrPolicyNotFound возвращается, если полис с указанным идентификатором не существует.
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrFlightInsured возвращается при нарушении уникальности рейса.
	ErrFlightInsured = errors.New("flight already has a policy")
	// ErrNotInitialized возвращается, если роли реестра ещё не записаны.
	ErrNotInitialized = errors.New("ledger roles are not initialized")
)

// Tx представляет изменяемое состояние хранилища внутри одной атомарной транзакции.
// Любая ошибка, возвращённая из функции транзакции, откатывает все записи,
// включая движения токена и события.
type Tx interface {
	token.Token

	Roles(ctx context.Context) (model.Roles, error)
	SetRoles(ctx context.Context, roles model.Roles) error

	LockPolicy(ctx context.Context, id int64) (*model.Policy, error)
	FlightHasPolicy(ctx context.Context, flightID string) (bool, error)
	InsertPolicy(ctx context.Context, p *model.Policy) (int64, error)
	UpdatePolicy(ctx context.Context, p *model.Policy) error

	AppendEvent(ctx context.Context, e model.Event) error
}
