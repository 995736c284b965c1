package ledger

import (
	"context"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/repository"
)

// Authority проверяет право вызывающего на привилегированные операции.
type Authority interface {
	RequireOwner(ctx context.Context, tx repository.Tx, caller model.Address) error
	RequireOracle(ctx context.Context, tx repository.Tx, caller model.Address) error
}

// RoleAuthority сверяет вызывающего с ролями, записанными в хранилище.
type RoleAuthority struct{}

// RequireOwner возвращает ErrNotOwner, если вызывающий не владелец реестра.
func (RoleAuthority) RequireOwner(ctx context.Context, tx repository.Tx, caller model.Address) error {
	roles, err := tx.Roles(ctx)
	if err != nil {
		return err
	}
	if caller.IsZero() || roles.Owner != caller {
		return ErrNotOwner
	}
	return nil
}

// RequireOracle возвращает ErrNotOracle, если вызывающий не оракул.
// Пока оракул не назначен, проверку не проходит никто.
func (RoleAuthority) RequireOracle(ctx context.Context, tx repository.Tx, caller model.Address) error {
	roles, err := tx.Roles(ctx)
	if err != nil {
		return err
	}
	if caller.IsZero() || roles.Oracle.IsZero() || roles.Oracle != caller {
		return ErrNotOracle
	}
	return nil
}
