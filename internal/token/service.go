package token

import (
	"context"

	"github.com/mmeshcher/flysure/internal/model"
)

// Store описывает хранилище балансов, с которым работает Service.
type Store interface {
	WithToken(ctx context.Context, fn func(t Token) error) error
	BalanceOf(ctx context.Context, account model.Address) (model.Amount, error)
	Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error)
}

// Service предоставляет держателям операции со стейблкоином.
type Service struct {
	store       Store
	faucetLimit model.Amount
}

// NewService создаёт сервис токена. faucetLimit ограничивает сумму одной
// выдачи тестовых токенов; ноль отключает выдачу.
func NewService(store Store, faucetLimit model.Amount) *Service {
	return &Service{
		store:       store,
		faucetLimit: faucetLimit,
	}
}

// BalanceOf возвращает баланс счёта.
func (s *Service) BalanceOf(ctx context.Context, account model.Address) (model.Amount, error) {
	return s.store.BalanceOf(ctx, account)
}

// Allowance возвращает разрешение spender на списание со счёта owner.
func (s *Service) Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error) {
	return s.store.Allowance(ctx, owner, spender)
}

// Approve задаёт разрешение spender на списание со счёта owner.
func (s *Service) Approve(ctx context.Context, owner, spender model.Address, amount model.Amount) error {
	return s.store.WithToken(ctx, func(t Token) error {
		return t.Approve(ctx, owner, spender, amount)
	})
}

// Transfer переводит средства между счетами. Оператор пополняет счёт реестра этим же переводом.
func (s *Service) Transfer(ctx context.Context, from, to model.Address, amount model.Amount) error {
	return s.store.WithToken(ctx, func(t Token) error {
		return t.Transfer(ctx, from, to, amount)
	})
}

// Faucet выпускает тестовые токены на счёт to.
func (s *Service) Faucet(ctx context.Context, to model.Address, amount model.Amount) error {
	if s.faucetLimit <= 0 {
		return ErrFaucetDisabled
	}
	if amount > s.faucetLimit {
		return ErrFaucetLimit
	}
	return s.store.WithToken(ctx, func(t Token) error {
		return t.Mint(ctx, to, amount)
	})
}
