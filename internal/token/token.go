// Package token описывает стейблкоин, которым оплачиваются премии и выплаты.
package token

import (
	"context"
	"errors"

	"github.com/mmeshcher/flysure/internal/model"
)

const (
	Symbol   = "PYUSD"
	Decimals = model.TokenDecimals
)

var (
	// ErrInsufficientBalance возвращается, если на счёте отправителя недостаточно средств.
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")
	// ErrInsufficientAllowance возвращается, если разрешение на списание меньше суммы.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrNonPositiveAmount     = errors.New("token: amount must be positive")
	ErrNegativeAllowance     = errors.New("token: allowance cannot be negative")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrFaucetDisabled        = errors.New("token: faucet is disabled")
	ErrFaucetLimit           = errors.New("token: faucet limit exceeded")
)

// Token описывает операции взаимозаменяемого токена, доступные реестру.
type Token interface {
	BalanceOf(ctx context.Context, account model.Address) (model.Amount, error)
	Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error)
	Approve(ctx context.Context, owner, spender model.Address, amount model.Amount) error
	Transfer(ctx context.Context, from, to model.Address, amount model.Amount) error
	TransferFrom(ctx context.Context, spender, from, to model.Address, amount model.Amount) error
	Mint(ctx context.Context, to model.Address, amount model.Amount) error
}

// CheckTransfer проверяет аргументы перевода до обращения к хранилищу.
func CheckTransfer(from, to model.Address, amount model.Amount) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	return nil
}
