package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenDecimals задаёт число знаков после запятой у стейблкоина.
const TokenDecimals = 6

// ErrInvalidAmount возвращается при разборе некорректной суммы.
var ErrInvalidAmount = errors.New("invalid token amount")

// Amount хранит сумму стейблкоина в минимальных единицах (10^-6).
type Amount int64

// ParseAmount разбирает десятичную запись суммы, например "10.5".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}

	units := d.Shift(TokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than %d decimals in %s", ErrInvalidAmount, TokenDecimals, s)
	}
	if units.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("%w: out of range %s", ErrInvalidAmount, s)
	}

	return Amount(units.IntPart()), nil
}

// Units возвращает сумму в целых токенах, например Units(100) == 100 PYUSD.
func Units(n int64) Amount {
	return Amount(decimal.NewFromInt(n).Shift(TokenDecimals).IntPart())
}

// Decimal возвращает сумму в виде десятичного числа в целых токенах.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -TokenDecimals)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(TokenDecimals)
}
