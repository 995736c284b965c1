package model

import (
	"encoding/hex"
	"errors"
	"strings"
)

// ZeroAddress обозначает отсутствие адреса.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ErrInvalidAddress возвращается для строк, не являющихся адресом счёта.
var ErrInvalidAddress = errors.New("invalid account address")

// Address представляет адрес счёта в виде 0x и 40 шестнадцатеричных символов в нижнем регистре.
type Address string

// ParseAddress проверяет и нормализует адрес счёта.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", ErrInvalidAddress
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustParseAddress работает как ParseAddress, но паникует на некорректном вводе.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero сообщает, что адрес пуст или нулевой.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) String() string {
	return string(a)
}
