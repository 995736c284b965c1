// Package validation проверяет форму входных данных HTTP API до вызова реестра.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/flysure/internal/model"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("amount", isAmount)
		_ = validate.RegisterValidation("flight_status", isFlightStatus)
	})
	return validate
}

// isAmount принимает десятичную запись суммы стейблкоина с не более чем шестью
// знаками после запятой. Знак и ноль проверяет реестр.
func isAmount(fl validator.FieldLevel) bool {
	_, err := model.ParseAmount(fl.Field().String())
	return err == nil
}

func isFlightStatus(fl validator.FieldLevel) bool {
	return model.FlightStatus(fl.Field().String()).Valid()
}

// Struct проверяет структуру по тегам validate и возвращает ошибку с
// перечнем нарушений.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Address проверяет одиночное значение адреса, например параметр пути.
func Address(s string) (model.Address, error) {
	if err := instance().Var(s, "required,eth_addr"); err != nil {
		return "", model.ErrInvalidAddress
	}
	return model.ParseAddress(s)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20-byte hex address", fe.Field())
	case "amount":
		return fmt.Sprintf("%s must be a decimal amount with at most %d decimals", fe.Field(), model.TokenDecimals)
	case "flight_status":
		return fmt.Sprintf("%s must be one of ON_TIME, DELAYED, CANCELLED", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
