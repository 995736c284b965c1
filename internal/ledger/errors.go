package ledger

import "errors"

// Kind классифицирует причину отказа операции реестра.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindPrecondition
	KindInsolvent
)

// Error описывает отказ операции с человекочитаемой причиной.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// KindOf возвращает класс ошибки реестра или KindUnknown для прочих ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrEmptyFlightID       = &Error{KindValidation, "Flight ID cannot be empty"}
	ErrZeroPremium         = &Error{KindValidation, "Premium amount must be greater than 0"}
	ErrZeroPayout          = &Error{KindValidation, "Payout amount must be greater than 0"}
	ErrZeroDelayThreshold  = &Error{KindValidation, "Delay threshold must be greater than 0"}
	ErrDepartureInPast     = &Error{KindValidation, "Departure must be in the future"}
	ErrInvalidOracle       = &Error{KindValidation, "Invalid oracle address"}
	ErrInvalidOwner        = &Error{KindValidation, "Invalid owner address"}
	ErrInvalidFlightStatus = &Error{KindValidation, "Invalid flight status"}
	ErrNegativeDelay       = &Error{KindValidation, "Delay minutes cannot be negative"}

	ErrNotOwner  = &Error{KindAuthorization, "Caller is not the owner"}
	ErrNotOracle = &Error{KindAuthorization, "Not the oracle"}
	ErrNotHolder = &Error{KindAuthorization, "Not the policy holder"}

	ErrPolicyNotFound = &Error{KindNotFound, "Policy not found"}

	ErrFlightAlreadyInsured = &Error{KindConflict, "FlySure: This flight already has a policy"}

	ErrPolicyNotActive     = &Error{KindPrecondition, "Policy is not active"}
	ErrClaimBeforeDepart   = &Error{KindPrecondition, "Cannot claim before departure time"}
	ErrExpireBeforeDepart  = &Error{KindPrecondition, "Cannot expire before departure time"}
	ErrNotQualified        = &Error{KindPrecondition, "Flight status does not qualify for payout"}
	ErrQualifiesForPayout  = &Error{KindPrecondition, "Flight qualifies for payout, claim instead"}
	ErrInsufficientCustody = &Error{KindInsolvent, "Insufficient contract balance for payout"}
)
