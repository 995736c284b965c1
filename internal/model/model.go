// Package model содержит доменные сущности реестра страховых полисов FlySure.
package model

import "time"

// PolicyStatus описывает стадию жизненного цикла полиса.
type PolicyStatus string

const (
	PolicyStatusActive  PolicyStatus = "ACTIVE"
	PolicyStatusPaid    PolicyStatus = "PAID"
	PolicyStatusExpired PolicyStatus = "EXPIRED"
)

// IsTerminal сообщает, что из статуса нет переходов.
func (s PolicyStatus) IsTerminal() bool {
	return s == PolicyStatusPaid || s == PolicyStatusExpired
}

// FlightStatus описывает состояние рейса, сообщённое оракулом.
type FlightStatus string

const (
	FlightStatusOnTime    FlightStatus = "ON_TIME"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

// Valid проверяет, что статус рейса входит в допустимый набор.
func (s FlightStatus) Valid() bool {
	switch s {
	case FlightStatusOnTime, FlightStatusDelayed, FlightStatusCancelled:
		return true
	}
	return false
}

// Policy описывает страховой полис на задержку рейса.
type Policy struct {
	ID                    int64
	Holder                Address
	FlightID              string
	Premium               Amount
	Payout                Amount
	DelayThreshold        int64
	DepartureAt           time.Time
	FlightStatus          FlightStatus
	ActualDelayMinutes    int64
	Status                PolicyStatus
	CreatedAt             time.Time
	FlightStatusUpdatedAt *time.Time
	SettledAt             *time.Time
}

// Departed сообщает, наступило ли время вылета к моменту now.
func (p *Policy) Departed(now time.Time) bool {
	return !now.Before(p.DepartureAt)
}

// QualifiesForPayout проверяет условие выплаты: отмена рейса
// либо задержка не меньше порога полиса.
func (p *Policy) QualifiesForPayout() bool {
	switch p.FlightStatus {
	case FlightStatusCancelled:
		return true
	case FlightStatusDelayed:
		return p.ActualDelayMinutes >= p.DelayThreshold
	}
	return false
}

// Roles содержит адреса владельца реестра и оракула.
type Roles struct {
	Owner  Address
	Oracle Address
}

// Solvency сравнивает остаток на счёте реестра с обязательствами по активным полисам.
type Solvency struct {
	Custody     Amount
	Liability   Amount
	Shortfall   Amount
	ActiveCount int64
}

// EventType определяет тип события реестра.
type EventType string

const (
	EventPolicyCreated        EventType = "POLICY_CREATED"
	EventFlightStatusUpdated  EventType = "FLIGHT_STATUS_UPDATED"
	EventPolicyPaid           EventType = "POLICY_PAID"
	EventPolicyExpired        EventType = "POLICY_EXPIRED"
	EventOracleUpdated        EventType = "ORACLE_UPDATED"
	EventOwnershipTransferred EventType = "OWNERSHIP_TRANSFERRED"
)

// Event описывает факт изменения состояния реестра, ожидающий публикации.
type Event struct {
	ID         string
	Type       EventType
	PolicyID   int64
	Payload    map[string]any
	OccurredAt time.Time
}
