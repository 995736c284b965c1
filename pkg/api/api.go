// Package api описывает маршруты и JSON-структуры HTTP API реестра FlySure.
// Пакет используется и сервером, и клиентом.
//
// Суммы передаются строками в целых токенах с точностью до шести знаков
// ("12.5"), адреса счетов в виде 0x и 40 шестнадцатеричных символов.
package api

import (
	"fmt"
	"net/url"
	"time"
)

// Шаблоны маршрутов chi.
const (
	RouteWalletChallenge = "/api/wallet/challenge"
	RouteWalletConnect   = "/api/wallet/connect"
	RouteLedger          = "/api/ledger"
	RouteSolvency        = "/api/ledger/solvency"
	RoutePolicies        = "/api/policies"
	RoutePolicy          = "/api/policies/{id}"
	RoutePolicyClaim     = "/api/policies/{id}/claim"
	RoutePolicyExpire    = "/api/policies/{id}/expire"
	RoutePolicyFlight    = "/api/policies/{id}/flight-status"
	RouteFlight          = "/api/flights/{flightID}"
	RouteHolderPolicies  = "/api/holders/{address}/policies"
	RouteAdminOracle     = "/api/admin/oracle"
	RouteAdminOwner      = "/api/admin/owner"
	RouteTokenBalance    = "/api/token/balance/{address}"
	RouteTokenAllowance  = "/api/token/allowance/{owner}/{spender}"
	RouteTokenApprove    = "/api/token/approve"
	RouteTokenTransfer   = "/api/token/transfer"
	RouteTokenFaucet     = "/api/token/faucet"
	QueryHolder          = "holder"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// PolicyPath возвращает путь полиса с необязательным суффиксом действия.
func PolicyPath(id int64, action string) string {
	p := fmt.Sprintf("%s/%d", RoutePolicies, id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// FlightPath возвращает путь проверки рейса.
func FlightPath(flightID string) string {
	return "/api/flights/" + url.PathEscape(flightID)
}

// HolderPoliciesPath возвращает путь списка полисов держателя.
func HolderPoliciesPath(holder string) string {
	return "/api/holders/" + url.PathEscape(holder) + "/policies"
}

// TokenBalancePath возвращает путь баланса счёта.
func TokenBalancePath(address string) string {
	return "/api/token/balance/" + url.PathEscape(address)
}

// TokenAllowancePath возвращает путь разрешения на списание.
func TokenAllowancePath(owner, spender string) string {
	return "/api/token/allowance/" + url.PathEscape(owner) + "/" + url.PathEscape(spender)
}

// ChallengeRequest запрашивает сообщение для подписи адресом.
type ChallengeRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// ChallengeResponse содержит одноразовое сообщение, которое кошелёк адреса
// подписывает в формате personal_sign.
type ChallengeResponse struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// ConnectRequest подтверждает владение адресом подписью выданного сообщения.
type ConnectRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Nonce     string `json:"nonce" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// ConnectResponse подтверждает подключённый адрес.
type ConnectResponse struct {
	Address string `json:"address"`
}

// TokenInfo описывает стейблкоин реестра.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// LedgerInfo описывает роли и счёт реестра.
type LedgerInfo struct {
	Owner          string    `json:"owner"`
	Oracle         string    `json:"oracle"`
	Custody        string    `json:"custody"`
	CustodyBalance string    `json:"custody_balance"`
	Token          TokenInfo `json:"token"`
}

// Solvency сравнивает остаток реестра с выплатами по активным полисам.
type Solvency struct {
	Custody        string `json:"custody"`
	Liability      string `json:"liability"`
	Shortfall      string `json:"shortfall"`
	ActivePolicies int64  `json:"active_policies"`
	Solvent        bool   `json:"solvent"`
}

// Policy описывает полис.
type Policy struct {
	ID                    int64      `json:"id"`
	Holder                string     `json:"holder"`
	FlightID              string     `json:"flight_id"`
	Premium               string     `json:"premium"`
	Payout                string     `json:"payout"`
	DelayThresholdMinutes int64      `json:"delay_threshold_minutes"`
	DepartureTimestamp    int64      `json:"departure_timestamp"`
	FlightStatus          string     `json:"flight_status"`
	ActualDelayMinutes    int64      `json:"actual_delay_minutes"`
	Status                string     `json:"status"`
	QualifiesForPayout    bool       `json:"qualifies_for_payout"`
	CreatedAt             time.Time  `json:"created_at"`
	FlightStatusUpdatedAt *time.Time `json:"flight_status_updated_at,omitempty"`
	SettledAt             *time.Time `json:"settled_at,omitempty"`
}

// CreatePolicyRequest содержит параметры нового полиса. Перед созданием держатель
// разрешает реестру списать премию. Время вылета передаётся в Unix-секундах.
type CreatePolicyRequest struct {
	FlightID              string `json:"flight_id"`
	Premium               string `json:"premium" validate:"required,amount"`
	Payout                string `json:"payout" validate:"required,amount"`
	DelayThresholdMinutes int64  `json:"delay_threshold_minutes"`
	DepartureTimestamp    int64  `json:"departure_timestamp"`
}

// CreatePolicyResponse возвращает идентификатор созданного полиса.
type CreatePolicyResponse struct {
	PolicyID int64 `json:"policy_id"`
}

// FlightStatusRequest передаёт отчёт оракула о рейсе.
type FlightStatusRequest struct {
	Status       string `json:"status" validate:"required,flight_status"`
	DelayMinutes int64  `json:"delay_minutes"`
}

// Flight описывает страховое покрытие рейса.
type Flight struct {
	FlightID        string  `json:"flight_id"`
	HasPolicy       bool    `json:"has_policy"`
	ActivePolicyIDs []int64 `json:"active_policy_ids"`
	InsuredByHolder *bool   `json:"insured_by_holder,omitempty"`
}

// HolderPolicies перечисляет полисы держателя.
type HolderPolicies struct {
	Holder    string  `json:"holder"`
	PolicyIDs []int64 `json:"policy_ids"`
}

// AddressRequest передаёт новый адрес роли.
type AddressRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// ApproveRequest разрешает spender списывать средства вызывающего.
type ApproveRequest struct {
	Spender string `json:"spender" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,amount"`
}

// TransferRequest переводит средства вызывающего.
type TransferRequest struct {
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,amount"`
}

// FaucetRequest зачисляет тестовые средства вызывающему.
type FaucetRequest struct {
	Amount string `json:"amount" validate:"required,amount"`
}

// Balance описывает остаток счёта.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// Allowance описывает разрешение на списание.
type Allowance struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}
