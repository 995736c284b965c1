// Package handler содержит HTTP-обработчики API реестра FlySure.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/flysure/internal/ledger"
	"github.com/mmeshcher/flysure/internal/middleware"
	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
	"github.com/mmeshcher/flysure/internal/validation"
	"github.com/mmeshcher/flysure/internal/wallet"
	"github.com/mmeshcher/flysure/pkg/api"
)

// Ledger определяет операции реестра, используемые HTTP-обработчиками.
type Ledger interface {
	CreatePolicy(ctx context.Context, caller model.Address, p ledger.CreatePolicyParams) (int64, error)
	SetOracleAddress(ctx context.Context, caller, oracle model.Address) error
	TransferOwnership(ctx context.Context, caller, owner model.Address) error
	UpdateFlightStatus(ctx context.Context, caller model.Address, policyID int64, status model.FlightStatus, delayMinutes int64) error
	ProcessClaim(ctx context.Context, caller model.Address, policyID int64) error
	ExpirePolicy(ctx context.Context, caller model.Address, policyID int64) error

	GetPolicy(ctx context.Context, id int64) (*model.Policy, error)
	PolicyIDsForHolder(ctx context.Context, holder model.Address) ([]int64, error)
	PoliciesForHolder(ctx context.Context, holder model.Address) ([]model.Policy, error)
	FlightHasPolicy(ctx context.Context, flightID string) (bool, error)
	HasInsuredFlight(ctx context.Context, holder model.Address, flightID string) (bool, error)
	ActivePoliciesForFlight(ctx context.Context, flightID string) ([]int64, error)
	Roles(ctx context.Context) (model.Roles, error)
	CustodyAddress() model.Address
	CustodyBalance(ctx context.Context) (model.Amount, error)
	Solvency(ctx context.Context) (model.Solvency, error)
}

// Tokens определяет операции со стейблкоином, доступные через API.
type Tokens interface {
	BalanceOf(ctx context.Context, account model.Address) (model.Amount, error)
	Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error)
	Approve(ctx context.Context, owner, spender model.Address, amount model.Amount) error
	Transfer(ctx context.Context, from, to model.Address, amount model.Amount) error
	Faucet(ctx context.Context, to model.Address, amount model.Amount) error
}

// Handler реализует HTTP-обработчики API реестра.
type Handler struct {
	ledger         Ledger
	tokens         Tokens
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	idempotency    *middleware.Idempotency
	wallet         *wallet.Verifier
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(l Ledger, t Tokens, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		ledger:         l,
		tokens:         t,
		logger:         logger,
		authMiddleware: auth,
		idempotency:    middleware.NewIdempotency(),
		wallet:         wallet.NewVerifier(),
	}
}

// Challenge выдаёт сообщение, подпись которого подтверждает владение адресом.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req api.ChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	addr, ok := h.walletAddress(w, r, req.Address)
	if !ok {
		return
	}

	nonce, message := h.wallet.Challenge(addr)
	writeJSON(w, http.StatusOK, api.ChallengeResponse{Address: addr.String(), Nonce: nonce, Message: message})
}

// Connect проверяет подпись выданного сообщения и устанавливает cookie с
// адресом вызывающего.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectRequest
	if !h.decode(w, r, &req) {
		return
	}
	addr, ok := h.walletAddress(w, r, req.Address)
	if !ok {
		return
	}

	if err := h.wallet.Verify(addr, req.Nonce, req.Signature); err != nil {
		h.logger.Warn("wallet connect rejected",
			zap.String("address", addr.String()), zap.Error(err))
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, addr)
	writeJSON(w, http.StatusOK, api.ConnectResponse{Address: addr.String()})
}

func (h *Handler) walletAddress(w http.ResponseWriter, r *http.Request, s string) (model.Address, bool) {
	addr, err := model.ParseAddress(s)
	if err == nil && addr.IsZero() {
		err = model.ErrInvalidAddress
	}
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return addr, true
}

// decode читает JSON-тело запроса и проверяет его форму.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	caller, ok := middleware.GetCallerFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return caller, ok
}

func policyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid policy id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request, name string) (model.Address, bool) {
	addr, err := validation.Address(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return addr, true
}

func (h *Handler) amount(w http.ResponseWriter, r *http.Request, s string) (model.Amount, bool) {
	a, err := model.ParseAmount(s)
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return a, true
}

// writeError переводит ошибку реестра или токена в HTTP-статус. Тело ответа
// содержит причину отказа.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	switch {
	case status == http.StatusServiceUnavailable:
		h.logger.Error("ledger cannot cover payout",
			zap.String("uri", r.RequestURI), zap.Error(err))
	case status == http.StatusInternalServerError:
		h.logger.Error("request failed",
			zap.String("uri", r.RequestURI), zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}

	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict, ledger.KindPrecondition:
		return http.StatusConflict
	case ledger.KindInsolvent:
		return http.StatusServiceUnavailable
	}

	switch {
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, token.ErrNonPositiveAmount),
		errors.Is(err, token.ErrNegativeAllowance),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrFaucetLimit),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrFaucetDisabled):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrUnknownChallenge),
		errors.Is(err, wallet.ErrInvalidSignature):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
