package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/flysure/internal/ledger"
	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
	"github.com/mmeshcher/flysure/internal/validation"
	"github.com/mmeshcher/flysure/pkg/api"
)

// LedgerInfo возвращает роли реестра, адрес и остаток его счёта.
func (h *Handler) LedgerInfo(w http.ResponseWriter, r *http.Request) {
	roles, err := h.ledger.Roles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.ledger.CustodyBalance(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.LedgerInfo{
		Owner:          roles.Owner.String(),
		Oracle:         roles.Oracle.String(),
		Custody:        h.ledger.CustodyAddress().String(),
		CustodyBalance: balance.String(),
		Token:          api.TokenInfo{Symbol: token.Symbol, Decimals: token.Decimals},
	})
}

// Solvency возвращает покрытие обязательств по активным полисам.
func (h *Handler) Solvency(w http.ResponseWriter, r *http.Request) {
	s, err := h.ledger.Solvency(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.Solvency{
		Custody:        s.Custody.String(),
		Liability:      s.Liability.String(),
		Shortfall:      s.Shortfall.String(),
		ActivePolicies: s.ActiveCount,
		Solvent:        s.Shortfall == 0,
	})
}

// GetPolicy возвращает полис по идентификатору.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := policyIDParam(w, r)
	if !ok {
		return
	}

	p, err := h.ledger.GetPolicy(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAPIPolicy(*p))
}

// GetFlight сообщает, застрахован ли рейс, и перечисляет его активные полисы.
// С параметром holder дополнительно проверяет полис этого держателя.
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	flightID := chi.URLParam(r, "flightID")

	has, err := h.ledger.FlightHasPolicy(r.Context(), flightID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active, err := h.ledger.ActivePoliciesForFlight(r.Context(), flightID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := api.Flight{FlightID: flightID, HasPolicy: has, ActivePolicyIDs: nonNil(active)}

	if raw := r.URL.Query().Get(api.QueryHolder); raw != "" {
		holder, err := validation.Address(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		insured, err := h.ledger.HasInsuredFlight(r.Context(), holder, flightID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.InsuredByHolder = &insured
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetHolderPolicies возвращает идентификаторы полисов держателя.
func (h *Handler) GetHolderPolicies(w http.ResponseWriter, r *http.Request) {
	holder, ok := h.addressParam(w, r, "address")
	if !ok {
		return
	}

	ids, err := h.ledger.PolicyIDsForHolder(r.Context(), holder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.HolderPolicies{Holder: holder.String(), PolicyIDs: nonNil(ids)})
}

// CreatePolicy создаёт полис от имени вызывающего.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.CreatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	premium, ok := h.amount(w, r, req.Premium)
	if !ok {
		return
	}
	payout, ok := h.amount(w, r, req.Payout)
	if !ok {
		return
	}

	id, err := h.ledger.CreatePolicy(r.Context(), caller, ledger.CreatePolicyParams{
		FlightID:       req.FlightID,
		Premium:        premium,
		Payout:         payout,
		DelayThreshold: req.DelayThresholdMinutes,
		DepartureAt:    time.Unix(req.DepartureTimestamp, 0).UTC(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("policy created",
		zap.Int64("policyID", id),
		zap.String("holder", caller.String()),
		zap.String("flightID", req.FlightID),
	)
	writeJSON(w, http.StatusCreated, api.CreatePolicyResponse{PolicyID: id})
}

// ListPolicies возвращает полисы вызывающего.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	policies, err := h.ledger.PoliciesForHolder(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(policies) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]api.Policy, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, toAPIPolicy(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClaimPolicy выплачивает страховую сумму по полису вызывающего.
func (h *Handler) ClaimPolicy(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.ledger.ProcessClaim)
}

// ExpirePolicy закрывает полис вызывающего без выплаты.
func (h *Handler) ExpirePolicy(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.ledger.ExpirePolicy)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller model.Address, id int64) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := policyIDParam(w, r)
	if !ok {
		return
	}

	if err := op(r.Context(), caller, id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondPolicy(w, r, id)
}

// ReportFlightStatus принимает отчёт оракула о рейсе полиса.
func (h *Handler) ReportFlightStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := policyIDParam(w, r)
	if !ok {
		return
	}

	var req api.FlightStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.ledger.UpdateFlightStatus(r.Context(), caller, id, model.FlightStatus(req.Status), req.DelayMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respondPolicy(w, r, id)
}

// SetOracle заменяет адрес оракула.
func (h *Handler) SetOracle(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.ledger.SetOracleAddress)
}

// TransferOwnership передаёт роль владельца.
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.ledger.TransferOwnership)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, addr model.Address) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.AddressRequest
	if !h.decode(w, r, &req) {
		return
	}
	addr, err := model.ParseAddress(req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := op(r.Context(), caller, addr); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.LedgerInfo(w, r)
}

func (h *Handler) respondPolicy(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := h.ledger.GetPolicy(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPolicy(*p))
}

func toAPIPolicy(p model.Policy) api.Policy {
	return api.Policy{
		ID:                    p.ID,
		Holder:                p.Holder.String(),
		FlightID:              p.FlightID,
		Premium:               p.Premium.String(),
		Payout:                p.Payout.String(),
		DelayThresholdMinutes: p.DelayThreshold,
		DepartureTimestamp:    p.DepartureAt.Unix(),
		FlightStatus:          string(p.FlightStatus),
		ActualDelayMinutes:    p.ActualDelayMinutes,
		Status:                string(p.Status),
		QualifiesForPayout:    p.QualifiesForPayout(),
		CreatedAt:             p.CreatedAt,
		FlightStatusUpdatedAt: p.FlightStatusUpdatedAt,
		SettledAt:             p.SettledAt,
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
