package handler

import (
	"net/http"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/pkg/api"
)

// TokenBalance возвращает остаток стейблкоина на счёте.
func (h *Handler) TokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r, "address")
	if !ok {
		return
	}
	h.respondBalance(w, r, addr)
}

// TokenAllowance возвращает разрешение owner на списание в пользу spender.
func (h *Handler) TokenAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := h.addressParam(w, r, "spender")
	if !ok {
		return
	}
	h.respondAllowance(w, r, owner, spender)
}

// Approve разрешает spender списывать средства вызывающего. Перед созданием
// полиса держатель разрешает списание премии адресу счёта реестра.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.ApproveRequest
	if !h.decode(w, r, &req) {
		return
	}
	spender, err := model.ParseAddress(req.Spender)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, ok := h.amount(w, r, req.Amount)
	if !ok {
		return
	}

	if err := h.tokens.Approve(r.Context(), caller, spender, amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondAllowance(w, r, caller, spender)
}

// Transfer переводит средства вызывающего. Так оператор пополняет счёт реестра.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, err := model.ParseAddress(req.To)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, ok := h.amount(w, r, req.Amount)
	if !ok {
		return
	}

	if err := h.tokens.Transfer(r.Context(), caller, to, amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondBalance(w, r, caller)
}

// Faucet зачисляет вызывающему тестовые средства.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req api.FaucetRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.amount(w, r, req.Amount)
	if !ok {
		return
	}

	if err := h.tokens.Faucet(r.Context(), caller, amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondBalance(w, r, caller)
}

func (h *Handler) respondBalance(w http.ResponseWriter, r *http.Request, addr model.Address) {
	balance, err := h.tokens.BalanceOf(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Balance{Address: addr.String(), Balance: balance.String()})
}

func (h *Handler) respondAllowance(w http.ResponseWriter, r *http.Request, owner, spender model.Address) {
	allowance, err := h.tokens.Allowance(r.Context(), owner, spender)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Allowance{
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: allowance.String(),
	})
}
