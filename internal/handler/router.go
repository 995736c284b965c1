package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/flysure/internal/middleware"
	"github.com/mmeshcher/flysure/pkg/api"
)

// SetupRouter настраивает HTTP-маршруты и middleware реестра.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.RequestLogger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Post(api.RouteWalletChallenge, h.Challenge)
	r.Post(api.RouteWalletConnect, h.Connect)

	r.Get(api.RouteLedger, h.LedgerInfo)
	r.Get(api.RouteSolvency, h.Solvency)
	r.Get(api.RoutePolicy, h.GetPolicy)
	r.Get(api.RouteFlight, h.GetFlight)
	r.Get(api.RouteHolderPolicies, h.GetHolderPolicies)
	r.Get(api.RouteTokenBalance, h.TokenBalance)
	r.Get(api.RouteTokenAllowance, h.TokenAllowance)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(h.idempotency.Middleware)

		r.Post(api.RoutePolicies, h.CreatePolicy)
		r.Get(api.RoutePolicies, h.ListPolicies)
		r.Post(api.RoutePolicyClaim, h.ClaimPolicy)
		r.Post(api.RoutePolicyExpire, h.ExpirePolicy)
		r.Post(api.RoutePolicyFlight, h.ReportFlightStatus)

		r.Put(api.RouteAdminOracle, h.SetOracle)
		r.Put(api.RouteAdminOwner, h.TransferOwnership)

		r.Post(api.RouteTokenApprove, h.Approve)
		r.Post(api.RouteTokenTransfer, h.Transfer)
		r.Post(api.RouteTokenFaucet, h.Faucet)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
