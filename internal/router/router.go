package router

import (
	"net/http"

	"github.com/foundpay/backend/internal/auth"
	"github.com/foundpay/backend/internal/dashboard"
	"github.com/foundpay/backend/internal/handlers"
	"github.com/foundpay/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1.
// Escrow routes require a JWT; the ops surface (manual sweep, scheduler
// control) takes an API key and an admin role.
func New(
	authHandler *auth.Handler,
	escrowHandler *handlers.EscrowHandler,
	caseHandler *handlers.CaseHandler,
	claimHandler *handlers.ClaimHandler,
	opsHandler *handlers.OpsHandler,
	dashHandler *dashboard.Handler,
	authSvc auth.Service,
	apiKeyRepo middleware.APIKeyRepo,
	claimCounter middleware.ClaimCounter,
	maxClaimsPerDay int,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	jwt := middleware.JWTAuth(authSvc)

	mux.Handle("POST "+base+"/cases", jwt(http.HandlerFunc(caseHandler.CreateCase)))
	mux.Handle("GET "+base+"/cases/{caseId}", jwt(http.HandlerFunc(caseHandler.GetCase)))
	mux.Handle("POST "+base+"/claims",
		jwt(middleware.ClaimLimit(claimCounter, maxClaimsPerDay)(http.HandlerFunc(claimHandler.CreateClaim))))

	mux.Handle("GET "+base+"/account/me", jwt(http.HandlerFunc(dashHandler.GetMe)))
	mux.Handle("PATCH "+base+"/account/payout-account", jwt(http.HandlerFunc(dashHandler.SetPayoutAccount)))
	mux.Handle("POST "+base+"/api-keys", jwt(middleware.RequireAdmin(http.HandlerFunc(dashHandler.CreateAPIKey))))
	mux.Handle("DELETE "+base+"/api-keys/{id}", jwt(middleware.RequireAdmin(http.HandlerFunc(dashHandler.DeleteAPIKey))))

	mux.Handle("GET "+base+"/escrow/status/{caseId}", jwt(http.HandlerFunc(escrowHandler.Status)))
	mux.Handle("POST "+base+"/escrow/create", jwt(http.HandlerFunc(escrowHandler.CreateHold)))
	mux.Handle("POST "+base+"/escrow/release/{transactionId}", jwt(http.HandlerFunc(escrowHandler.Release)))
	mux.Handle("POST "+base+"/escrow/refund/{transactionId}", jwt(http.HandlerFunc(escrowHandler.Refund)))
	mux.Handle("POST "+base+"/escrow/dispute/{transactionId}", jwt(http.HandlerFunc(escrowHandler.OpenDispute)))
	mux.Handle("POST "+base+"/escrow/dispute/{transactionId}/resolve",
		jwt(middleware.RequireAdmin(http.HandlerFunc(escrowHandler.ResolveDispute))))

	apiKey := middleware.APIKeyAuth(apiKeyRepo)
	mux.Handle("POST "+base+"/escrow/process-expired",
		apiKey(middleware.RequireAdmin(http.HandlerFunc(opsHandler.ProcessExpired))))
	mux.Handle("GET "+base+"/scheduler/status",
		apiKey(middleware.RequireAdmin(http.HandlerFunc(opsHandler.SchedulerStatus))))
	mux.Handle("POST "+base+"/scheduler/run/{task}",
		apiKey(middleware.RequireAdmin(http.HandlerFunc(opsHandler.SchedulerRun))))

	return mux
}
