package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/0xkonka/CDP-backend/controllers/referral"
	"github.com/0xkonka/CDP-backend/middleware"
)

// ReferralRoutes registers the invite-code pool endpoints. The user-facing
// redeem path sits behind a per-code dedup limiter; the write itself stays the
// authority on redemption races.
func ReferralRoutes(api *mux.Router) {
	redeemLimiter := middleware.NewRedeemLimiter(time.Minute)

	api.Handle("/referral/admin/generate",
		middleware.AdminAuthMiddleware(http.HandlerFunc(referral.GenerateHandler))).Methods(http.MethodPost)
	api.Handle("/referral/admin/distribute",
		middleware.AdminAuthMiddleware(http.HandlerFunc(referral.DistributeHandler))).Methods(http.MethodPost)
	api.Handle("/referral/admin/redeem",
		middleware.AdminAuthMiddleware(http.HandlerFunc(referral.AdminRedeemHandler))).Methods(http.MethodPost)
	api.Handle("/referral/admin/available",
		middleware.AdminAuthMiddleware(http.HandlerFunc(referral.AvailableHandler))).Methods(http.MethodGet)

	api.Handle("/referral/user/validate", http.HandlerFunc(referral.ValidateHandler)).Methods(http.MethodPost)
	api.Handle("/referral/user/redeem",
		redeemLimiter.Middleware(http.HandlerFunc(referral.RedeemHandler))).Methods(http.MethodPost)
	api.Handle("/referral/user/{account}", http.HandlerFunc(referral.GetUserReferralHandler)).Methods(http.MethodGet)
	api.Handle("/referral/referrer/{account}", http.HandlerFunc(referral.GetReferrerHandler)).Methods(http.MethodGet)
}
