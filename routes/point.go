package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/0xkonka/CDP-backend/controllers/point"
	"github.com/0xkonka/CDP-backend/middleware"
)

// PointRoutes registers the ledger endpoints. Credits and multipliers are
// admin-only; queries are public. The reconciler is not reachable from here:
// queries stay read-only and draining happens only on the engine's schedule.
func PointRoutes(api *mux.Router) {
	api.Handle("/point/admin/distribute",
		middleware.AdminAuthMiddleware(http.HandlerFunc(point.DistributeXPHandler))).Methods(http.MethodPost)
	api.Handle("/point/admin/multiplier-permanent",
		middleware.AdminAuthMiddleware(http.HandlerFunc(point.MultiplierPermanentHandler))).Methods(http.MethodPost)
	api.Handle("/point/admin/multiplier-temporary",
		middleware.AdminAuthMiddleware(http.HandlerFunc(point.MultiplierTemporaryHandler))).Methods(http.MethodPost)

	api.Handle("/point/user/{account}", http.HandlerFunc(point.GetUserPointHandler)).Methods(http.MethodGet)
	api.Handle("/point/list", http.HandlerFunc(point.ListHandler)).Methods(http.MethodGet)
}
