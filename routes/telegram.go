package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/0xkonka/CDP-backend/controllers/telegram"
	"github.com/0xkonka/CDP-backend/middleware"
)

// TelegramRoutes registers the mini-app endpoints. Writes come from the bot
// and carry its token; status reads are public; the aggregate stats sit on
// the management surface.
func TelegramRoutes(api *mux.Router) {
	api.Handle("/telegram/user/create",
		middleware.TelegramAuthMiddleware(http.HandlerFunc(telegram.CreateUserHandler))).Methods(http.MethodPost)
	api.Handle("/telegram/user/register",
		middleware.TelegramAuthMiddleware(http.HandlerFunc(telegram.RegisterHandler))).Methods(http.MethodPost)
	api.Handle("/telegram/farm/start",
		middleware.TelegramAuthMiddleware(http.HandlerFunc(telegram.StartFarmingHandler))).Methods(http.MethodPost)
	api.Handle("/telegram/account/add",
		middleware.TelegramAuthMiddleware(http.HandlerFunc(telegram.AddWalletHandler))).Methods(http.MethodPost)
	api.Handle("/telegram/social/update",
		middleware.TelegramAuthMiddleware(http.HandlerFunc(telegram.SocialTaskHandler))).Methods(http.MethodPost)

	api.Handle("/telegram/status/{userId}", http.HandlerFunc(telegram.StatusHandler)).Methods(http.MethodGet)
	api.Handle("/telegram/admin/stats",
		middleware.AdminAuthMiddleware(http.HandlerFunc(telegram.AppStatsHandler))).Methods(http.MethodGet)
}
