package middleware

import (
	"net/http"
	"strings"

	"github.com/0xkonka/CDP-backend/utils"
)

// RequireRole verifies the bearer token and checks that its role claim matches.
// The service has no user sessions; tokens are pure capability grants issued to
// operators and the bot.
func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{
				Success: false,
				Message: "Unauthorized: No token provided",
			})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

		claims, err := utils.ValidateAccessToken(tokenString)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{
				Success: false,
				Message: "Unauthorized: Invalid token",
			})
			return
		}

		got, _ := claims["role"].(string)
		if got != role {
			utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{
				Success: false,
				Message: utils.MsgForbidden,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuthMiddleware guards the management surface.
func AdminAuthMiddleware(next http.Handler) http.Handler {
	return RequireRole(utils.RoleAdmin, next)
}

// TelegramAuthMiddleware guards the mini-app bot surface.
func TelegramAuthMiddleware(next http.Handler) http.Handler {
	return RequireRole(utils.RoleTelegram, next)
}
