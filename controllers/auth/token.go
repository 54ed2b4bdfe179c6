package auth

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/0xkonka/CDP-backend/utils"
)

// POST /auth/token
//
// Exchanges the operator secret for a role-scoped bearer token. The secret is
// compared against a bcrypt hash from the environment so the plaintext never
// lives in config.
func TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.Secret == "" || req.Role == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing secret or role"})
		return
	}
	if req.Role != utils.RoleAdmin && req.Role != utils.RoleTelegram {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid role"})
		return
	}

	hash := os.Getenv("ADMIN_SECRET_HASH")
	if hash == "" {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Secret)); err != nil {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: utils.MsgForbidden})
		return
	}

	token, err := utils.GenerateAccessToken(req.Role, 6*time.Hour)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]string{"token": token}})
}
