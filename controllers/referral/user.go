package referral

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// POST /api/referral/user/validate
func ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"invite_code"`
		CodeClass  string `json:"code_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.InviteCode == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing invite_code"})
		return
	}
	codeClass := normalizeClass(req.CodeClass)

	var rec models.InviteCode
	err := database.DB.Where("code = ? AND code_class = ?", req.InviteCode, codeClass).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Invite code not found"})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if rec.Redeemed {
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "This invite code is already redeemed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: rec})
}

// POST /api/referral/user/redeem
func RedeemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account    string `json:"account"`
		InviteCode string `json:"invite_code"`
		Count      int    `json:"count"`
		CodeClass  string `json:"code_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	account := utils.NormalizeAccount(req.Account)
	if account == "" || req.InviteCode == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account or invite_code"})
		return
	}
	if req.Count < 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid count"})
		return
	}
	codeClass := normalizeClass(req.CodeClass)

	var granted []string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		granted, txErr = redeemCode(tx, account, req.InviteCode, codeClass, req.Count)
		return txErr
	})
	if err != nil {
		writePoolError(w, err)
		return
	}

	utils.NotifyRedemption(account, req.InviteCode)
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: granted})
}

// GET /api/referral/user/{account}
func GetUserReferralHandler(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeAccount(mux.Vars(r)["account"])
	if account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account"})
		return
	}
	codeClass := normalizeClass(r.URL.Query().Get("code_class"))

	var redeemedCode models.InviteCode
	err := database.DB.Where("redeemed = ? AND redeemer = ? AND code_class = ?", true, account, codeClass).
		First(&redeemedCode).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
			"redeemed": false,
		}})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	referred, err := ReferredAccounts(database.DB, account, codeClass)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"redeemed":      true,
		"referral_code": redeemedCode.Code,
		"referrer":      redeemedCode.Owner,
		"referred":      referred,
	}})
}

// GET /api/referral/referrer/{account}
func GetReferrerHandler(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeAccount(mux.Vars(r)["account"])
	if account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account"})
		return
	}
	codeClass := normalizeClass(r.URL.Query().Get("code_class"))

	referrer, ok, err := ReferrerOf(database.DB, account, codeClass)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if !ok {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "No referrer"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]string{
		"referrer": referrer,
	}})
}
