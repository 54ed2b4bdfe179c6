package referral

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

func normalizeClass(codeClass string) string {
	if codeClass == "" {
		return models.CodeClassTestnet
	}
	return codeClass
}

func writePoolError(w http.ResponseWriter, err error) {
	switch err {
	case ErrNotFound:
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Invite code not found"})
	case ErrAlreadyRedeemed:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "This invite code is already redeemed"})
	case ErrAlreadyRedeemer:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "You already redeemed"})
	case ErrSelfReferral:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Own invite code cannot be redeemed"})
	case ErrAlreadyOwner:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Account already owns an invite code"})
	case ErrPoolExhausted:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Not enough invite codes"})
	case ErrCodeCollision:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Could not generate a unique invite code"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
	}
}

// POST /api/referral/admin/generate
func GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count     int    `json:"count"`
		CodeClass string `json:"code_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	codeClass := normalizeClass(req.CodeClass)

	var codes []string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		codes, txErr = generateCodes(tx, models.PoolOwner, codeClass, req.Count)
		return txErr
	})
	if err != nil {
		writePoolError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: codes})
}

// POST /api/referral/admin/distribute
func DistributeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		Count     int    `json:"count"`
		CodeClass string `json:"code_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	account := utils.NormalizeAccount(req.Account)
	if account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account"})
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	codeClass := normalizeClass(req.CodeClass)

	var codes []string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		codes, txErr = distributeCodes(tx, account, codeClass, req.Count)
		return txErr
	})
	if err != nil {
		writePoolError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: codes})
}

// POST /api/referral/admin/redeem
func AdminRedeemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account   string `json:"account"`
		Count     int    `json:"count"`
		CodeClass string `json:"code_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	account := utils.NormalizeAccount(req.Account)
	if account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account"})
		return
	}
	if req.Count < 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid count"})
		return
	}
	codeClass := normalizeClass(req.CodeClass)

	var redeemedCode string
	var granted []string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		redeemedCode, granted, txErr = redeemPoolCode(tx, account, codeClass, req.Count)
		return txErr
	})
	if err != nil {
		writePoolError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"invite_code": redeemedCode,
		"new_codes":   granted,
	}})
}

// GET /api/referral/admin/available
func AvailableHandler(w http.ResponseWriter, r *http.Request) {
	codeClass := normalizeClass(r.URL.Query().Get("code_class"))

	var unassigned []models.InviteCode
	if err := database.DB.Where("owner = ? AND code_class = ? AND redeemed = ?", models.PoolOwner, codeClass, false).
		Find(&unassigned).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	var assigned []models.InviteCode
	if err := database.DB.Where("owner <> ? AND code_class = ? AND redeemed = ?", models.PoolOwner, codeClass, false).
		Find(&assigned).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	toCodes := func(recs []models.InviteCode) []string {
		out := make([]string, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.Code)
		}
		return out
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"unassigned":          toCodes(unassigned),
		"assigned_unredeemed": toCodes(assigned),
	}})
}
