package telegram

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// POST /api/telegram/user/create
func CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		ReferrerID string `json:"referrer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.UserID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id"})
		return
	}
	if req.UserID == req.ReferrerID {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cannot refer yourself"})
		return
	}

	var user *models.TelegramUser
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = createUser(tx, req.UserID, req.ReferrerID)
		return txErr
	})
	switch err {
	case nil:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: user})
	case ErrUserExists:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "User already exists"})
	case ErrReferrerNotFound:
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Referrer not found"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
	}
}

// POST /api/telegram/user/register
func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.UserID == "" || req.UserName == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id or user_name"})
		return
	}

	var user *models.TelegramUser
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = setUserName(tx, req.UserID, req.UserName)
		return txErr
	})
	switch err {
	case nil:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: user})
	case ErrUserNotFound:
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "User not found"})
	case ErrNameTaken:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Username already exists"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
	}
}

// POST /api/telegram/farm/start
func StartFarmingHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.UserID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id"})
		return
	}

	var points int64
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		points, txErr = startFarming(tx, req.UserID, time.Now().Unix())
		return txErr
	})
	switch err {
	case nil:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: points})
	case ErrUserNotFound:
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "User not found"})
	case ErrFarmingActive:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "8 hours have not passed since last farming start"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
	}
}

// GET /api/telegram/status/{userId}
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if userID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id"})
		return
	}

	var user models.TelegramUser
	err := database.DB.Where("user_id = ?", userID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "User not found"})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: user})
}

// POST /api/telegram/account/add
func AddWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	account := utils.NormalizeAccount(req.Account)
	if req.UserID == "" || account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id or account"})
		return
	}

	var user *models.TelegramUser
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = linkWallet(tx, req.UserID, account)
		return txErr
	})
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: user})
}

// POST /api/telegram/social/update
func SocialTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Social string `json:"social"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if req.UserID == "" || req.Social == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing user_id or social"})
		return
	}

	var user *models.TelegramUser
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		user, txErr = completeSocialTask(tx, req.UserID, req.Social)
		return txErr
	})
	switch err {
	case nil:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: user})
	case ErrUnknownTask:
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Unknown social task"})
	case ErrUserNotFound:
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "User not found"})
	case ErrTaskDone:
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Social task already completed"})
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
	}
}

// GET /api/telegram/admin/stats
func AppStatsHandler(w http.ResponseWriter, r *http.Request) {
	var totalUsers, registeredUsers, joined, totalReferrals int64
	db := database.DB
	if err := db.Model(&models.TelegramUser{}).Count(&totalUsers).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if err := db.Model(&models.TelegramUser{}).Where("user_name <> ''").Count(&registeredUsers).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if err := db.Model(&models.TelegramReferral{}).Count(&totalReferrals).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	if err := db.Model(&models.TelegramReferral{}).
		Distinct("joined_user_id").Count(&joined).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	var conversionRate, averageReferrals float64
	if totalUsers > 0 {
		conversionRate = float64(registeredUsers) / float64(totalUsers)
		averageReferrals = float64(totalReferrals) / float64(totalUsers)
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"total_users":             totalUsers,
		"registered_users":        registeredUsers,
		"conversion_rate":         conversionRate,
		"joined_through_referral": joined,
		"average_referrals":       averageReferrals,
	}})
}
