package point

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// maxTaskCredit bounds a single credit so the percentage split arithmetic
// cannot overflow int64.
const maxTaskCredit = 1_000_000_000_000

// POST /api/point/admin/distribute
func DistributeXPHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		XPPoints int64  `json:"xp_points"`
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
	if req.XPPoints <= 0 || req.XPPoints > maxTaskCredit {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid xp_points"})
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		return creditTask(tx, account, req.XPPoints)
	})
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully"})
}

// POST /api/point/admin/multiplier-permanent
func MultiplierPermanentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string  `json:"account"`
		Delta   float64 `json:"delta"`
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
	if req.Delta <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid delta"})
		return
	}

	// Increment, not overwrite: repeated bonuses stack.
	err := database.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"multiplier_permanent": gorm.Expr("multiplier_permanent + ?", req.Delta),
		}),
	}).Create(&models.Point{Account: account, MultiplierPermanent: 1 + req.Delta}).Error
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	var entry models.Point
	if err := database.DB.Where("account = ?", account).First(&entry).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: entry})
}

// POST /api/point/admin/multiplier-temporary
func MultiplierTemporaryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account    string  `json:"account"`
		Multiplier float64 `json:"multiplier"`
		PeriodDays int64   `json:"period_days"`
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
	if req.Multiplier <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid multiplier"})
		return
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = 1
	}

	now := time.Now().Unix()
	var entry models.Point
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := ensureEntry(tx, account); err != nil {
			return err
		}
		if err := database.LockForUpdate(tx).
			Where("account = ?", account).First(&entry).Error; err != nil {
			return err
		}
		if entry.EndTimestamp > now {
			return errMultiplierActive
		}
		return tx.Model(&entry).Updates(map[string]interface{}{
			"multiplier_temporary": req.Multiplier,
			"end_timestamp":        now + req.PeriodDays*24*3600,
		}).Error
	})
	if err == errMultiplierActive {
		// Surface the current expiry so clients can poll for the next slot.
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{
			Success: false,
			Message: "A temporary multiplier is still active",
			Data:    map[string]int64{"end_timestamp": entry.EndTimestamp},
		})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: entry})
}

// GET /api/point/user/{account}
func GetUserPointHandler(w http.ResponseWriter, r *http.Request) {
	account := utils.NormalizeAccount(mux.Vars(r)["account"])
	if account == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Missing account"})
		return
	}
	var windowSeconds int64
	if s := r.URL.Query().Get("window"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid window"})
			return
		}
		windowSeconds = v
	}

	var entry models.Point
	err := database.DB.Where("account = ?", account).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: utils.MsgNotFound})
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	xpTotal, referralTotal, err := eventTotals(database.DB, account, windowSeconds)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	rank, err := rankOf(database.DB, account)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: map[string]interface{}{
		"point":          entry,
		"xp_total":       xpTotal,
		"referral_total": referralTotal,
		"total":          xpTotal + referralTotal,
		"rank":           rank,
	}})
}

// GET /api/point/list
func ListHandler(w http.ResponseWriter, r *http.Request) {
	ranked, err := rankedEntries(database.DB)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: utils.MsgServerError})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: ranked})
}
