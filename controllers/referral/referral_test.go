package referral

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	database.DB = db
	return db
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func generatePool(t *testing.T, db *gorm.DB, codeClass string, count int) []string {
	t.Helper()
	var codes []string
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		codes, txErr = generateCodes(tx, models.PoolOwner, codeClass, count)
		return txErr
	})
	require.NoError(t, err)
	require.Len(t, codes, count)
	return codes
}

func TestGenerateHandler(t *testing.T) {
	db := newTestDB(t)

	w := postJSON(t, GenerateHandler, map[string]interface{}{"count": 3, "code_class": "testnet"})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.InviteCode{}).Count(&count).Error)
	require.EqualValues(t, 3, count)

	var codes []models.InviteCode
	require.NoError(t, db.Find(&codes).Error)
	for _, c := range codes {
		require.Equal(t, models.PoolOwner, c.Owner)
		require.False(t, c.Redeemed)
		require.Len(t, c.Code, 5)
	}
}

func TestValidateAndRedeemScenario(t *testing.T) {
	db := newTestDB(t)
	codes := generatePool(t, db, models.CodeClassTestnet, 3)

	for _, code := range codes {
		w := postJSON(t, ValidateHandler, map[string]string{"invite_code": code, "code_class": "testnet"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	// 0xA1 redeems one code and is granted one new code
	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xA1", "invite_code": codes[0], "count": 1, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 1)

	// account is normalized on ingress
	var rec models.InviteCode
	require.NoError(t, db.Where("code = ?", codes[0]).First(&rec).Error)
	require.True(t, rec.Redeemed)
	require.Equal(t, "0xa1", *rec.Redeemer)

	// referral info shows redeemed: true
	router := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/referral/user/0xA1?code_class=testnet", nil)
	wr := httptest.NewRecorder()
	router.ServeHTTP(wr, req)
	require.Equal(t, http.StatusOK, wr.Code)
	var info struct {
		Data struct {
			Redeemed     bool   `json:"redeemed"`
			ReferralCode string `json:"referral_code"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(wr.Body.Bytes(), &info))
	require.True(t, info.Data.Redeemed)
	require.Equal(t, codes[0], info.Data.ReferralCode)

	// same code by another account is a conflict
	w = postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xB2", "invite_code": codes[0], "count": 1, "code_class": "testnet",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// validate now reports already redeemed
	w = postJSON(t, ValidateHandler, map[string]string{"invite_code": codes[0], "code_class": "testnet"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func newRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/referral/user/{account}", GetUserReferralHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/referral/referrer/{account}", GetReferrerHandler).Methods(http.MethodGet)
	return r
}

func TestRedeemTwiceSameAccount(t *testing.T) {
	db := newTestDB(t)
	codes := generatePool(t, db, models.CodeClassTestnet, 2)

	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": codes[0], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// second redemption in the same class fails even with a fresh code
	w = postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xA1", "invite_code": codes[1], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var redeemedCount int64
	require.NoError(t, db.Model(&models.InviteCode{}).Where("redeemed = ?", true).Count(&redeemedCount).Error)
	require.EqualValues(t, 1, redeemedCount)
}

func TestClaimCodeRaceLoserGetsConflict(t *testing.T) {
	db := newTestDB(t)
	codes := generatePool(t, db, models.CodeClassTestnet, 2)

	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": codes[0], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Replay the conditional write for an account that already holds a
	// redeemer row, as if a concurrent redemption had passed the pre-check.
	// The unique (code_class, redeemer) index is the authority here.
	err := db.Transaction(func(tx *gorm.DB) error {
		return claimCode(tx, "0xa1", codes[1], models.CodeClassTestnet)
	})
	require.ErrorIs(t, err, ErrAlreadyRedeemer)

	// and replaying against an already-redeemed code loses the other race
	err = db.Transaction(func(tx *gorm.DB) error {
		return claimCode(tx, "0xb2", codes[0], models.CodeClassTestnet)
	})
	require.ErrorIs(t, err, ErrAlreadyRedeemed)

	// exactly one redemption stands
	var redeemedCount int64
	require.NoError(t, db.Model(&models.InviteCode{}).Where("redeemed = ?", true).Count(&redeemedCount).Error)
	require.EqualValues(t, 1, redeemedCount)
	var rec models.InviteCode
	require.NoError(t, db.Where("redeemed = ?", true).First(&rec).Error)
	require.Equal(t, codes[0], rec.Code)
	require.Equal(t, "0xa1", *rec.Redeemer)
}

func TestRedeemSelfReferralRejected(t *testing.T) {
	db := newTestDB(t)
	generatePool(t, db, models.CodeClassTestnet, 1)

	// hand the code to 0xa1, then have 0xa1 try to redeem it
	var codes []string
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		codes, txErr = distributeCodes(tx, "0xa1", models.CodeClassTestnet, 1)
		return txErr
	})
	require.NoError(t, err)

	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xA1", "invite_code": codes[0], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRedeemGrantsPermanentMultiplier(t *testing.T) {
	db := newTestDB(t)
	codes := generatePool(t, db, models.CodeClassTestnet, 1)

	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": codes[0], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var entry models.Point
	require.NoError(t, db.Where("account = ?", "0xa1").First(&entry).Error)
	require.EqualValues(t, 2, entry.MultiplierPermanent)
}

func TestRedeemUnknownCode(t *testing.T) {
	newTestDB(t)
	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": "Z9Z9Z", "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCodeClassesDoNotCrossRedeem(t *testing.T) {
	db := newTestDB(t)
	codes := generatePool(t, db, models.CodeClassTestnet, 1)

	// the code exists in testnet only
	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": codes[0], "count": 0, "code_class": "mainnet",
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	// one redemption per account is scoped per class
	w = postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": codes[0], "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	mainnetCodes := generatePool(t, db, models.CodeClassMainnet, 1)
	w = postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xa1", "invite_code": mainnetCodes[0], "count": 0, "code_class": "mainnet",
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDistributeSingleDistributionPolicy(t *testing.T) {
	db := newTestDB(t)
	generatePool(t, db, models.CodeClassMainnet, 4)

	w := postJSON(t, DistributeHandler, map[string]interface{}{
		"account": "0xa1", "count": 1, "code_class": "mainnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// mainnet allows one distribution per account
	w = postJSON(t, DistributeHandler, map[string]interface{}{
		"account": "0xa1", "count": 1, "code_class": "mainnet",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// testnet does not restrict repeat distributions
	generatePool(t, db, models.CodeClassTestnet, 4)
	for i := 0; i < 2; i++ {
		w = postJSON(t, DistributeHandler, map[string]interface{}{
			"account": "0xb2", "count": 1, "code_class": "testnet",
		})
		require.Equal(t, http.StatusOK, w.Code, "iteration %d", i)
	}
}

func TestDistributeMintsShortfall(t *testing.T) {
	db := newTestDB(t)
	generatePool(t, db, models.CodeClassTestnet, 1)

	w := postJSON(t, DistributeHandler, map[string]interface{}{
		"account": "0xa1", "count": 3, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var owned int64
	require.NoError(t, db.Model(&models.InviteCode{}).
		Where("owner = ? AND code_class = ?", "0xa1", "testnet").Count(&owned).Error)
	require.EqualValues(t, 3, owned)
}

func TestAdminRedeemHandler(t *testing.T) {
	db := newTestDB(t)
	generatePool(t, db, models.CodeClassTestnet, 1)

	w := postJSON(t, AdminRedeemHandler, map[string]interface{}{
		"account": "0xa1", "count": 1, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var rec models.InviteCode
	require.NoError(t, db.Where("redeemed = ?", true).First(&rec).Error)
	require.Equal(t, "0xa1", *rec.Redeemer)
	require.Equal(t, models.PoolOwner, rec.Owner)

	// pool is now empty
	w = postJSON(t, AdminRedeemHandler, map[string]interface{}{
		"account": "0xb2", "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReferrerOf(t *testing.T) {
	db := newTestDB(t)
	generatePool(t, db, models.CodeClassTestnet, 1)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, txErr := distributeCodes(tx, "0xref", models.CodeClassTestnet, 1)
		return txErr
	})
	require.NoError(t, err)

	var owned models.InviteCode
	require.NoError(t, db.Where("owner = ?", "0xref").First(&owned).Error)

	w := postJSON(t, RedeemHandler, map[string]interface{}{
		"account": "0xuser", "invite_code": owned.Code, "count": 0, "code_class": "testnet",
	})
	require.Equal(t, http.StatusOK, w.Code)

	referrer, ok, err := ReferrerOf(db, "0xuser", models.CodeClassTestnet)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0xref", referrer)

	_, ok, err = ReferrerOf(db, "0xnobody", models.CodeClassTestnet)
	require.NoError(t, err)
	require.False(t, ok)
}
