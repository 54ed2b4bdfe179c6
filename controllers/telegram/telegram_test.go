package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

func createTestUser(t *testing.T, userID, referrerID string) {
	t.Helper()
	w := postJSON(t, CreateUserHandler, map[string]string{"user_id": userID, "referrer_id": referrerID})
	require.Equal(t, http.StatusOK, w.Code)
}

func userByID(t *testing.T, db *gorm.DB, userID string) models.TelegramUser {
	t.Helper()
	var user models.TelegramUser
	require.NoError(t, db.Where("user_id = ?", userID).First(&user).Error)
	return user
}

func TestCreateUserWithoutReferrer(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	user := userByID(t, db, "100")
	require.EqualValues(t, 0, user.FarmingPoint)
	require.EqualValues(t, 0, user.ReferralPoint)

	// creating the same user again succeeds without a second row
	createTestUser(t, "100", "")
	var count int64
	require.NoError(t, db.Model(&models.TelegramUser{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCreateUserWithReferrer(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "ref", "")
	createTestUser(t, "joined", "ref")

	// the joined user starts with the signup bonus, the referrer earns theirs
	require.EqualValues(t, 2000, userByID(t, db, "joined").FarmingPoint)
	require.EqualValues(t, 2000, userByID(t, db, "ref").ReferralPoint)

	var edge models.TelegramReferral
	require.NoError(t, db.Where("joined_user_id = ?", "joined").First(&edge).Error)
	require.Equal(t, "ref", edge.ReferrerUserID)
}

func TestCreateUserUnknownReferrer(t *testing.T) {
	db := newTestDB(t)
	w := postJSON(t, CreateUserHandler, map[string]string{"user_id": "100", "referrer_id": "ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.TelegramUser{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestReferralMilestoneBonuses(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "ref", "")

	for i := 1; i <= 10; i++ {
		createTestUser(t, fmt.Sprintf("joined-%d", i), "ref")
	}

	// 10 signups at 2000 each, plus 2500 at the 5th and 5000 at the 10th
	require.EqualValues(t, 10*2000+2500+5000, userByID(t, db, "ref").ReferralPoint)
}

func TestRegisterUserNameOnce(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	w := postJSON(t, RegisterHandler, map[string]string{"user_id": "100", "user_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", userByID(t, db, "100").UserName)

	w = postJSON(t, RegisterHandler, map[string]string{"user_id": "100", "user_name": "bob"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "alice", userByID(t, db, "100").UserName)

	w = postJSON(t, RegisterHandler, map[string]string{"user_id": "missing", "user_name": "eve"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFarmingSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	// first start opens a session without paying anything
	w := postJSON(t, StartFarmingHandler, map[string]string{"user_id": "100"})
	require.Equal(t, http.StatusOK, w.Code)
	user := userByID(t, db, "100")
	require.NotZero(t, user.FarmStartedAt)
	require.EqualValues(t, 0, user.FarmingPoint)

	// a restart inside the session window is a conflict
	w = postJSON(t, StartFarmingHandler, map[string]string{"user_id": "100"})
	require.Equal(t, http.StatusConflict, w.Code)

	// once the session has run its course, restarting pays the reward
	expired := time.Now().Unix() - farmSessionSeconds - 1
	require.NoError(t, db.Model(&models.TelegramUser{}).Where("user_id = ?", "100").
		Update("farm_started_at", expired).Error)
	w = postJSON(t, StartFarmingHandler, map[string]string{"user_id": "100"})
	require.Equal(t, http.StatusOK, w.Code)
	user = userByID(t, db, "100")
	require.EqualValues(t, farmReward, user.FarmingPoint)
	require.Greater(t, user.FarmStartedAt, expired)
}

func TestFarmingStartAfterSweep(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	// a zero start means the sweeper already credited the last session, so a
	// new start records the time without paying again
	w := postJSON(t, StartFarmingHandler, map[string]string{"user_id": "100"})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 0, userByID(t, db, "100").FarmingPoint)
}

func TestSweepFinishedSessions(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "done", "")
	createTestUser(t, "running", "")

	now := time.Now().Unix()
	require.NoError(t, db.Model(&models.TelegramUser{}).Where("user_id = ?", "done").
		Update("farm_started_at", now-farmSessionSeconds-1).Error)
	require.NoError(t, db.Model(&models.TelegramUser{}).Where("user_id = ?", "running").
		Update("farm_started_at", now-60).Error)

	swept, err := SweepFinishedSessions(db, now)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	done := userByID(t, db, "done")
	require.EqualValues(t, farmReward, done.FarmingPoint)
	require.EqualValues(t, 0, done.FarmStartedAt)

	running := userByID(t, db, "running")
	require.EqualValues(t, 0, running.FarmingPoint)
	require.NotZero(t, running.FarmStartedAt)

	// sweeping again finds nothing
	swept, err = SweepFinishedSessions(db, now)
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestSocialTaskPaysOnce(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	w := postJSON(t, SocialTaskHandler, map[string]string{"user_id": "100", "social": "discord"})
	require.Equal(t, http.StatusOK, w.Code)
	user := userByID(t, db, "100")
	require.True(t, user.TaskDiscord)
	require.EqualValues(t, socialReward, user.FarmingPoint)

	w = postJSON(t, SocialTaskHandler, map[string]string{"user_id": "100", "social": "discord"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.EqualValues(t, socialReward, userByID(t, db, "100").FarmingPoint)

	// other tasks are independent
	w = postJSON(t, SocialTaskHandler, map[string]string{"user_id": "100", "social": "twitter"})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2*socialReward, userByID(t, db, "100").FarmingPoint)

	w = postJSON(t, SocialTaskHandler, map[string]string{"user_id": "100", "social": "myspace"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddWalletNormalizesAndUpserts(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, "100", "")

	w := postJSON(t, AddWalletHandler, map[string]string{"user_id": "100", "account": "0xABCDEF"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0xabcdef", userByID(t, db, "100").Account)

	// wallet arriving before signup creates the row
	w = postJSON(t, AddWalletHandler, map[string]string{"user_id": "200", "account": "0xF00"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0xf00", userByID(t, db, "200").Account)
}

func TestAppStats(t *testing.T) {
	newTestDB(t)
	createTestUser(t, "ref", "")
	createTestUser(t, "a", "ref")
	createTestUser(t, "b", "ref")
	createTestUser(t, "c", "")
	w := postJSON(t, RegisterHandler, map[string]string{"user_id": "a", "user_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	r := mux.NewRouter()
	r.HandleFunc("/api/telegram/admin/stats", AppStatsHandler).Methods(http.MethodGet)
	req := httptest.NewRequest(http.MethodGet, "/api/telegram/admin/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			TotalUsers            int64   `json:"total_users"`
			RegisteredUsers       int64   `json:"registered_users"`
			ConversionRate        float64 `json:"conversion_rate"`
			JoinedThroughReferral int64   `json:"joined_through_referral"`
			AverageReferrals      float64 `json:"average_referrals"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 4, resp.Data.TotalUsers)
	require.EqualValues(t, 1, resp.Data.RegisteredUsers)
	require.InDelta(t, 0.25, resp.Data.ConversionRate, 1e-9)
	require.EqualValues(t, 2, resp.Data.JoinedThroughReferral)
	require.InDelta(t, 0.5, resp.Data.AverageReferrals, 1e-9)
}
