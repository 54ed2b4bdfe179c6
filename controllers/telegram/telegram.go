package telegram

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// Mini-app point schedule. Fixed policy, not configuration.
const (
	// joinBonus seeds a referred user's farming balance on signup.
	joinBonus = 2000
	// referralBonus goes to the referrer for every signup through them.
	referralBonus = 2000
	// farmSessionSeconds is how long a farming session runs before it pays out.
	farmSessionSeconds = 8 * 3600
	farmReward         = 200
	socialReward       = 100
)

// milestoneBonus is the extra award when a signup brings the referrer's
// headcount to a milestone.
func milestoneBonus(headcount int64) int64 {
	switch headcount {
	case 5:
		return 2500
	case 10:
		return 5000
	case 25:
		return 125000
	}
	return 0
}

var (
	ErrUserExists       = errors.New("telegram user already exists")
	ErrUserNotFound     = errors.New("telegram user not found")
	ErrReferrerNotFound = errors.New("telegram referrer not found")
	ErrNameTaken        = errors.New("username already set")
	ErrFarmingActive    = errors.New("farming session still running")
	ErrTaskDone         = errors.New("social task already completed")
	ErrUnknownTask      = errors.New("unknown social task")
)

// createUser registers a new mini-app user. When a referrer is named it must
// already exist; the referrer's row is locked while the headcount is read so
// two concurrent signups cannot both land the same milestone.
func createUser(tx *gorm.DB, userID, referrerID string) (*models.TelegramUser, error) {
	var existing models.TelegramUser
	err := tx.Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	user := models.TelegramUser{UserID: userID}
	if referrerID != "" {
		var referrer models.TelegramUser
		err := database.LockForUpdate(tx).Where("user_id = ?", referrerID).First(&referrer).Error
		if err == gorm.ErrRecordNotFound {
			return nil, ErrReferrerNotFound
		}
		if err != nil {
			return nil, err
		}

		var headcount int64
		if err := tx.Model(&models.TelegramReferral{}).
			Where("referrer_user_id = ?", referrerID).
			Count(&headcount).Error; err != nil {
			return nil, err
		}
		bonus := int64(referralBonus) + milestoneBonus(headcount+1)

		if err := tx.Create(&models.TelegramReferral{
			ReferrerUserID: referrerID,
			JoinedUserID:   userID,
			JoinedAt:       time.Now().Unix(),
		}).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&referrer).
			Update("referral_point", gorm.Expr("referral_point + ?", bonus)).Error; err != nil {
			return nil, err
		}
		user.FarmingPoint = joinBonus
	}

	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// setUserName completes registration. The name is written once; a user that
// already registered gets a conflict.
func setUserName(tx *gorm.DB, userID, userName string) (*models.TelegramUser, error) {
	var user models.TelegramUser
	err := tx.Where("user_id = ?", userID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.UserName != "" {
		return nil, ErrNameTaken
	}
	if err := tx.Model(&user).Update("user_name", userName).Error; err != nil {
		return nil, err
	}
	user.UserName = userName
	return &user, nil
}

// startFarming opens a farming session, paying out the previous one when it
// ran to completion. A zero start means the sweeper already credited the last
// session, so only the new start is recorded. The row lock keeps a
// double-submit from paying the reward twice.
func startFarming(tx *gorm.DB, userID string, now int64) (int64, error) {
	var user models.TelegramUser
	err := database.LockForUpdate(tx).Where("user_id = ?", userID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}

	if user.FarmStartedAt != 0 && now-user.FarmStartedAt < farmSessionSeconds {
		return 0, ErrFarmingActive
	}

	updates := map[string]interface{}{"farm_started_at": now}
	points := user.FarmingPoint
	if user.FarmStartedAt != 0 {
		points += farmReward
		updates["farming_point"] = gorm.Expr("farming_point + ?", farmReward)
	}
	if err := tx.Model(&user).Updates(updates).Error; err != nil {
		return 0, err
	}
	if user.FarmStartedAt != 0 {
		utils.NotifyFarmingComplete(userID)
	}
	return points, nil
}

// completeSocialTask marks one social task done and pays the reward, once.
func completeSocialTask(tx *gorm.DB, userID, social string) (*models.TelegramUser, error) {
	var column string
	switch social {
	case models.SocialTelegram:
		column = "task_telegram"
	case models.SocialDiscord:
		column = "task_discord"
	case models.SocialTwitter:
		column = "task_twitter"
	default:
		return nil, ErrUnknownTask
	}

	var user models.TelegramUser
	err := database.LockForUpdate(tx).Where("user_id = ?", userID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	done := map[string]bool{
		"task_telegram": user.TaskTelegram,
		"task_discord":  user.TaskDiscord,
		"task_twitter":  user.TaskTwitter,
	}
	if done[column] {
		return nil, ErrTaskDone
	}

	if err := tx.Model(&user).Updates(map[string]interface{}{
		column:          true,
		"farming_point": gorm.Expr("farming_point + ?", socialReward),
	}).Error; err != nil {
		return nil, err
	}
	return refetch(tx, userID)
}

// linkWallet attaches a wallet to the user, creating the row when the wallet
// arrives before signup.
func linkWallet(tx *gorm.DB, userID, account string) (*models.TelegramUser, error) {
	var user models.TelegramUser
	err := tx.Where("user_id = ?", userID).First(&user).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		user = models.TelegramUser{UserID: userID, Account: account}
		if err := tx.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case err != nil:
		return nil, err
	}
	if err := tx.Model(&user).Update("account", account).Error; err != nil {
		return nil, err
	}
	user.Account = account
	return &user, nil
}

func refetch(tx *gorm.DB, userID string) (*models.TelegramUser, error) {
	var user models.TelegramUser
	if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SweepFinishedSessions credits every farming session that ran to completion
// and resets its start, notifying each user. Returns how many sessions paid out.
func SweepFinishedSessions(db *gorm.DB, now int64) (int, error) {
	var users []models.TelegramUser
	if err := db.Where("farm_started_at <> ? AND farm_started_at <= ?", 0, now-farmSessionSeconds).
		Find(&users).Error; err != nil {
		return 0, err
	}

	swept := 0
	for _, user := range users {
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.TelegramUser{}).
				Where("user_id = ? AND farm_started_at = ?", user.UserID, user.FarmStartedAt).
				Updates(map[string]interface{}{
					"farm_started_at": 0,
					"farming_point":   gorm.Expr("farming_point + ?", farmReward),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				swept++
				utils.NotifyFarmingComplete(user.UserID)
			}
			return nil
		})
		if err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// RunSweeper sweeps finished sessions on the given interval until the context
// is cancelled.
func RunSweeper(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := SweepFinishedSessions(db, time.Now().Unix()); err != nil {
				log.Printf("[telegram] farming sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[telegram] farming sweep credited %d sessions", n)
			}
		}
	}
}
