package models

import "time"

// Social tasks a mini-app user can complete, once each.
const (
	SocialTelegram = "telegram"
	SocialDiscord  = "discord"
	SocialTwitter  = "twitter"
)

// TelegramUser is one mini-app participant. Farming and referral points live
// here directly rather than in the on-chain ledger; the programs only meet
// once a wallet is linked via Account.
type TelegramUser struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   string `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	UserName string `gorm:"type:varchar(64)" json:"user_name,omitempty"`
	// Account is the linked wallet, normalized on ingress.
	Account string `gorm:"type:varchar(64);index" json:"account,omitempty"`
	// FarmStartedAt is the unix start of the active farming session; zero means
	// the last session was already credited and no session is running.
	FarmStartedAt int64     `gorm:"not null;default:0" json:"farm_started_at"`
	FarmingPoint  int64     `gorm:"not null;default:0" json:"farming_point"`
	ReferralPoint int64     `gorm:"not null;default:0" json:"referral_point"`
	TaskTelegram  bool      `gorm:"not null;default:false" json:"task_telegram"`
	TaskDiscord   bool      `gorm:"not null;default:false" json:"task_discord"`
	TaskTwitter   bool      `gorm:"not null;default:false" json:"task_twitter"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TelegramReferral records that JoinedUserID signed up through ReferrerUserID.
// The unique index on the joined side means a user joins through at most one
// referrer, ever.
type TelegramReferral struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ReferrerUserID string `gorm:"type:varchar(64);index;not null" json:"referrer_user_id"`
	JoinedUserID   string `gorm:"type:varchar(64);uniqueIndex;not null" json:"joined_user_id"`
	JoinedAt       int64  `gorm:"not null" json:"joined_at"`
}
