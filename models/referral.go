package models

import "time"

// PoolOwner is the sentinel owner for codes that have not been distributed yet.
// Referral shares are never paid out to it.
const PoolOwner = "admin"

// Code classes partition the invite-code pool into independent program phases.
// Codes never cross-redeem between classes.
const (
	CodeClassMainnet = "mainnet"
	CodeClassTestnet = "testnet"
)

type InviteCode struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Code      string  `gorm:"type:varchar(16);uniqueIndex;not null" json:"invite_code"`
	CodeClass string  `gorm:"type:varchar(16);not null;default:'testnet';uniqueIndex:idx_class_redeemer,priority:1" json:"code_class"`
	Owner     string  `gorm:"type:varchar(64);index;not null" json:"owner"`
	Redeemer  *string `gorm:"type:varchar(64);uniqueIndex:idx_class_redeemer,priority:2" json:"redeemer,omitempty"`
	Redeemed  bool    `gorm:"not null;default:false" json:"redeemed"`
	// SignMsg is an opaque signature payload attached by the distributing side.
	// Stored and echoed back on validate, never interpreted here.
	SignMsg   string    `gorm:"type:varchar(255)" json:"sign_msg,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassPolicy captures how a code class behaves. Mainnet-style phases hand each
// account a single code whose owner accumulates redeemers over time; testnet-style
// phases hand out codes freely. Both enforce one redemption per account.
type ClassPolicy struct {
	// SingleDistribution rejects a second admin distribution to the same account.
	SingleDistribution bool
}

func PolicyFor(codeClass string) ClassPolicy {
	switch codeClass {
	case CodeClassMainnet:
		return ClassPolicy{SingleDistribution: true}
	default:
		return ClassPolicy{SingleDistribution: false}
	}
}
