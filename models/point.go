package models

import "time"

// Point holds the per-account multipliers. Earned points themselves live in the
// append-only event tables below so that windowed queries and idempotent draining
// stay possible; a flat running counter cannot support either.
type Point struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Account string `gorm:"type:varchar(64);uniqueIndex;not null" json:"account"`
	// MultiplierPermanent is adjusted by increments and never expires. Default 1.
	MultiplierPermanent float64 `gorm:"not null;default:1" json:"multiplier_permanent"`
	// MultiplierTemporary is active until EndTimestamp (unix seconds). A new one
	// may only be set once the previous one has expired.
	MultiplierTemporary float64   `gorm:"not null;default:0" json:"multiplier_temporary"`
	EndTimestamp        int64     `gorm:"not null;default:0" json:"end_timestamp"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// XPEvent is one off-chain task credit (the account's share after the referral
// split). Rows are deleted only by the reconciler after an external write has
// been confirmed.
type XPEvent struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Account  string `gorm:"type:varchar(64);index;not null" json:"account"`
	Points   int64  `gorm:"not null" json:"points"`
	EarnedAt int64  `gorm:"index;not null" json:"earned_at"`
}

// ReferralEvent is a referrer's share of a task credit. Pending rows are waiting
// for the next merge cycle; the reconciler flips Pending to false instead of
// deleting so the referral history survives.
type ReferralEvent struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Account  string `gorm:"type:varchar(64);index;not null" json:"account"`
	Points   int64  `gorm:"not null" json:"points"`
	EarnedAt int64  `gorm:"index;not null" json:"earned_at"`
	Pending  bool   `gorm:"index;not null;default:true" json:"pending"`
}
