package models

import "time"

// DefaultEpochSeconds is the merge period used until an operator changes it. One day.
const DefaultEpochSeconds = 24 * 60 * 60

// PointStat is the reconciliation checkpoint. A single row, created on the first
// successful merge and updated in place afterwards. LastMergeAt zero means no
// merge has ever completed.
type PointStat struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	LastMergeAt  int64     `gorm:"not null;default:0" json:"last_merge_at"`
	EpochSeconds int64     `gorm:"not null;default:86400" json:"epoch_seconds"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
