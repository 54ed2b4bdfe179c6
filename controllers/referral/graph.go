package referral

import (
	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/models"
)

// ReferrerOf returns the owner of the code the account redeemed in the given
// class, or ok=false when the account has no referrer of record there. Derived
// from pool state on every call; there is no separate edge storage.
func ReferrerOf(db *gorm.DB, account, codeClass string) (string, bool, error) {
	var code models.InviteCode
	err := db.Where("redeemed = ? AND redeemer = ? AND code_class = ?", true, account, codeClass).
		First(&code).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code.Owner, true, nil
}

// ReferrerOfAny resolves the referrer across classes, earliest redemption
// winning. The merge cycle pays a single referrer per account regardless of
// how many program phases the account joined.
func ReferrerOfAny(db *gorm.DB, account string) (string, bool, error) {
	var code models.InviteCode
	err := db.Where("redeemed = ? AND redeemer = ?", true, account).
		Order("id ASC").
		First(&code).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code.Owner, true, nil
}

// ReferredAccount is one row of an owner's downline: the code that was
// redeemed plus the redeemer's current ledger totals for display.
type ReferredAccount struct {
	Code     string `json:"invite_code"`
	Redeemer string `json:"redeemer"`
	XPPoints int64  `json:"xp_points"`
}

// ReferredAccounts lists every account that redeemed one of the owner's codes
// in the given class, joined with each redeemer's accumulated event totals.
func ReferredAccounts(db *gorm.DB, owner, codeClass string) ([]ReferredAccount, error) {
	var codes []models.InviteCode
	if err := db.Where("owner = ? AND code_class = ? AND redeemed = ?", owner, codeClass, true).
		Order("id ASC").
		Find(&codes).Error; err != nil {
		return nil, err
	}

	out := make([]ReferredAccount, 0, len(codes))
	for _, c := range codes {
		if c.Redeemer == nil {
			continue
		}
		var total int64
		row := db.Raw(
			"SELECT COALESCE(SUM(points), 0) FROM xp_events WHERE account = ?", *c.Redeemer,
		).Row()
		if err := row.Scan(&total); err != nil {
			return nil, err
		}
		out = append(out, ReferredAccount{Code: c.Code, Redeemer: *c.Redeemer, XPPoints: total})
	}
	return out, nil
}
