package point

import (
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xkonka/CDP-backend/controllers/referral"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

var errMultiplierActive = errors.New("temporary multiplier still active")

// creditTask records an off-chain task credit, split once at write time: 85%
// to the account, 15% to its referrer of record as a pending referral event.
// An account without a referrer keeps its 85% and the 15% is deliberately not
// paid out anywhere; redirecting it to the pool would turn the sentinel owner
// into a point sink.
func creditTask(tx *gorm.DB, account string, rawPoints int64) error {
	accountShare, referrerShare := utils.SplitTaskPoints(rawPoints)
	now := time.Now().Unix()

	if err := ensureEntry(tx, account); err != nil {
		return err
	}
	if err := tx.Create(&models.XPEvent{
		Account:  account,
		Points:   accountShare,
		EarnedAt: now,
	}).Error; err != nil {
		return err
	}

	referrer, ok, err := referral.ReferrerOfAny(tx, account)
	if err != nil {
		return err
	}
	if !ok || referrer == models.PoolOwner {
		return nil
	}
	if err := ensureEntry(tx, referrer); err != nil {
		return err
	}
	return tx.Create(&models.ReferralEvent{
		Account:  referrer,
		Points:   referrerShare,
		EarnedAt: now,
		Pending:  true,
	}).Error
}

// ensureEntry upserts the ledger row for an account on first credit.
func ensureEntry(tx *gorm.DB, account string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoNothing: true,
	}).Create(&models.Point{Account: account, MultiplierPermanent: 1}).Error
}

// eventTotals sums the account's event log, optionally limited to a trailing
// window. The log carries per-event timestamps precisely so this query is
// possible; a flat counter could not answer it. Only pending referral shares
// count: drained shares were pushed to the external target the same cycle the
// matching xp events were deleted, so counting them here would overstate the
// not-yet-merged balance.
func eventTotals(db *gorm.DB, account string, windowSeconds int64) (xpTotal, referralTotal int64, err error) {
	xpQ := db.Model(&models.XPEvent{}).Where("account = ?", account)
	refQ := db.Model(&models.ReferralEvent{}).Where("account = ? AND pending = ?", account, true)
	if windowSeconds > 0 {
		cutoff := time.Now().Unix() - windowSeconds
		xpQ = xpQ.Where("earned_at >= ?", cutoff)
		refQ = refQ.Where("earned_at >= ?", cutoff)
	}
	if err = xpQ.Select("COALESCE(SUM(points), 0)").Scan(&xpTotal).Error; err != nil {
		return 0, 0, err
	}
	if err = refQ.Select("COALESCE(SUM(points), 0)").Scan(&referralTotal).Error; err != nil {
		return 0, 0, err
	}
	return xpTotal, referralTotal, nil
}

type rankedEntry struct {
	Entry models.Point `json:"entry"`
	Total int64        `json:"total"`
}

// rankedEntries returns every ledger entry with its not-yet-merged total
// (xp events plus pending referral shares), ordered by total descending.
// Ties keep entry creation order, which makes ranks stable across calls.
func rankedEntries(db *gorm.DB) ([]rankedEntry, error) {
	var entries []models.Point
	if err := db.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}

	type sumRow struct {
		Account string
		Total   int64
	}
	sums := make(map[string]int64, len(entries))
	var xpRows []sumRow
	if err := db.Model(&models.XPEvent{}).
		Select("account, COALESCE(SUM(points), 0) AS total").
		Group("account").
		Scan(&xpRows).Error; err != nil {
		return nil, err
	}
	for _, row := range xpRows {
		sums[row.Account] += row.Total
	}
	var refRows []sumRow
	if err := db.Model(&models.ReferralEvent{}).
		Select("account, COALESCE(SUM(points), 0) AS total").
		Where("pending = ?", true).
		Group("account").
		Scan(&refRows).Error; err != nil {
		return nil, err
	}
	for _, row := range refRows {
		sums[row.Account] += row.Total
	}

	out := make([]rankedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, rankedEntry{Entry: e, Total: sums[e.Account]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out, nil
}

// rankOf returns the 1-based position of the account in the descending total
// ordering, or 0 when the account has no ledger entry.
func rankOf(db *gorm.DB, account string) (int, error) {
	ranked, err := rankedEntries(db)
	if err != nil {
		return 0, err
	}
	for i, re := range ranked {
		if re.Entry.Account == account {
			return i + 1, nil
		}
	}
	return 0, nil
}
