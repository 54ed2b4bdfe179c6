package referral

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xkonka/CDP-backend/database"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// Redeeming a code grants the redeemer this permanent multiplier.
const redeemMultiplier = 2

// Collision retry budget per generated code. The code space is ~6.7M so more
// than a couple of retries means something is seriously wrong.
const maxGenerateAttempts = 10

var (
	ErrNotFound        = errors.New("invite code not found")
	ErrAlreadyRedeemed = errors.New("invite code already redeemed")
	ErrAlreadyRedeemer = errors.New("account already redeemed a code in this class")
	ErrSelfReferral    = errors.New("own code cannot be redeemed")
	ErrAlreadyOwner    = errors.New("account already owns a code in this class")
	ErrPoolExhausted   = errors.New("not enough unredeemed pool codes")
	ErrCodeCollision   = errors.New("could not generate a unique invite code")
)

func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint")
}

// generateCodes inserts count fresh codes for the owner, retrying on unique
// collisions against the full code space.
func generateCodes(tx *gorm.DB, owner, codeClass string, count int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var inserted bool
		for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
			code := utils.GenerateInviteCode()
			err := tx.Create(&models.InviteCode{
				Code:      code,
				CodeClass: codeClass,
				Owner:     owner,
			}).Error
			if err == nil {
				codes = append(codes, code)
				inserted = true
				break
			}
			if !isDuplicateErr(err) {
				return nil, err
			}
		}
		if !inserted {
			return nil, ErrCodeCollision
		}
	}
	return codes, nil
}

// redeemCode marks the code redeemed by account and mints grantCount fresh
// codes owned by the redeemer, all inside the caller's transaction.
//
// The redeemed flip is a single conditional UPDATE keyed on redeemed=false:
// of two concurrent redemptions of the same code exactly one sees a row
// affected. One-redemption-per-account-per-class rides on the unique
// (code_class, redeemer) index, so the same race between two first
// redemptions by one account also has exactly one winner.
func redeemCode(tx *gorm.DB, account, code, codeClass string, grantCount int) ([]string, error) {
	var rec models.InviteCode
	err := tx.Where("code = ? AND code_class = ?", code, codeClass).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Owner == account {
		return nil, ErrSelfReferral
	}

	// Friendly pre-check; the unique index below is the authority.
	var existing models.InviteCode
	err = tx.Where("code_class = ? AND redeemer = ?", codeClass, account).First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyRedeemer
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err := claimCode(tx, account, code, codeClass); err != nil {
		return nil, err
	}

	granted, err := generateCodes(tx, account, codeClass, grantCount)
	if err != nil {
		return nil, err
	}

	// Redemption bonus lands in the same transaction as the redeemed flip.
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"multiplier_permanent": redeemMultiplier}),
	}).Create(&models.Point{
		Account:             account,
		MultiplierPermanent: redeemMultiplier,
	}).Error; err != nil {
		return nil, err
	}

	return granted, nil
}

// claimCode flips the code to redeemed by account. This write is the authority
// on both races: redeemed=false in the WHERE clause means exactly one of two
// concurrent redemptions of the same code affects a row, and the unique
// (code_class, redeemer) index rejects a second first-redemption by the same
// account even when both slipped past the pre-check above.
func claimCode(tx *gorm.DB, account, code, codeClass string) error {
	res := tx.Model(&models.InviteCode{}).
		Where("code = ? AND code_class = ? AND redeemed = ?", code, codeClass, false).
		Updates(map[string]interface{}{"redeemer": account, "redeemed": true})
	if res.Error != nil {
		if isDuplicateErr(res.Error) {
			return ErrAlreadyRedeemer
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyRedeemed
	}
	return nil
}

// redeemPoolCode redeems an arbitrary pool-owned code on the account's behalf.
// The row lock keeps two concurrent admin redemptions from picking the same code.
func redeemPoolCode(tx *gorm.DB, account, codeClass string, grantCount int) (string, []string, error) {
	var rec models.InviteCode
	err := database.LockForUpdate(tx).
		Where("owner = ? AND code_class = ? AND redeemed = ?", models.PoolOwner, codeClass, false).
		Order("id ASC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil, ErrPoolExhausted
	}
	if err != nil {
		return "", nil, err
	}
	granted, err := redeemCode(tx, account, rec.Code, codeClass, grantCount)
	if err != nil {
		return "", nil, err
	}
	return rec.Code, granted, nil
}

// distributeCodes reassigns count pool codes to the account, minting the
// shortfall when the pool runs low. Mainnet-style classes allow a single
// distribution per account.
func distributeCodes(tx *gorm.DB, account, codeClass string, count int) ([]string, error) {
	if models.PolicyFor(codeClass).SingleDistribution {
		var existing models.InviteCode
		err := tx.Where("owner = ? AND code_class = ?", account, codeClass).First(&existing).Error
		if err == nil {
			return nil, ErrAlreadyOwner
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	var pool []models.InviteCode
	if err := database.LockForUpdate(tx).
		Where("owner = ? AND code_class = ? AND redeemed = ?", models.PoolOwner, codeClass, false).
		Order("id ASC").
		Limit(count).
		Find(&pool).Error; err != nil {
		return nil, err
	}

	codes := make([]string, 0, count)
	for _, rec := range pool {
		res := tx.Model(&models.InviteCode{}).
			Where("id = ? AND owner = ? AND redeemed = ?", rec.ID, models.PoolOwner, false).
			Update("owner", account)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			codes = append(codes, rec.Code)
		}
	}

	if shortfall := count - len(codes); shortfall > 0 {
		minted, err := generateCodes(tx, account, codeClass, shortfall)
		if err != nil {
			return nil, err
		}
		codes = append(codes, minted...)
	}
	return codes, nil
}
