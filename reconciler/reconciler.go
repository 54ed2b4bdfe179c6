package reconciler

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/0xkonka/CDP-backend/chain"
	"github.com/0xkonka/CDP-backend/models"
	"github.com/0xkonka/CDP-backend/utils"
)

// ErrAlreadyRunning is returned when a cycle is requested while another one is
// still in flight. Cycles must never overlap: two concurrent runs would drain
// the same pending events twice.
var ErrAlreadyRunning = errors.New("reconciliation cycle already running")

// DefaultLookback bounds the first merge window when no checkpoint exists yet.
const DefaultLookback = 90 * 24 * time.Hour

// CycleResult reports what a completed cycle did.
type CycleResult struct {
	BatchID         string
	Deltas          []chain.PointDelta
	DrainedAccounts []string
}

// Engine merges the two point sources into one batched external write.
// It owns the checkpoint and is the only component that drains the ledger.
type Engine struct {
	db       *gorm.DB
	feed     *chain.FeedClient
	keeper   *chain.PointKeeperClient
	lookback time.Duration

	mu sync.Mutex
}

func New(db *gorm.DB, feed *chain.FeedClient, keeper *chain.PointKeeperClient) *Engine {
	return &Engine{
		db:       db,
		feed:     feed,
		keeper:   keeper,
		lookback: DefaultLookback,
	}
}

// Start runs cycles on the stored epoch until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	for {
		if _, err := e.RunOnce(ctx); err != nil && err != ErrAlreadyRunning {
			log.Printf("[reconciler] cycle failed, will retry next epoch: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.epoch()):
		}
	}
}

func (e *Engine) epoch() time.Duration {
	var stat models.PointStat
	if err := e.db.First(&stat).Error; err == nil && stat.EpochSeconds > 0 {
		return time.Duration(stat.EpochSeconds) * time.Second
	}
	return time.Duration(models.DefaultEpochSeconds) * time.Second
}

// RunOnce executes a single merge cycle. Any failure before the external write
// is confirmed aborts with no state change, so the next run retries the same
// window. Only after confirmation are the drained events cleared and the
// checkpoint advanced, together, in one transaction.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer e.mu.Unlock()

	startedAt := time.Now().Unix()

	var stat models.PointStat
	since := int64(0)
	err := e.db.First(&stat).Error
	switch {
	case err == nil:
		since = stat.LastMergeAt
	case err == gorm.ErrRecordNotFound:
		// first run ever
	default:
		return nil, err
	}
	if since == 0 {
		since = startedAt - int64(e.lookback/time.Second)
	}

	// Event-ID watermarks snapshot the off-chain read set. Credits that land
	// while the cycle is in flight get IDs above the watermark and survive the
	// drain untouched.
	xpMax, refMax, err := e.watermarks()
	if err != nil {
		return nil, err
	}

	onChain, err := e.fetchOnChain(ctx, since, startedAt)
	if err != nil {
		return nil, err
	}
	offChain, err := e.fetchOffChain(xpMax, refMax)
	if err != nil {
		return nil, err
	}

	totals := combine(onChain, offChain)

	referrers, err := e.referrerMap()
	if err != nil {
		return nil, err
	}
	applyReferralSplit(totals, onChain, referrers)

	deltas := toDeltas(totals)

	result := &CycleResult{Deltas: deltas}
	for account := range offChain {
		result.DrainedAccounts = append(result.DrainedAccounts, account)
	}
	sort.Strings(result.DrainedAccounts)

	if len(deltas) > 0 {
		result.BatchID = uuid.NewString()
		txHash, err := e.keeper.Submit(ctx, result.BatchID, deltas)
		if err != nil {
			return nil, err
		}
		if err := e.keeper.AwaitConfirmation(ctx, txHash); err != nil {
			return nil, err
		}
	}

	if err := e.drainAndAdvance(result.DrainedAccounts, xpMax, refMax, startedAt, &stat); err != nil {
		return nil, err
	}

	log.Printf("[reconciler] cycle done: %d deltas, %d accounts drained, checkpoint=%d",
		len(deltas), len(result.DrainedAccounts), startedAt)
	return result, nil
}

func (e *Engine) watermarks() (xpMax, refMax int64, err error) {
	if err = e.db.Model(&models.XPEvent{}).Select("COALESCE(MAX(id), 0)").Scan(&xpMax).Error; err != nil {
		return 0, 0, err
	}
	if err = e.db.Model(&models.ReferralEvent{}).Select("COALESCE(MAX(id), 0)").Scan(&refMax).Error; err != nil {
		return 0, 0, err
	}
	return xpMax, refMax, nil
}

// fetchOnChain sums scaled feed amounts per account over [since, until).
// The upper bound keeps the window half-open: events at or after the cycle
// start belong to the next cycle, which starts exactly there.
func (e *Engine) fetchOnChain(ctx context.Context, since, until int64) (map[string]*big.Int, error) {
	events, err := e.feed.EventsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	onChain := make(map[string]*big.Int)
	for _, ev := range events {
		if ev.Timestamp < since || ev.Timestamp >= until {
			continue
		}
		account := utils.NormalizeAccount(ev.Account)
		raw, ok := new(big.Int).SetString(ev.Amount, 10)
		if !ok {
			log.Printf("[reconciler] skipping feed event with bad amount %q for %s", ev.Amount, account)
			continue
		}
		scaled := utils.ScaleOnChainAmount(raw)
		if cur, ok := onChain[account]; ok {
			cur.Add(cur, scaled)
		} else {
			onChain[account] = scaled
		}
	}
	return onChain, nil
}

// fetchOffChain sums pending ledger events up to the watermarks.
func (e *Engine) fetchOffChain(xpMax, refMax int64) (map[string]int64, error) {
	type sumRow struct {
		Account string
		Total   int64
	}
	offChain := make(map[string]int64)

	var xpRows []sumRow
	if err := e.db.Model(&models.XPEvent{}).
		Select("account, COALESCE(SUM(points), 0) AS total").
		Where("id <= ?", xpMax).
		Group("account").
		Scan(&xpRows).Error; err != nil {
		return nil, err
	}
	for _, row := range xpRows {
		offChain[row.Account] += row.Total
	}

	var refRows []sumRow
	if err := e.db.Model(&models.ReferralEvent{}).
		Select("account, COALESCE(SUM(points), 0) AS total").
		Where("pending = ? AND id <= ?", true, refMax).
		Group("account").
		Scan(&refRows).Error; err != nil {
		return nil, err
	}
	for _, row := range refRows {
		offChain[row.Account] += row.Total
	}
	return offChain, nil
}

// referrerMap resolves each redeemer's referrer of record, earliest redeemed
// code winning across classes.
func (e *Engine) referrerMap() (map[string]string, error) {
	var codes []models.InviteCode
	if err := e.db.Where("redeemed = ?", true).Order("id ASC").Find(&codes).Error; err != nil {
		return nil, err
	}
	referrers := make(map[string]string, len(codes))
	for _, c := range codes {
		redeemer := utils.GetStringValue(c.Redeemer)
		if redeemer == "" {
			continue
		}
		if _, ok := referrers[redeemer]; !ok {
			referrers[redeemer] = c.Owner
		}
	}
	return referrers, nil
}

func combine(onChain map[string]*big.Int, offChain map[string]int64) map[string]*big.Int {
	totals := make(map[string]*big.Int, len(onChain)+len(offChain))
	for account, pts := range onChain {
		totals[account] = new(big.Int).Set(pts)
	}
	for account, pts := range offChain {
		scaled := utils.ScaleOffChainPoints(pts)
		if cur, ok := totals[account]; ok {
			cur.Add(cur, scaled)
		} else {
			totals[account] = scaled
		}
	}
	return totals
}

// applyReferralSplit moves 15% of each account's on-chain portion to its
// referrer. Only the on-chain portion: off-chain credits were split when they
// were recorded, so splitting them again here would double-pay. The pool
// sentinel never receives a share.
func applyReferralSplit(totals, onChain map[string]*big.Int, referrers map[string]string) {
	accounts := make([]string, 0, len(totals))
	for account := range totals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		onChainPortion, ok := onChain[account]
		if !ok || onChainPortion.Sign() <= 0 {
			continue
		}
		referrer, ok := referrers[account]
		if !ok || referrer == models.PoolOwner {
			continue
		}
		share := utils.ReferralShareOf(onChainPortion)
		if share.Sign() <= 0 {
			continue
		}
		totals[account].Sub(totals[account], share)
		if cur, ok := totals[referrer]; ok {
			cur.Add(cur, share)
		} else {
			totals[referrer] = share
		}
	}
}

func toDeltas(totals map[string]*big.Int) []chain.PointDelta {
	accounts := make([]string, 0, len(totals))
	for account := range totals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	deltas := make([]chain.PointDelta, 0, len(accounts))
	for _, account := range accounts {
		deltas = append(deltas, chain.PointDelta{
			Account: account,
			Points:  totals[account].String(),
		})
	}
	return deltas
}

// drainAndAdvance clears the consumed off-chain events and moves the
// checkpoint, in one transaction, only for the accounts this cycle submitted.
func (e *Engine) drainAndAdvance(drained []string, xpMax, refMax, mergedAt int64, stat *models.PointStat) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		if len(drained) > 0 {
			if err := tx.Where("id <= ? AND account IN ?", xpMax, drained).
				Delete(&models.XPEvent{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ReferralEvent{}).
				Where("pending = ? AND id <= ? AND account IN ?", true, refMax, drained).
				Update("pending", false).Error; err != nil {
				return err
			}
		}
		if stat.ID == 0 {
			return tx.Create(&models.PointStat{
				LastMergeAt:  mergedAt,
				EpochSeconds: models.DefaultEpochSeconds,
			}).Error
		}
		return tx.Model(stat).Update("last_merge_at", mergedAt).Error
	})
}
