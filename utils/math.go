package utils

import "math/big"

// Referral program constants. These are fixed policy, not configuration.
const (
	// TaskSharePercent / ReferralSharePercent split an off-chain task credit
	// between the credited account and its referrer.
	TaskSharePercent     = 85
	ReferralSharePercent = 15

	// On-chain feed amounts are scaled by 10/4 before entering the merge.
	onChainScaleNum = 10
	onChainScaleDen = 4
)

// offChainScale lifts off-chain point sums to the 18-decimal scale the external
// write target expects.
var offChainScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SplitTaskPoints divides a raw task credit 85/15. Integer division can lose at
// most one point; the remainder stays with the credited account so the two
// shares always sum to raw. When the account has no referrer the caller simply
// does not pay the referrer share out.
func SplitTaskPoints(raw int64) (accountShare, referrerShare int64) {
	accountShare = raw * TaskSharePercent / 100
	referrerShare = raw * ReferralSharePercent / 100
	accountShare += raw - accountShare - referrerShare
	return accountShare, referrerShare
}

// ScaleOnChainAmount applies the fixed 10/4 scaling to a raw feed amount.
// All merge arithmetic is big.Int; floats would drift under the later
// percentage split.
func ScaleOnChainAmount(raw *big.Int) *big.Int {
	scaled := new(big.Int).Mul(raw, big.NewInt(onChainScaleNum))
	return scaled.Quo(scaled, big.NewInt(onChainScaleDen))
}

// ReferralShareOf returns the referrer's cut of an on-chain portion. Used only
// at merge time: off-chain credits were already split when they were recorded,
// so applying this to anything but the on-chain portion would double-pay.
func ReferralShareOf(onChain *big.Int) *big.Int {
	share := new(big.Int).Mul(onChain, big.NewInt(ReferralSharePercent))
	return share.Quo(share, big.NewInt(100))
}

// ScaleOffChainPoints lifts an off-chain point sum to the on-chain decimal scale.
func ScaleOffChainPoints(points int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(points), offChainScale)
}
