// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scoring computes contributor payouts for a finalized phraseset.
// Pure integer arithmetic with no storage access.
package scoring

// Tally is the vote count per phrase at finalization.
type Tally struct {
	Original int64
	Copy1    int64
	Copy2    int64
}

// Result is the scoring outcome.  PrizePool is the total pool less the
// voter payouts already credited for correct votes; Rake is the rounding
// remainder kept by the house.
type Result struct {
	PrizePool      int64
	PointsOriginal int64
	PointsCopy1    int64
	PointsCopy2    int64
	PayoutOriginal int64
	PayoutCopy1    int64
	PayoutCopy2    int64
	Rake           int64
}

// Score distributes totalPool across the three contributors.  Votes for
// the original score one point each, votes for a copy two.  When no votes
// were cast each contributor receives an equal third.  votePayout is the
// per correct vote credit already paid out to voters.
func Score(tally Tally, totalPool int64, votePayout int64) Result {
	res := Result{
		PrizePool:      totalPool - tally.Original*votePayout,
		PointsOriginal: tally.Original,
		PointsCopy1:    tally.Copy1 * 2,
		PointsCopy2:    tally.Copy2 * 2,
	}

	total := res.PointsOriginal + res.PointsCopy1 + res.PointsCopy2
	if total == 0 {
		third := totalPool / 3
		res.PayoutOriginal = third
		res.PayoutCopy1 = third
		res.PayoutCopy2 = third
	} else {
		res.PayoutOriginal = res.PointsOriginal * res.PrizePool / total
		res.PayoutCopy1 = res.PointsCopy1 * res.PrizePool / total
		res.PayoutCopy2 = res.PointsCopy2 * res.PrizePool / total
	}

	res.Rake = res.PrizePool - res.PayoutOriginal - res.PayoutCopy1 - res.PayoutCopy2
	return res
}
