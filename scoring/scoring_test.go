package scoring

import (
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		testName  string
		tally     Tally
		totalPool int64
		want      Result
	}{
		{
			"copies weighted double",
			Tally{Original: 4, Copy1: 3, Copy2: 3},
			300,
			Result{
				PrizePool:      280,
				PointsOriginal: 4,
				PointsCopy1:    6,
				PointsCopy2:    6,
				PayoutOriginal: 70,
				PayoutCopy1:    105,
				PayoutCopy2:    105,
				Rake:           0,
			},
		},
		{
			"no votes splits evenly",
			Tally{},
			300,
			Result{
				PrizePool:      300,
				PayoutOriginal: 100,
				PayoutCopy1:    100,
				PayoutCopy2:    100,
				Rake:           0,
			},
		},
		{
			"rounding remainder becomes rake",
			Tally{Original: 1, Copy1: 1},
			300,
			Result{
				PrizePool:      295,
				PointsOriginal: 1,
				PointsCopy1:    2,
				PayoutOriginal: 98,
				PayoutCopy1:    196,
				Rake:           1,
			},
		},
		{
			"original sweeps",
			Tally{Original: 5},
			310,
			Result{
				PrizePool:      285,
				PointsOriginal: 5,
				PayoutOriginal: 285,
				Rake:           0,
			},
		},
		{
			"copies sweep",
			Tally{Copy1: 10, Copy2: 10},
			300,
			Result{
				PrizePool:      300,
				PointsCopy1:    20,
				PointsCopy2:    20,
				PayoutCopy1:    150,
				PayoutCopy2:    150,
				Rake:           0,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got := Score(tt.tally, tt.totalPool, 5)
			if got != tt.want {
				t.Errorf("Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScoreConservation(t *testing.T) {
	// Paid amounts plus rake always equal the prize pool.
	tallies := []Tally{
		{Original: 7, Copy1: 2, Copy2: 11},
		{Original: 1, Copy1: 1, Copy2: 1},
		{Original: 19, Copy1: 1},
		{Original: 0, Copy1: 3, Copy2: 4},
	}
	for _, tally := range tallies {
		got := Score(tally, 320, 5)
		sum := got.PayoutOriginal + got.PayoutCopy1 + got.PayoutCopy2 + got.Rake
		if sum != got.PrizePool {
			t.Errorf("tally %+v: payouts+rake = %d, want prize pool %d",
				tally, sum, got.PrizePool)
		}
	}
}
