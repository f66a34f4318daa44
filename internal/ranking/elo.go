package ranking

import "math"

const (
	// BaselineRating is the rating every photo starts with.
	BaselineRating = 1200.0
	// KFactor bounds the rating change of a single judgment.
	KFactor = 32.0
)

// ExpectedScore returns the probability that a photo rated winnerRating beats one rated loserRating.
func ExpectedScore(winnerRating, loserRating float64) float64 {
	return 1 / (1 + math.Pow(10, (loserRating-winnerRating)/400))
}

// EloChange returns the rating deltas for a judgment where the first photo won.
// The result is zero-sum and each delta lies strictly inside (-KFactor, KFactor).
func EloChange(winnerRating, loserRating float64) (winnerDelta, loserDelta float64) {
	expectedWinner := ExpectedScore(winnerRating, loserRating)
	winnerDelta = KFactor * (1 - expectedWinner)
	loserDelta = -winnerDelta
	return winnerDelta, loserDelta
}
