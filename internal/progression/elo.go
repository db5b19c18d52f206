package progression

import "math"

const (
	DefaultK      = 32
	InitialRating = 1000
)

// Expected is the logistic expected score of a rated against b.
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// EloDelta returns the rating change for a player with rating `a` against
// rating `b` scoring `score` (1 win, 0.5 draw, 0 loss).
func EloDelta(a, b int, score float64, k int) int {
	if k <= 0 {
		k = DefaultK
	}
	return int(math.Round(float64(k) * (score - Expected(a, b))))
}
