package core

import (
	"errors"
	"math"
	"sort"
)

// LevelTable holds the minimum cumulative score for each level above 1,
// in ascending order. LevelTable{5, 25} means 0-4 -> 1, 5-24 -> 2, 25+ -> 3.
type LevelTable []int64

// DefaultLevels is used when no thresholds are configured.
var DefaultLevels = LevelTable{5, 25, 50, 100, 250, 500, 1000, 2000, 5000}

// Level maps a cumulative score to its level. It is monotonic non-decreasing and never below 1.
func (t LevelTable) Level(score int64) int64 {
	n := sort.Search(len(t), func(i int) bool { return t[i] > score })
	return int64(n) + 1
}

// Validate ensures thresholds are strictly ascending and positive.
func (t LevelTable) Validate() error {
	for i, v := range t {
		if v <= 0 {
			return errors.New("level thresholds must be positive")
		}
		if i > 0 && v <= t[i-1] {
			return errors.New("level thresholds must be strictly ascending")
		}
	}
	return nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}
