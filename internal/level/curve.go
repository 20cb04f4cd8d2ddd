// Package level implements the XP curve that maps cumulative XP to levels.
package level

import "math"

// Curve parameters. XP needed to enter level n is Base * n^Exponent.
const (
	Base     = 100
	Exponent = 1.5
	MaxLevel = 100
)

// Progress describes where a cumulative XP total sits on the curve.
type Progress struct {
	Level           int   `json:"level"`
	CurrentLevelXP  int64 `json:"currentLevelXP"`
	XPForNextLevel  int64 `json:"xpForNextLevel"`
	ProgressPercent int   `json:"progress"`
}

// XPForLevel returns the XP needed to go from level n-1 to level n.
func XPForLevel(n int) int64 {
	if n <= 1 {
		return 0
	}
	return int64(math.Floor(Base * math.Pow(float64(n), Exponent)))
}

// TotalXPForLevel returns the cumulative XP needed to reach level n from level 1.
func TotalXPForLevel(n int) int64 {
	var total int64
	for i := 2; i <= n; i++ {
		total += XPForLevel(i)
	}
	return total
}

// XPBetweenLevels returns the cumulative XP separating two levels.
func XPBetweenLevels(from, to int) int64 {
	return TotalXPForLevel(to) - TotalXPForLevel(from)
}

// FromTotalXP derives level and in-level progress from a cumulative XP total.
// Negative totals are treated as zero.
func FromTotalXP(total int64) Progress {
	lvl := 1
	remaining := total
	if remaining < 0 {
		remaining = 0
	}

	for lvl < MaxLevel {
		needed := XPForLevel(lvl + 1)
		if remaining < needed {
			break
		}
		remaining -= needed
		lvl++
	}

	var next int64
	if lvl < MaxLevel {
		next = XPForLevel(lvl + 1)
	}

	percent := 100
	if next > 0 {
		percent = int(math.Round(float64(remaining) / float64(next) * 100))
		if percent > 100 {
			percent = 100
		}
	}

	return Progress{
		Level:           lvl,
		CurrentLevelXP:  remaining,
		XPForNextLevel:  next,
		ProgressPercent: percent,
	}
}
