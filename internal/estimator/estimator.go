// Package estimator infers where a blind is heading from the positions the
// gateway reports, and detects when it has stopped moving.
package estimator

import "blinds_bridge/internal/models"

// Direction of travel derived from a current/target pair.
type Direction int

const (
	Decreasing Direction = iota
	Increasing
	Stopped
)

func (d Direction) String() string {
	switch d {
	case Decreasing:
		return "decreasing"
	case Increasing:
		return "increasing"
	default:
		return "stopped"
	}
}

// Estimate returns the most likely target for a blind given the previously
// reported position, the new one, and the target currently assumed.
//
// A reading that moved past both the previous reading and the known target
// means the gateway has not told us the real destination yet, so the blind is
// assumed to travel to the end stop in that direction. Both comparisons are
// strict and must agree; anything else keeps the existing target.
func Estimate(previous, current, target int) int {
	switch {
	case current > previous && current > target:
		return models.MaxPercent
	case current < previous && current < target:
		return models.MinPercent
	default:
		return target
	}
}

// DirectionOf reports the HomeKit position state for a current/target pair.
func DirectionOf(current, target int) Direction {
	switch {
	case target > current:
		return Increasing
	case target < current:
		return Decreasing
	default:
		return Stopped
	}
}
