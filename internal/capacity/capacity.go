// Package capacity checks at planning time whether a single dispatch
// producer can keep up with a simulator's delivery schedule.
//
// The producer claims at most blockSize due items every producerInterval.
// If the cohort needs more than that per cycle, a runtime backlog would
// corrupt delivery timing for the rest of the run, so the start transition
// is rejected before any schedule is written.
package capacity

import (
	"time"

	"github.com/me/capsim/pkg/model"
)

// Check verifies that blockSize requests per producer cycle are enough for
// studentCount students each receiving one request every cycleInterval.
//
// required = studentCount * (producerInterval / cycleInterval). Boundary
// equality passes. Pure function, no side effects.
func Check(studentCount int, cycleInterval, producerInterval time.Duration, blockSize int) error {
	if cycleInterval <= 0 {
		return &model.ScheduleError{Reason: "cycle interval must be positive"}
	}
	if producerInterval <= 0 {
		return &model.ScheduleError{Reason: "producer interval must be positive"}
	}

	required := float64(studentCount) * (producerInterval.Seconds() / cycleInterval.Seconds())
	if float64(blockSize) < required {
		return &model.CapacityError{Required: required, BlockSize: blockSize}
	}
	return nil
}
