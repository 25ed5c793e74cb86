package testutil

import "time"

// ExecutionRecord holds the start and end times of one invocation.
type ExecutionRecord struct {
	Iteration int
	Start     time.Time
	End       time.Time
}
