package models

import "time"

// RateLimitStatus is a read-only snapshot of the per-user quotas, taken once
// per turn before the runner is invoked.
type RateLimitStatus struct {
	Allowed         bool      `json:"allowed"`
	MinuteRemaining int       `json:"minuteRemaining"`
	DayRemaining    int       `json:"dayRemaining"`
	ResetMinute     time.Time `json:"resetMinute"`
	ResetDay        time.Time `json:"resetDay"`
}
