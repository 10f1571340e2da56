package dto

import "time"

type RateLimitInfo struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	RetryAfterMs int64      `json:"retry_after_ms,omitempty"`
	ResetTime    *time.Time `json:"reset_time,omitempty"`
}
