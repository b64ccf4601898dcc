package glitch

import (
	"fmt"
	"time"
)

// Limits bounds a run. A zero field is unbounded, which is the default and
// matches an exhaustive search.
//
// MaxConsecutiveResets counts recoveries with no non-empty observation in
// between. When the target is still silent after that many resets, the next
// recovery is refused and the run stops with ErrCodeResetLimit.
type Limits struct {
	MaxAttempts          int           `json:"max_attempts"`
	MaxDuration          time.Duration `json:"max_duration"`
	MaxConsecutiveResets int           `json:"max_consecutive_resets"`
}

// budget tracks a run against its Limits.
type budget struct {
	limits Limits
}

// beforeAttempt is checked before every iteration.
func (b budget) beforeAttempt(attempts int, elapsed time.Duration) (ErrorCode, string) {
	if b.limits.MaxAttempts > 0 && attempts >= b.limits.MaxAttempts {
		return ErrCodeAttemptLimit, fmt.Sprintf("%d attempts", b.limits.MaxAttempts)
	}
	if b.limits.MaxDuration > 0 && elapsed >= b.limits.MaxDuration {
		return ErrCodeDurationLimit, b.limits.MaxDuration.String()
	}
	return "", ""
}

// beforeReset is checked before every recovery.
func (b budget) beforeReset(consecutive int) (ErrorCode, string) {
	if b.limits.MaxConsecutiveResets > 0 && consecutive >= b.limits.MaxConsecutiveResets {
		return ErrCodeResetLimit, fmt.Sprintf("%d consecutive resets", b.limits.MaxConsecutiveResets)
	}
	return "", ""
}
