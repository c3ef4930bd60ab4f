package memory

import (
	"math"
	"time"
)

const (
	minRetentionDays = 1
	maxRetentionDays = 90
)

// RetentionTTL derives how long a record is kept from its importance:
// floor(1 + 89*importance) days, so 1 day at 0 and 90 days at 1.
func RetentionTTL(importance float64) time.Duration {
	importance = ClampImportance(importance)
	days := int(math.Floor(minRetentionDays + (maxRetentionDays-minRetentionDays)*importance))
	return time.Duration(days) * 24 * time.Hour
}
