package scheduler

import (
	"fmt"
	"time"
)

// EveryExpr renders a time.Duration as a robfig/cron "@every" expression,
// the form used for the Decision Engine and Maintenance Loop's
// configurable intervals.
func EveryExpr(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}
