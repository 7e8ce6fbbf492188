package bot

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldown throttles expensive commands per group: one call per period.
type cooldown struct {
	mu       sync.Mutex
	period   time.Duration
	limiters map[string]*rate.Limiter
}

func newCooldown(period time.Duration) *cooldown {
	return &cooldown{
		period:   period,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *cooldown) limiter(command string, groupID int64) *rate.Limiter {
	key := fmt.Sprintf("%s:%d", command, groupID)
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.period), 1)
		c.limiters[key] = l
	}
	return l
}

// Allow reports whether command may run in the group now, and if not, how
// long until it may.
func (c *cooldown) Allow(command string, groupID int64, now time.Time) (bool, time.Duration) {
	l := c.limiter(command, groupID)
	r := l.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}
