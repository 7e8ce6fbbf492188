package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownPerGroupAndCommand(t *testing.T) {
	c := newCooldown(10 * time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := c.Allow("generate", -100, now)
	assert.True(t, ok)

	ok, wait := c.Allow("generate", -100, now.Add(time.Second))
	assert.False(t, ok)
	assert.InDelta(t, float64(9*time.Second), float64(wait), float64(10*time.Millisecond))

	ok, _ = c.Allow("generate", -101, now.Add(time.Second))
	assert.True(t, ok, "other group")
	ok, _ = c.Allow("licenses", -100, now.Add(time.Second))
	assert.True(t, ok, "other command")

	ok, _ = c.Allow("generate", -100, now.Add(11*time.Second))
	assert.True(t, ok, "after the period")
}

func TestCooldownRejectedCallsDoNotExtendTheWait(t *testing.T) {
	c := newCooldown(10 * time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := c.Allow("random_licenses", -100, now)
	assert.True(t, ok)
	for i := 1; i <= 5; i++ {
		ok, _ = c.Allow("random_licenses", -100, now.Add(time.Duration(i)*time.Second))
		assert.False(t, ok)
	}
	ok, _ = c.Allow("random_licenses", -100, now.Add(11*time.Second))
	assert.True(t, ok)
}
