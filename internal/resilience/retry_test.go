package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBackoffSchedule(t *testing.T) {
	cfg := DefaultBackoff()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second},
		{6, 60 * time.Second},
		{7, 60 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, cfg.Delay(c.attempt), "attempt %d", c.attempt)
	}
}

func TestBackoffDelayClampsAttemptBelowOne(t *testing.T) {
	cfg := DefaultBackoff()
	assert.Equal(t, cfg.Delay(1), cfg.Delay(0))
	assert.Equal(t, cfg.Delay(1), cfg.Delay(-5))
}
