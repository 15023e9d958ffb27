package sessions_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	b := sessions.Backoff{Base: 250 * time.Millisecond, MaxRetries: 4}

	assert.Equal(t, []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
	}, b.Schedule())
	assert.Equal(t, 250*time.Millisecond, b.Delay(-1))
}

func TestBackoffCapsShift(t *testing.T) {
	b := sessions.Backoff{Base: time.Nanosecond}
	assert.Equal(t, b.Delay(30), b.Delay(64))
	assert.Positive(t, b.Delay(64))
	assert.Empty(t, b.Schedule())
}
