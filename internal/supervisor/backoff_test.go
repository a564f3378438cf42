package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartDelayDoublesAndSaturates(t *testing.T) {
	d := newRestartDelay(2*time.Second, 8*time.Second)

	assert.Equal(t, 2*time.Second, d.Next())
	assert.Equal(t, 4*time.Second, d.Next())
	assert.Equal(t, 8*time.Second, d.Next())
	assert.Equal(t, 8*time.Second, d.Next())
}

func TestRestartDelayReset(t *testing.T) {
	d := newRestartDelay(2*time.Second, 300*time.Second)
	d.Next()
	d.Next()
	d.Reset()
	assert.Equal(t, 2*time.Second, d.Next())
}

func TestRestartDelayPin(t *testing.T) {
	d := newRestartDelay(2*time.Second, 8*time.Second)
	d.Pin(60 * time.Second)

	assert.Equal(t, 60*time.Second, d.Next())
	// The progression resumes capped at max.
	assert.Equal(t, 8*time.Second, d.Next())
}

func TestRestartDelayZeroMinArmsOneSecond(t *testing.T) {
	d := newRestartDelay(0, 0)
	assert.Equal(t, time.Second, d.Next())
	assert.Equal(t, time.Second, d.Next())
}
