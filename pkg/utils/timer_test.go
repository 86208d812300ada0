package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer_LapAndTotal(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	lap := timer.Lap()
	assert.GreaterOrEqual(t, lap, 5*time.Millisecond)

	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Total(), lap)
	assert.GreaterOrEqual(t, timer.Lap(), time.Duration(0))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.500s", FormatDuration(1500*time.Millisecond))
}
