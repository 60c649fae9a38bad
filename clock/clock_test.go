package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	f := NewFake()
	start := f.Now()

	f.Sleep(130 * time.Microsecond)
	f.Advance(time.Second)
	f.Sleep(2 * time.Millisecond)

	require.Equal(t, time.Second+2*time.Millisecond+130*time.Microsecond, f.Now().Sub(start))
	require.Equal(t, []time.Duration{130 * time.Microsecond, 2 * time.Millisecond}, f.Sleeps())

	f.ResetSleeps()
	require.Empty(t, f.Sleeps())
}

func TestSystem(t *testing.T) {
	before := System.Now()
	System.Sleep(time.Millisecond)
	require.True(t, System.Now().Sub(before) >= time.Millisecond)
}
