package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor multiplies every timeout produced by [ScaleMs].
// It is read from the KZMAPVOTE_TEST_TIME_FACTOR environment variable,
// so a slow CI machine can be given more headroom without editing tests.
var TimeFactor ScaledDuration = 1

func init() {
	f := os.Getenv("KZMAPVOTE_TEST_TIME_FACTOR")
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf(
			"failed to parse KZMAPVOTE_TEST_TIME_FACTOR (%q) into an integer: %w",
			f, err,
		))
	}

	if n <= 0 {
		panic(fmt.Errorf("KZMAPVOTE_TEST_TIME_FACTOR must be positive; got %d", n))
	}

	TimeFactor = ScaledDuration(n)
}

// ScaledDuration is a duration already multiplied by [TimeFactor].
type ScaledDuration time.Duration

// ScaleMs returns ms milliseconds multiplied by [TimeFactor].
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}

// Sleep sleeps for the scaled duration.
func Sleep(dur ScaledDuration) {
	time.Sleep(time.Duration(dur))
}
