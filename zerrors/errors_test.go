package zerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrIOError, ErrNoSpace, ErrBusy, ErrNotSupported, ErrCorruption, ErrShutdown}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "sentinel %v should not match sentinel %v", a, b)
		}
	}
}

func TestIOError_MatchesSentinelViaIs(t *testing.T) {
	err := &IOError{ZoneID: 7, Err: errors.New("write failed")}
	require.True(t, errors.Is(err, ErrIOError))
	assert.Contains(t, err.Error(), "zone 7")
	assert.Contains(t, err.Error(), "write failed")
}

func TestIOError_WrappedByFmtErrorfStillMatches(t *testing.T) {
	inner := &IOError{ZoneID: 3, Err: errors.New("device gone")}
	wrapped := fmt.Errorf("appending extent: %w", inner)
	require.True(t, errors.Is(wrapped, ErrIOError))
}
