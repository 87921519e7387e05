package shred

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WaitForRange returns immediately once seq is already within the window.
func TestWaitForRangeReturnsImmediatelyWhenAlreadyInRange(t *testing.T) {
	s := New(DefaultInitialBitmaps, DefaultMaxBitmaps, DefaultResizeThreshold)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitForRange(ctx, 0))
}

// WaitForRange reports ctx cancellation for a sequence number that never
// enters the window, instead of retrying forever.
func TestWaitForRangeStopsOnContextCancellation(t *testing.T) {
	s := New(DefaultInitialBitmaps, DefaultMaxBitmaps, DefaultResizeThreshold)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	farOutOfRange := SequenceNumber(DefaultMaxBitmaps * bitsPerBitmap * 1000)
	err := s.WaitForRange(ctx, farOutOfRange)
	require.Error(t, err)
}
