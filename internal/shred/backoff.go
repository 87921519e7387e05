package shred

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// ErrOutOfRange is the error each failed IsInRange attempt reports to the
// backoff policy. WaitForRange returns it when the policy gives up on its own
// (its maximum elapsed time passes); when ctx is cancelled first, WaitForRange
// returns ctx's error instead.
var ErrOutOfRange = fmt.Errorf("shred: sequence number did not enter range before context cancellation")

// WaitForRange blocks a producer until seq is within the current bitmap
// window, retrying IsInRange with exponential backoff. A producer racing
// ahead of a stalled consumer must back off rather than spin, since every
// IsInRange miss means the window has not yet advanced far enough to accept
// seq (spec: "producer must back off when isInRange returns false").
func (s *SequenceShredder) WaitForRange(ctx context.Context, seq SequenceNumber) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	op := func() error {
		if s.IsInRange(seq) {
			return nil
		}
		return ErrOutOfRange
	}
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	return nil
}
