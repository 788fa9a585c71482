package directory

import (
	"context"
	"time"

	"veilchat/internal/domain"
)

// PollSignaling queries the pending-signaling queue for username every
// interval and hands each item to fn, in order. It returns when ctx is done.
// A single failed poll is logged and retried on the next tick; it is not
// surfaced.
func (c *Client) PollSignaling(ctx context.Context, username string, interval time.Duration, fn func(domain.SignalingMessage)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sigs, err := c.PendingSignals(ctx, username)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.WithError(err).WithField("user", username).Warn("signaling poll failed")
				continue
			}
			for _, sig := range sigs {
				fn(sig)
			}
		}
	}
}
