// Package transfer models the bulk copy between the host and fast tiers as
// a synchronous operation that reports bytes moved and elapsed time.
//
// Outside of an accelerator environment both tiers are plain memory pools,
// so the copy degenerates to a slice copy with the same contract: when Copy
// returns, the destination is guaranteed to hold the payload.
package transfer

import (
	"context"
	"time"

	"github.com/hupe1980/chunkcache/resource"
)

const elemSize = 4 // float32

// Copier moves whole chunk payloads between tiers, optionally throttled by
// a resource controller's IO limit.
type Copier struct {
	rc *resource.Controller
}

// New creates a Copier. rc may be nil for unthrottled transfers.
func New(rc *resource.Controller) *Copier {
	return &Copier{rc: rc}
}

// Copy moves one chunk payload from src to dst and returns the number of
// bytes moved and the elapsed time. The rate limiter is consulted before the
// copy starts; once the copy begins it runs to completion.
func (c *Copier) Copy(ctx context.Context, dst, src []float32) (int64, time.Duration, error) {
	bytes := int64(len(src)) * elemSize

	if err := c.rc.AcquireIO(ctx, int(bytes)); err != nil {
		return 0, 0, err
	}

	start := time.Now()
	copy(dst, src)
	return bytes, time.Since(start), nil
}
