package probe

import (
	"context"
	"fmt"
)

// runWorker drives the read-modify-write loop for one child id.
//
// The child's successor version is computed once up front: the child
// partition belongs to this worker alone and cannot change underneath
// it. Only the parent, the shared contention point, is re-read on each
// attempt. The parent record is first in the transaction so the store's
// cancellation reasons put the contended item first.
func (p *Probe) runWorker(ctx context.Context, childID string) error {
	child, err := p.Latest(ctx, childID)
	if err != nil {
		return err
	}
	childNext := child.Next(ActionParent)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		parent, err := p.Latest(ctx, ParentID)
		if err != nil {
			return err
		}
		parentNext := parent.Next(childID)

		applied, err := p.Commit(ctx, parentNext, childNext)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		// Lost the race for the parent slot; re-read and go again.
		if p.config.RetryLimit > 0 && attempt >= p.config.RetryLimit {
			return fmt.Errorf("readprobe: worker %s gave up after %d contended attempts", childID, attempt)
		}
	}
}
