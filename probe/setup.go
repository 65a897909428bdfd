package probe

import (
	"context"
	"fmt"
)

// Seed writes version 0 of the parent and every child. Seeding goes
// through the same conditional writer as the run itself; a vacancy
// condition failing here means the table already holds probe records,
// which is fatal rather than retryable.
func (p *Probe) Seed(ctx context.Context) error {
	records := make([]Record, 0, p.config.Children+1)
	records = append(records, NewRecord(ParentID))
	for n := 0; n < p.config.Children; n++ {
		records = append(records, NewRecord(ChildID(n)))
	}

	for _, r := range records {
		applied, err := p.Commit(ctx, r)
		if err != nil {
			return fmt.Errorf("seed %s: %w", r.ID, err)
		}
		if !applied {
			return fmt.Errorf("seed %s: %w", r.ID, ErrDirtyTable)
		}
	}
	return nil
}
