package scheduler

import (
	"context"
	"time"

	"github.com/aristath/oracle-portfolio/internal/modules/snapshots"
)

// SnapshotCreator takes registry snapshots.
// Satisfied by snapshots.Service.
type SnapshotCreator interface {
	Create(ctx context.Context, reason string) (*snapshots.Snapshot, error)
}

// WizardExpirer closes idle wizard sessions.
// Satisfied by plugins.Wizards.
type WizardExpirer interface {
	Expire(maxIdle time.Duration) int
}
