package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPruner struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *stubPruner) PruneSuggestions(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func TestRetentionCleanupJob_PrunesBeforeCutoff(t *testing.T) {
	pruner := &stubPruner{deleted: 12}
	job := NewRetentionCleanupJob(pruner, 30*24*time.Hour)
	job.now = func() time.Time { return schedulerNow }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, schedulerNow.Add(-30*24*time.Hour), pruner.cutoffs[0])
	assert.Equal(t, "suggestion_retention", job.Name())
}

func TestRetentionCleanupJob_Failure(t *testing.T) {
	pruner := &stubPruner{err: errors.New("database is locked")}
	job := NewRetentionCleanupJob(pruner, time.Hour)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRetentionCleanupJob_Disabled(t *testing.T) {
	pruner := &stubPruner{}
	require.NoError(t, NewRetentionCleanupJob(pruner, 0).Run(context.Background()))
	require.NoError(t, NewRetentionCleanupJob(nil, time.Hour).Run(context.Background()))
	assert.Empty(t, pruner.cutoffs)
}
