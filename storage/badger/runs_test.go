package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/cohorts/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepository(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	none, err := repos.Runs.LastRun(ctx, "a.csv")
	require.NoError(t, err)
	assert.Nil(t, none)

	finished := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repos.Runs.SaveRun(ctx, &core.RunRecord{Source: "a.csv", RunID: "1", Inserted: 2, FinishedAt: finished}))
	require.NoError(t, repos.Runs.SaveRun(ctx, &core.RunRecord{Source: "a.csv", RunID: "2", Updated: 2, FinishedAt: finished}))
	require.NoError(t, repos.Runs.SaveRun(ctx, &core.RunRecord{Source: "b.json", RunID: "3"}))

	last, err := repos.Runs.LastRun(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "2", last.RunID)
	assert.Equal(t, 2, last.Updated)
	assert.True(t, finished.Equal(last.FinishedAt))

	runs, err := repos.Runs.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a.csv", runs[0].Source)
	assert.Equal(t, "b.json", runs[1].Source)

	assert.Error(t, repos.Runs.SaveRun(ctx, &core.RunRecord{}))
}
