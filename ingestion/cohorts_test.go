package ingestion

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/cohorts/ai/mock"
	"github.com/poiesic/cohorts/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssigner(t *testing.T, classifier *mock.MockClassifier) *cohortAssigner {
	t.Helper()
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return &cohortAssigner{
		classifier: classifier,
		pool:       pool,
		timeout:    time.Second,
		logger:     slog.Default(),
	}
}

func TestCohortAssigner_Assign(t *testing.T) {
	classifier := mock.NewMockClassifier().WithClassifyFunc(func(_ context.Context, interest string) (core.Cohort, error) {
		// Free-form answers are normalized onto the enumeration.
		return core.Cohort(" " + interest + "."), nil
	})
	a := newTestAssigner(t, classifier)

	result, err := a.assign(context.Background(), []string{"sports", "Gardening", "FINANCE"})
	require.NoError(t, err)
	assert.Equal(t, map[string]core.Cohort{
		"sports":    core.CohortSports,
		"Gardening": core.CohortUnknown,
		"FINANCE":   core.CohortFinance,
	}, result.cohorts)
	assert.Zero(t, result.failures)
}

func TestCohortAssigner_Empty(t *testing.T) {
	classifier := mock.NewMockClassifier()
	a := newTestAssigner(t, classifier)

	result, err := a.assign(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.cohorts)
	assert.Zero(t, classifier.CallCount())
}

func TestCohortAssigner_ClosedPool(t *testing.T) {
	a := newTestAssigner(t, mock.NewMockClassifier())
	a.pool.Release()

	_, err := a.assign(context.Background(), []string{"Bitcoin"})
	assert.ErrorIs(t, err, ants.ErrPoolClosed)
}
