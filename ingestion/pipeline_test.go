package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/cohorts/ai/mock"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAnswers = map[string]core.Cohort{
	"Bitcoin":    core.CohortFinance,
	"Tom Brady":  core.CohortSports,
	"Nike shoes": core.CohortFashion,
	"Chess":      core.CohortEntertainment,
}

type pipelineFixture struct {
	repos      *badger.MemoryRepositories
	classifier *mock.MockClassifier
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T, opts ...Option) *pipelineFixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	classifier := mock.NewMockClassifier().WithAnswers(testAnswers)
	opts = append([]Option{WithPoolSize(4), WithRunLedger(repos.Runs)}, opts...)
	pipeline, err := NewPipeline(repos.Profiles, mock.NewMockProviderWithClassifier(classifier), opts...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return &pipelineFixture{repos: repos, classifier: classifier, pipeline: pipeline}
}

func (f *pipelineFixture) seed(t *testing.T, profiles ...*core.Profile) {
	t.Helper()
	result, err := f.repos.Profiles.InsertProfiles(context.Background(), profiles...)
	require.NoError(t, err)
	require.NoError(t, result.Err())
}

func (f *pipelineFixture) snapshot(t *testing.T) []*core.Profile {
	t.Helper()
	profiles, err := f.repos.Profiles.Snapshot(context.Background())
	require.NoError(t, err)
	return profiles
}

func record(email, cookie, interests string) *core.Record {
	r := &core.Record{Email: email, Cookie: cookie}
	if interests != "" {
		r.Interests = core.String(interests)
	}
	return r
}

func TestNewPipeline_Validation(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	_, err = NewPipeline(nil, mock.NewMockProvider())
	assert.ErrorIs(t, err, ErrProfileRepositoryRequired)

	_, err = NewPipeline(repos.Profiles, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
}

func TestReconcile_InsertsNewProfiles(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	createdAt := core.String("2024-03-01T10:00:00Z")
	r := record("a@example.com", "c1", "Bitcoin | Tom Brady")
	r.CreatedAt = createdAt
	r.Fields = map[string]core.Value{"city": core.String("Paris"), "age": core.Null()}

	report, err := f.pipeline.Reconcile(ctx, "crm.csv", []*core.Record{r, record("", "c2", "")})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Received)
	assert.Equal(t, 2, report.Inserted())
	assert.Zero(t, report.Updated())
	assert.NotEmpty(t, report.RunID)

	stored, err := f.repos.Profiles.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Bitcoin", "Tom Brady"}, stored.Interests)
	assert.ElementsMatch(t, []core.Cohort{core.CohortFinance, core.CohortSports}, stored.Cohorts)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), stored.CreatedAt)
	assert.Equal(t, core.String("Paris"), stored.Fields["city"])
	assert.NotContains(t, stored.Fields, "age")

	cookieOnly, err := f.repos.Profiles.FindByCookie(ctx, "c2")
	require.NoError(t, err)
	assert.Nil(t, cookieOnly.Interests)
	assert.Nil(t, cookieOnly.Cohorts)

	run, err := f.repos.Runs.LastRun(ctx, "crm.csv")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, report.RunID, run.RunID)
	assert.Equal(t, 2, run.Inserted)
}

func TestReconcile_ClassifiesEachInterestOnce(t *testing.T) {
	f := newPipelineFixture(t)

	records := []*core.Record{
		record("a@example.com", "", "Bitcoin|Chess"),
		record("b@example.com", "", "Bitcoin"),
		record("c@example.com", "", "bitcoin | Bitcoin"),
	}
	report, err := f.pipeline.Reconcile(context.Background(), "", records)
	require.NoError(t, err)

	assert.Equal(t, 1, f.classifier.CallsFor("Bitcoin"))
	assert.Equal(t, 1, f.classifier.CallsFor("Chess"))
	assert.Equal(t, 1, f.classifier.CallsFor("bitcoin"))
	assert.Equal(t, 3, f.classifier.CallCount())
	assert.Equal(t, 3, report.DistinctInterests)
}

func TestReconcile_SuppressesKnownCookies(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seed(t, &core.Profile{Email: "old@example.com", Cookie: "c1", Interests: []string{"Chess"}})

	report, err := f.pipeline.Reconcile(ctx, "", []*core.Record{
		record("new@example.com", "c1", "Bitcoin"),
		record("old@example.com", "c1", "Tom Brady"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Suppressed)
	assert.Zero(t, report.Inserted())
	assert.Zero(t, report.Updated())
	assert.Zero(t, f.classifier.CallCount())

	profiles := f.snapshot(t)
	require.Len(t, profiles, 1)
	assert.Equal(t, []string{"Chess"}, profiles[0].Interests)

	_, err = f.repos.Profiles.FindByEmail(ctx, "new@example.com")
	assert.Error(t, err)
}

func TestReconcile_NoEmailMatchesIsSuccess(t *testing.T) {
	f := newPipelineFixture(t)
	f.seed(t, &core.Profile{Email: "old@example.com", Cookie: "c1"})

	report, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("new@example.com", "c2", "Chess"),
	})
	require.NoError(t, err)
	assert.Zero(t, report.Updated())
	assert.Empty(t, report.Updates.Outcomes)
	assert.Equal(t, 1, report.Inserted())
	assert.Len(t, f.snapshot(t), 2)
}

func TestReconcile_MergesExistingProfiles(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	originalCreated := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	f.seed(t, &core.Profile{
		Email:     "a@example.com",
		Cookie:    "c1",
		Interests: []string{"Chess"},
		Cohorts:   []core.Cohort{core.CohortEntertainment},
		CreatedAt: originalCreated,
		Fields: map[string]core.Value{
			"city": core.String("Paris"),
			"age":  core.Number(30),
		},
	})
	existing, err := f.repos.Profiles.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, f.repos.Profiles.SetEmbeddings(ctx, existing.Id, []float32{1, 0}))

	incoming := record("a@example.com", "", "Bitcoin|Chess")
	incoming.CreatedAt = core.String("2025-01-01")
	incoming.Fields = map[string]core.Value{
		"city": core.String("Lyon"),
		"age":  core.Null(),
	}

	report, err := f.pipeline.Reconcile(ctx, "", []*core.Record{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated())
	assert.Zero(t, report.Inserted())

	merged, err := f.repos.Profiles.GetProfile(ctx, existing.Id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Chess", "Bitcoin"}, merged.Interests)
	assert.ElementsMatch(t, []core.Cohort{core.CohortEntertainment, core.CohortFinance}, merged.Cohorts)
	assert.Equal(t, originalCreated, merged.CreatedAt)
	assert.Equal(t, "c1", merged.Cookie)
	assert.Equal(t, core.String("Lyon"), merged.Fields["city"])
	assert.Equal(t, core.Number(30), merged.Fields["age"])
	assert.Equal(t, []float32{1, 0}, merged.Embeddings)
}

func TestReconcile_FoldsSameIdentityWithinBatch(t *testing.T) {
	f := newPipelineFixture(t)

	report, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("a@example.com", "", "Bitcoin"),
		record("a@example.com", "c9", "Tom Brady"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted())

	profiles := f.snapshot(t)
	require.Len(t, profiles, 1)
	assert.Equal(t, "c9", profiles[0].Cookie)
	assert.ElementsMatch(t, []string{"Bitcoin", "Tom Brady"}, profiles[0].Interests)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seed(t, &core.Profile{Email: "old@example.com", Interests: []string{"Chess"}})

	batch := func() []*core.Record {
		return []*core.Record{
			record("old@example.com", "", "Bitcoin"),
			record("new@example.com", "c1", "Nike shoes"),
			record("", "c2", "Tom Brady"),
			record("plain@example.com", "", ""),
		}
	}

	_, err := f.pipeline.Reconcile(ctx, "batch.json", batch())
	require.NoError(t, err)
	once := f.snapshot(t)

	_, err = f.pipeline.Reconcile(ctx, "batch.json", batch())
	require.NoError(t, err)
	twice := f.snapshot(t)

	assert.Equal(t, once, twice)
}

func TestReconcile_ClassifierFailuresDegrade(t *testing.T) {
	f := newPipelineFixture(t)
	f.classifier.WithClassifyFunc(func(_ context.Context, interest string) (core.Cohort, error) {
		if interest == "Bitcoin" {
			return core.CohortUnknown, errors.New("rate limited")
		}
		return testAnswers[interest], nil
	})

	report, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("a@example.com", "", "Bitcoin|Chess"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClassifierFailures)

	profiles := f.snapshot(t)
	require.Len(t, profiles, 1)
	assert.ElementsMatch(t, []core.Cohort{core.CohortUnknown, core.CohortEntertainment}, profiles[0].Cohorts)
}

func TestReconcile_ClassifierTimeout(t *testing.T) {
	f := newPipelineFixture(t, WithClassifyTimeout(20*time.Millisecond))
	f.classifier.WithClassifyFunc(func(ctx context.Context, _ string) (core.Cohort, error) {
		<-ctx.Done()
		return core.CohortUnknown, ctx.Err()
	})

	report, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("a@example.com", "", "Bitcoin"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClassifierFailures)
	assert.Equal(t, 1, report.Inserted())
}

func TestReconcile_CohortCacheAcrossRuns(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	classifier := mock.NewMockClassifier().WithAnswers(testAnswers)
	pipeline, err := NewPipeline(repos.Profiles, mock.NewMockProviderWithClassifier(classifier),
		WithCohortCache(repos.Cohorts), WithCohortCacheTTL(time.Hour))
	require.NoError(t, err)
	defer pipeline.Release()

	ctx := context.Background()
	_, err = pipeline.Reconcile(ctx, "", []*core.Record{record("a@example.com", "", "Bitcoin|Chess")})
	require.NoError(t, err)
	assert.Equal(t, 2, classifier.CallCount())

	_, err = pipeline.Reconcile(ctx, "", []*core.Record{record("b@example.com", "", "Bitcoin|Tom Brady")})
	require.NoError(t, err)
	assert.Equal(t, 3, classifier.CallCount())
	assert.Equal(t, 1, classifier.CallsFor("Bitcoin"))

	cached, err := repos.Cohorts.GetCohorts(ctx, "Bitcoin", "Tom Brady")
	require.NoError(t, err)
	assert.Equal(t, core.CohortFinance, cached["Bitcoin"])
}

func TestReconcile_FailedClassificationsAreNotCached(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	classifier := mock.NewMockClassifier().WithClassifyFunc(func(context.Context, string) (core.Cohort, error) {
		return core.CohortUnknown, errors.New("down")
	})
	pipeline, err := NewPipeline(repos.Profiles, mock.NewMockProviderWithClassifier(classifier),
		WithCohortCache(repos.Cohorts), WithCohortCacheTTL(time.Hour))
	require.NoError(t, err)
	defer pipeline.Release()

	ctx := context.Background()
	_, err = pipeline.Reconcile(ctx, "", []*core.Record{record("a@example.com", "", "Bitcoin")})
	require.NoError(t, err)

	cached, err := repos.Cohorts.GetCohorts(ctx, "Bitcoin")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestReconcile_RejectsRecordsWithoutIdentity(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("a@example.com", "", ""),
		{Line: 2, Interests: core.String("Bitcoin")},
	})
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, core.ErrMissingIdentity)
	assert.Empty(t, f.snapshot(t))
}

func TestReconcile_ReportsPartialPersistence(t *testing.T) {
	f := newPipelineFixture(t)
	f.seed(t, &core.Profile{Email: "owner@example.com"})

	// Two new identities claim the same cookie; only the first can own it.
	report, err := f.pipeline.Reconcile(context.Background(), "", []*core.Record{
		record("a@example.com", "shared", ""),
		record("b@example.com", "shared", ""),
		record("owner@example.com", "", "Chess"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Inserted())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Updated())
}

func TestReconcile_Cancelled(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Reconcile(ctx, "", []*core.Record{record("a@example.com", "", "Bitcoin")})
	require.Error(t, err)
	assert.Empty(t, f.snapshot(t))
}

func TestReconcileFile(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "crm_2025-01-01.csv")
	content := "email,cookie,interests,created_at,city\n" +
		"a@example.com,c1,Bitcoin|Chess,2024-01-02,Paris\n" +
		"b@example.com,,Nike shoes,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	report, err := f.pipeline.ReconcileFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "crm_2025-01-01.csv", report.Source)
	assert.Equal(t, 2, report.Inserted())

	runs, err := f.repos.Runs.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "crm_2025-01-01.csv", runs[0].Source)
}

func TestReconcileFile_LoadFailures(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.ReconcileFile(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = f.pipeline.ReconcileFile(ctx, "batch.parquet")
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReconcileReader_JSON(t *testing.T) {
	f := newPipelineFixture(t)

	input := `{"data": {"email": "a@example.com", "interests": ["Bitcoin", "Chess"], "location": {"city": "Oslo"}}}`
	report, err := f.pipeline.ReconcileReader(context.Background(), "upload.json", FormatJSON, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted())

	profiles := f.snapshot(t)
	require.Len(t, profiles, 1)
	assert.Equal(t, core.String("Oslo"), profiles[0].Fields["city"])
	assert.ElementsMatch(t, []core.Cohort{core.CohortFinance, core.CohortEntertainment}, profiles[0].Cohorts)
}

func TestReconcileReader_NaNWordIsStable(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	input := "email,first_name\nn@example.com,Nan\n"

	_, err := f.pipeline.ReconcileReader(ctx, "first.csv", FormatCSV, strings.NewReader(input))
	require.NoError(t, err)
	once := f.snapshot(t)
	require.Len(t, once, 1)
	assert.Equal(t, core.String("Nan"), once[0].Fields["first_name"])

	report, err := f.pipeline.ReconcileReader(ctx, "second.csv", FormatCSV, strings.NewReader(input))
	require.NoError(t, err)
	require.NoError(t, report.Err())

	twice := f.snapshot(t)
	require.Len(t, twice, 1)
	assert.Equal(t, once[0].UpdatedAt, twice[0].UpdatedAt)
}
