package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// cohortAssigner classifies the distinct interests of one run.
// Each interest reaches the classifier at most once per call to assign.
type cohortAssigner struct {
	classifier ai.Classifier
	cache      storage.CohortCacheRepository
	cacheTTL   time.Duration
	pool       *ants.Pool
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

// assignment is the outcome of classifying one run's interests.
type assignment struct {
	cohorts  map[string]core.Cohort
	failures int // Interests that degraded to unknown because classification failed
}

// assign classifies interests concurrently on the worker pool and waits for
// every result. Classification errors and timeouts degrade to
// core.CohortUnknown; only a cancelled context or a closed pool fail the call.
func (a *cohortAssigner) assign(ctx context.Context, interests []string) (*assignment, error) {
	result := &assignment{cohorts: make(map[string]core.Cohort, len(interests))}
	if len(interests) == 0 {
		return result, nil
	}

	pending := interests
	if a.cacheEnabled() {
		cached, err := a.cache.GetCohorts(ctx, interests...)
		if err != nil {
			a.logger.Warn("cohort cache read failed, classifying everything", "err", err)
		} else {
			maps.Copy(result.cohorts, cached)
			pending = make([]string, 0, len(interests)-len(cached))
			for _, interest := range interests {
				if _, ok := cached[interest]; !ok {
					pending = append(pending, interest)
				}
			}
			a.logger.Debug("cohort cache lookup", "hits", len(cached), "misses", len(pending))
		}
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		fresh     = make(map[string]core.Cohort, len(pending))
		failed    int
		submitErr error
	)
	for _, interest := range pending {
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			cohort, err := a.classify(ctx, interest)
			mu.Lock()
			defer mu.Unlock()
			result.cohorts[interest] = cohort
			if err != nil {
				failed++
				return
			}
			fresh[interest] = cohort
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("failed to schedule classification: %w", err)
			break
		}
	}
	wg.Wait()

	if submitErr != nil {
		return nil, submitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.failures = failed

	if a.cacheEnabled() && len(fresh) > 0 {
		if err := a.cache.PutCohorts(ctx, fresh, a.cacheTTL); err != nil {
			a.logger.Warn("cohort cache write failed", "err", err)
		}
	}
	return result, nil
}

// classify asks the classifier about one interest. Each attempt is bounded
// by the assigner's timeout; failed attempts are retried with backoff.
func (a *cohortAssigner) classify(ctx context.Context, interest string) (core.Cohort, error) {
	var cohort core.Cohort
	err := retryWithBackoff(ctx, a.logger, a.attempts, a.retryDelay, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		var err error
		cohort, err = a.classifier.Classify(callCtx, interest)
		return err
	})
	if err != nil {
		a.logger.Warn("classification failed, using unknown", "interest", interest, "err", err)
		return core.CohortUnknown, err
	}
	return core.ParseCohort(string(cohort)), nil
}

func (a *cohortAssigner) cacheEnabled() bool {
	return a.cache != nil && a.cacheTTL > 0
}
