package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/core"
)

// MockClassifier is a test double for ai.Classifier.
// It is safe for concurrent use.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, interest string) (core.Cohort, error)

	mu    sync.Mutex
	calls map[string]int
	total int
}

// NewMockClassifier creates a classifier that matches interests against
// the few-shot examples and answers unknown otherwise.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{calls: make(map[string]int)}
}

// WithClassifyFunc sets a custom classify function.
func (m *MockClassifier) WithClassifyFunc(fn func(ctx context.Context, interest string) (core.Cohort, error)) *MockClassifier {
	m.ClassifyFunc = fn
	return m
}

// WithAnswers makes the classifier answer from a fixed table, falling back
// to unknown.
func (m *MockClassifier) WithAnswers(answers map[string]core.Cohort) *MockClassifier {
	return m.WithClassifyFunc(func(_ context.Context, interest string) (core.Cohort, error) {
		if c, ok := answers[interest]; ok {
			return c, nil
		}
		return core.CohortUnknown, nil
	})
}

// Classify implements ai.Classifier.
func (m *MockClassifier) Classify(ctx context.Context, interest string) (core.Cohort, error) {
	m.mu.Lock()
	m.calls[interest]++
	m.total++
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, interest)
	}
	if err := ctx.Err(); err != nil {
		return core.CohortUnknown, err
	}
	for _, ex := range ai.DefaultExamples {
		if strings.EqualFold(ex.Interest, interest) {
			return ex.Cohort, nil
		}
	}
	return core.CohortUnknown, nil
}

// CallCount returns the number of Classify calls.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// CallsFor returns the number of Classify calls made for interest.
func (m *MockClassifier) CallsFor(interest string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[interest]
}

// Reset clears the call counts.
func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.total = 0
}
