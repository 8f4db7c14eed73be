// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Classifier and
// ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	classifier := mock.NewMockClassifier().WithAnswers(map[string]core.Cohort{
//	    "Lionel Messi": core.CohortSports,
//	})
//	cohort, err := classifier.Classify(ctx, "Lionel Messi")
//
//	// Check call counts
//	count := classifier.CallsFor("Lionel Messi")
//
// Without a custom function the classifier answers the default few-shot
// examples and unknown for everything else.
package mock
