package ai

import "github.com/poiesic/cohorts/core"

// Example is a labelled interest shown to the classifier as guidance.
type Example struct {
	Interest string
	Cohort   core.Cohort
}

// DefaultExamples are the few-shot examples sent with every classification.
var DefaultExamples = []Example{
	{Interest: "Tom Brady", Cohort: core.CohortSports},
	{Interest: "Nike shoes", Cohort: core.CohortFashion},
	{Interest: "Bitcoin", Cohort: core.CohortFinance},
}
