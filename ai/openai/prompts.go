package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/core"
)

const systemPrompt = "You are an expert in user segmentation."

const classificationPromptTemplate = `Classify the following interest into a user cohort: %s.

Examples:
%s
Respond with just one cohort from: %s.
If it doesn't fit, respond with '%s'.`

// buildPrompt creates the user prompt for a single interest.
func buildPrompt(interest string, examples []ai.Example) string {
	var sb strings.Builder
	for _, ex := range examples {
		fmt.Fprintf(&sb, "- %s -> %s\n", ex.Interest, ex.Cohort)
	}
	labels := make([]string, len(core.Cohorts))
	for i, c := range core.Cohorts {
		labels[i] = string(c)
	}
	return fmt.Sprintf(classificationPromptTemplate,
		interest,
		sb.String(),
		strings.Join(labels, ", "),
		core.CohortUnknown)
}

// parseAnswer maps a model reply onto the cohort enumeration. Models
// sometimes echo the example format ("Bitcoin -> Finance") or add a label
// prefix, so only the text after the last separator of the first
// non-empty line is considered.
func parseAnswer(reply string) core.Cohort {
	var line string
	for l := range strings.Lines(reply) {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if i := strings.LastIndex(line, "->"); i >= 0 {
		line = line[i+2:]
	}
	if i := strings.LastIndex(line, ":"); i >= 0 {
		line = line[i+1:]
	}
	return core.ParseCohort(line)
}
