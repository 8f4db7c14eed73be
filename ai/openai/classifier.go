package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Classifier implements ai.Classifier using an OpenAI-compatible chat model.
type Classifier struct {
	client   *openai.LLM
	examples []ai.Example
	logger   *slog.Logger
}

// NewClassifier creates a new interest classifier.
// The config is validated and normalized before use.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newClassifier(config)
}

// newClassifier is the internal constructor that returns the concrete type.
// Used by Provider to avoid type assertions.
func newClassifier(config *ai.Config) (*Classifier, error) {
	token := config.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(token),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}
	return &Classifier{
		client:   client,
		examples: config.Examples,
		logger:   slog.Default().With("component", "openai-classifier", "model", config.ClassifierModel),
	}, nil
}

// Classify asks the model for the cohort of interest.
func (c *Classifier) Classify(ctx context.Context, interest string) (core.Cohort, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: buildPrompt(interest, c.examples)}},
		},
	}

	resp, err := c.client.GenerateContent(ctx, messages, llms.WithTemperature(0.0))
	if err != nil {
		return core.CohortUnknown, fmt.Errorf("classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.CohortUnknown, fmt.Errorf("classification failed: empty response")
	}

	cohort := parseAnswer(resp.Choices[0].Content)
	c.logger.Debug("classified interest", "interest", interest, "cohort", cohort)
	return cohort, nil
}
