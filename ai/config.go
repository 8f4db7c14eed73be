// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// ClassifierHost is the base URL for the classification service API.
	// Example: "https://api.openai.com/v1" or "http://localhost:11434/v1"
	ClassifierHost string

	// ClassifierModel is the model identifier used to classify interests.
	// Example: "gpt-4", "qwen2.5:3b"
	ClassifierModel string

	// Token is the API key sent to the classification service.
	// Local OpenAI-compatible servers usually need none.
	Token string

	// Examples are few-shot examples included in every prompt.
	// Default: DefaultExamples
	Examples []Example
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithClassifierHost sets the classifier service host URL.
func WithClassifierHost(host string) ConfigOption {
	return func(c *Config) {
		c.ClassifierHost = host
	}
}

// WithClassifierModel sets the classifier model identifier.
func WithClassifierModel(model string) ConfigOption {
	return func(c *Config) {
		c.ClassifierModel = model
	}
}

// WithToken sets the API key.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithExamples replaces the few-shot examples.
func WithExamples(examples ...Example) ConfigOption {
	return func(c *Config) {
		c.Examples = examples
	}
}

// DefaultConfig returns a Config that talks to the OpenAI API.
func DefaultConfig() *Config {
	return &Config{
		ClassifierHost:  "https://api.openai.com/v1",
		ClassifierModel: "gpt-4",
		Examples:        DefaultExamples,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithClassifierHost("http://localhost:11434"),
//	    WithClassifierModel("qwen2.5:3b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.ClassifierHost != "" && !strings.HasSuffix(c.ClassifierHost, "/v1") {
		c.ClassifierHost = strings.TrimSuffix(c.ClassifierHost, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.ClassifierHost == "" {
		return errors.New("ai config: ClassifierHost is required")
	}
	if c.ClassifierModel == "" {
		return errors.New("ai config: ClassifierModel is required")
	}
	for _, ex := range c.Examples {
		if strings.TrimSpace(ex.Interest) == "" || !ex.Cohort.IsValid() {
			return errors.New("ai config: examples need an interest and a valid cohort")
		}
	}
	return nil
}
