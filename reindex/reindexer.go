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

package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/vectorindex"
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the number of profiles added between context checks
	BatchSize int

	// ReportInterval is how often to report progress (number of profiles)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
	}
}

// ProfileSource reads every stored profile.
type ProfileSource interface {
	Snapshot(ctx context.Context) ([]*core.Profile, error)
}

// Stats summarizes a reindex run.
type Stats struct {
	Indexed int           // Profiles added to the index
	Skipped int           // Profiles without a usable embedding
	Elapsed time.Duration // Wall time of the run
}

// Reindexer rebuilds a vector index from the stored profiles.
type Reindexer struct {
	profiles ProfileSource
	index    vectorindex.Index
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(profiles ProfileSource, index vectorindex.Index, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		profiles: profiles,
		index:    index,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reindexer"),
	}
}

// Run empties the index, adds every profile that has embeddings and saves
// the result. Profiles whose vector is zero, non-finite or of a different
// dimension than the first indexed one are skipped.
func (r *Reindexer) Run(ctx context.Context) (*Stats, error) {
	profiles, err := r.profiles.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	if err := r.index.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset index: %w", err)
	}

	stats := &Stats{}
	if len(profiles) == 0 {
		fmt.Fprintf(r.progress, "No profiles found in database (0 profiles)\n")
		return stats, r.index.Save(ctx)
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d profiles (batch size: %d)\n",
		len(profiles), r.config.BatchSize)

	line := newProgressLine(r.progress, len(profiles), r.config.ReportInterval)
	line.begin()

	for start := 0; start < len(profiles); start += r.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+r.config.BatchSize, len(profiles))
		for _, profile := range profiles[start:end] {
			if !usable(profile.Embeddings) {
				stats.Skipped++
				continue
			}
			err := r.index.Add(ctx, profile.Id, profile.Embeddings)
			if errors.Is(err, vectorindex.ErrDimensionMismatch) {
				r.logger.Warn("skipping profile", "id", profile.Id, "err", err)
				stats.Skipped++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to index profile %d: %w", profile.Id, err)
			}
			stats.Indexed++
		}
		line.update(stats)
	}

	stats.Elapsed = line.end(stats)

	if err := r.index.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	fmt.Fprintf(r.progress, "Reindex complete. Indexed %d profiles, skipped %d, in %v\n",
		stats.Indexed, stats.Skipped, stats.Elapsed.Round(time.Millisecond))
	r.logger.Info("reindex complete", "indexed", stats.Indexed, "skipped", stats.Skipped, "elapsed", stats.Elapsed)

	return stats, nil
}

// usable reports whether a vector has a defined cosine similarity.
func usable(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	var magnitude float64
	for _, val := range v {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		magnitude += f * f
	}
	return magnitude > 0
}
