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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/cohorts"
	"github.com/poiesic/cohorts/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cohorts",
		Usage: "Reconcile user profiles, assign interest cohorts and find similar users",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` (default ./.env)",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the profile store and index",
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "Vector search used for similar users (exact, hnsw)",
			},
			&cli.StringFlag{
				Name:  "classifier-host",
				Usage: "OpenAI-compatible classifier host URL",
			},
			&cli.StringFlag{
				Name:  "classifier-model",
				Usage: "Classifier model name",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "reconcile",
				Usage:     "Reconcile CSV or JSON batches into the profile store",
				ArgsUsage: "FILE...",
				Action:    reconcileCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent classifier calls",
					},
					&cli.DurationFlag{
						Name:  "classify-timeout",
						Usage: "Timeout of each classifier call",
					},
					&cli.IntFlag{
						Name:  "classify-attempts",
						Usage: "Attempts per interest before it is filed as unknown",
					},
					&cli.DurationFlag{
						Name:  "cache-ttl",
						Usage: "Keep classifier answers for this long across runs (0 disables)",
					},
				},
			},
			{
				Name:   "similar",
				Usage:  "List the users most similar to one user",
				Action: similarCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "Email of the user"},
					&cli.StringFlag{Name: "cookie", Usage: "Cookie of the user, used when no email is given"},
					&cli.StringFlag{Name: "cohort", Usage: "Only return users in this cohort"},
					&cli.IntFlag{Name: "limit", Usage: "Number of users to return (1-15, default 10)"},
					&cli.IntFlag{Name: "offset", Usage: "Number of users to skip (0-5)"},
				},
			},
			{
				Name:   "lookup",
				Usage:  "Print the stored profile of a user",
				Action: lookupCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "Email of the user"},
					&cli.StringFlag{Name: "cookie", Usage: "Cookie of the user"},
				},
			},
			{
				Name:   "runs",
				Usage:  "List the last reconciliation run of every source",
				Action: runsCommand,
			},
			{
				Name:      "embed",
				Usage:     "Store user embeddings from JSON files",
				ArgsUsage: "FILE...",
				Action:    embedCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the HNSW index from stored embeddings",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of profiles added between cancellation checks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N profiles",
						Value: 100,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve user lookups and similar-user queries over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	return installLogger(c.String("log-level"))
}

// installLogger makes a text logger at levelStr the slog default.
func installLogger(levelStr string) error {
	// Normalize to lowercase
	levelStr = strings.ToLower(levelStr)

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the configuration and applies flag overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}

	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("index") {
		cfg.Index = c.String("index")
	}
	if c.IsSet("classifier-host") {
		cfg.Classifier.Host = c.String("classifier-host")
	}
	if c.IsSet("classifier-model") {
		cfg.Classifier.Model = c.String("classifier-model")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// The flag already installed its logger; the file or environment may
	// still ask for another level.
	if !c.IsSet("log-level") {
		if err := installLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*cohorts.Database, error) {
	db, err := cohorts.OpenDatabase(cfg, cohorts.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
