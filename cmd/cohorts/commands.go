package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/httpapi"
	"github.com/poiesic/cohorts/ingestion"
	"github.com/poiesic/cohorts/reindex"
	"github.com/urfave/cli/v2"
)

func reconcileCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one batch file is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("pool-size") {
		cfg.Ingestion.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("classify-timeout") {
		cfg.Ingestion.ClassifyTimeout = c.Duration("classify-timeout")
	}
	if c.IsSet("classify-attempts") {
		cfg.Ingestion.ClassifyAttempts = c.Int("classify-attempts")
	}
	if c.IsSet("cache-ttl") {
		cfg.Ingestion.CohortCacheTTL = c.Duration("cache-ttl")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errs []error
	for _, path := range c.Args().Slice() {
		report, err := pipeline.ReconcileFile(ctx, path)
		if report != nil {
			printReport(c.App.Writer, path, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func printReport(w io.Writer, path string, r *core.BatchReport) {
	fmt.Fprintf(w, "%s: received=%d suppressed=%d interests=%d inserted=%d updated=%d failed=%d classifier_failures=%d elapsed=%s\n",
		path, r.Received, r.Suppressed, r.DistinctInterests, r.Inserted(), r.Updated(), r.Failed(),
		r.ClassifierFailures, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func similarCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	result, err := searcher.FindSimilar(c.Context, core.SimilarityQuery{
		Email:  c.String("email"),
		Cookie: c.String("cookie"),
		Cohort: c.String("cohort"),
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, result)
}

func lookupCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	profile, err := searcher.Lookup(c.Context, c.String("email"), c.String("cookie"))
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(profile.Fields))
	for name, value := range profile.Fields {
		fields[name] = value.Any()
	}
	return printJSON(c.App.Writer, map[string]any{
		"email":      profile.Email,
		"cookie":     profile.Cookie,
		"interests":  profile.Interests,
		"cohort":     profile.Cohorts,
		"created_at": profile.CreatedAt,
		"fields":     fields,
	})
}

func runsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RunRepository().Runs(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read runs: %w", err)
	}
	for _, run := range runs {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\treceived=%d suppressed=%d inserted=%d updated=%d failed=%d\n",
			run.FinishedAt.Format(time.RFC3339), run.Source, run.RunID,
			run.Received, run.Suppressed, run.Inserted, run.Updated, run.Failed)
	}
	return nil
}

func embedCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one embedding file is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errs []error
	for _, path := range c.Args().Slice() {
		embeddings, err := readEmbeddingFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		report, err := db.ImportEmbeddings(ctx, embeddings)
		fmt.Fprintf(c.App.Writer, "%s: stored=%d missing=%d failed=%d\n",
			path, report.Stored, report.Missing, report.Failed)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func readEmbeddingFile(path string) ([]*ingestion.Embedding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingestion.ReadEmbeddings(f)
}

func reindexCommand(c *cli.Context) error {
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reindexer, err := db.NewReindexer(&reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("failed to create reindexer: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := reindexer.Run(ctx)
	if err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "indexed=%d skipped=%d elapsed=%s\n",
		stats.Indexed, stats.Skipped, stats.Elapsed.Round(time.Millisecond))
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.HTTP.Addr = c.String("addr")
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}
	server, err := httpapi.NewServer(searcher, nil, httpapi.Options{
		Addr:            cfg.HTTP.Addr,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
