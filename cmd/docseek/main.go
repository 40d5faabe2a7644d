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
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/docseek"
	"github.com/poiesic/docseek/cluster"
	"github.com/poiesic/docseek/config"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/index"
	"github.com/poiesic/docseek/reembed"
	"github.com/poiesic/docseek/search"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docseek",
		Usage: "Index, search and cluster document text",
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
				Usage:   "Path to config.yml",
				Value:   config.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Data directory (overrides data_dir)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (overrides ai.embedding_host)",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name (overrides ai.embedding_model)",
			},
			&cli.BoolFlag{
				Name:  "no-ai",
				Usage: "Run without an embedding provider",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index the text of a document",
				ArgsUsage: "<file|->",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "id", Usage: "Document ID", Required: true},
					&cli.Uint64Flag{Name: "owner", Usage: "Owning user ID", Required: true},
					&cli.Uint64Flag{Name: "folder", Usage: "Folder ID"},
					&cli.StringFlag{Name: "title", Usage: "Document title (defaults to the file name)"},
					&cli.StringFlag{Name: "mime-type", Usage: "MIME type of the source document", Value: "text/plain"},
				},
			},
			{
				Name:      "search",
				Usage:     "Rank documents by term frequency",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of results", Value: search.DefaultLimit},
				},
			},
			{
				Name:      "semantic",
				Usage:     "Search by embedding similarity with lexical fallback",
				ArgsUsage: "<query>",
				Action:    semanticCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "user", Usage: "Searching user ID", Required: true},
					&cli.IntFlag{Name: "page", Usage: "Result page", Value: 1},
					&cli.IntFlag{Name: "page-size", Usage: "Results per page", Value: search.DefaultPageSize},
					&cli.Uint64Flag{Name: "folder", Usage: "Restrict to a folder"},
					&cli.StringFlag{Name: "mime-type", Usage: "Restrict to a MIME type"},
					&cli.StringFlag{Name: "from", Usage: "Earliest creation date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "to", Usage: "Latest creation date (YYYY-MM-DD)"},
					&cli.BoolFlag{Name: "lexical", Usage: "Skip the embedding path"},
				},
			},
			{
				Name:   "cluster",
				Usage:  "Recompute the document clusters of a user",
				Action: clusterCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "user", Usage: "User ID", Required: true},
				},
			},
			{
				Name:   "clusters",
				Usage:  "List the stored clusters of a user",
				Action: clustersCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "user", Usage: "User ID", Required: true},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Generate embeddings for every indexed document",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Regenerate embeddings that are already fresh",
					},
					&cli.BoolFlag{
						Name:  "no-resume",
						Usage: "Ignore the checkpoint of an interrupted run",
					},
				},
			},
			{
				Name:   "share",
				Usage:  "Grant a user access to a document",
				Action: shareCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "doc", Usage: "Document ID", Required: true},
					&cli.Uint64Flag{Name: "user", Usage: "User ID", Required: true},
				},
			},
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if host := c.String("embedding-host"); host != "" {
		cfg.AI.EmbeddingHost = host
	}
	if model := c.String("embedding-model"); model != "" {
		cfg.AI.EmbeddingModel = model
	}
	if c.Bool("no-ai") {
		cfg.AI.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*docseek.Database, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	opts := []docseek.DatabaseOption{docseek.WithLogger(slog.Default())}
	if cfg.AI.Enabled {
		opts = append(opts, docseek.WithAIConfig(&cfg.AI.Config))
	} else {
		opts = append(opts, docseek.WithoutAI())
	}

	db, err := docseek.NewDatabase(cfg.DataDir, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	return query, nil
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file argument is required (use - for stdin)")
	}
	body, err := readSource(c.App.Reader, path)
	if err != nil {
		return err
	}

	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	id := core.ID(c.Uint64("id"))
	title := c.String("title")
	if title == "" {
		title = path
	}
	now := time.Now().UTC()
	meta := &core.DocumentMeta{
		ID:        id,
		OwnerID:   core.ID(c.Uint64("owner")),
		FolderID:  core.ID(c.Uint64("folder")),
		Title:     title,
		MimeType:  c.String("mime-type"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := db.Metadata().GetDocument(ctx, id); err == nil {
		meta.CreatedAt = existing.CreatedAt
	}
	if err := db.Metadata().PutDocument(ctx, meta); err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}

	indexer, err := db.NewIndexer(index.WithPoolSize(cfg.Index.PoolSize))
	if err != nil {
		return err
	}
	defer indexer.Release()

	if err := indexer.IndexDocument(ctx, index.Task{DocumentID: id, Text: body, MimeType: meta.MimeType}); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed document %d (%s)\n", id, title)
	return nil
}

func readSource(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func searchCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	lexical, err := db.NewLexical()
	if err != nil {
		return err
	}
	results, err := lexical.Search(context.Background(), query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printResults(c.App.Writer, results)
	return nil
}

func semanticCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	from, err := parseDate(c.String("from"), false)
	if err != nil {
		return err
	}
	to, err := parseDate(c.String("to"), true)
	if err != nil {
		return err
	}

	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	semantic, err := db.NewSemantic(
		search.WithCandidatePoolSize(cfg.Search.CandidatePool),
		search.WithGenerationRate(rate.Limit(cfg.Search.GenerationRate), cfg.Search.GenerationBurst),
		search.WithAIEnabled(cfg.AI.Enabled),
	)
	if err != nil {
		return err
	}

	resp, err := semantic.Search(context.Background(), search.Options{
		Query:    query,
		Page:     c.Int("page"),
		PageSize: c.Int("page-size"),
		FolderID: core.ID(c.Uint64("folder")),
		From:     from,
		To:       to,
		MimeType: c.String("mime-type"),
		UserID:   core.ID(c.Uint64("user")),
		UseAI:    !c.Bool("lexical"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if resp.Degraded {
		fmt.Fprintln(c.App.ErrWriter, "Embedding provider unavailable, showing lexical results")
	}
	fmt.Fprintf(c.App.Writer, "%s results for %q: page %d, %d total\n", resp.MatchType, resp.Query, resp.Page, resp.Total)
	printResults(c.App.Writer, resp.Results)
	return nil
}

// parseDate reads YYYY-MM-DD. An end date covers its whole day.
func parseDate(value string, end bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func printResults(w io.Writer, results []*core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. [%d] score=%.3f %s\n", i+1, r.DocumentID, r.Score, r.Snippet)
	}
}

func clusterCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []cluster.Option
	if cfg.Cluster.Command != "" {
		external, err := cluster.NewCommandClusterer(cfg.Cluster.Command,
			cluster.WithArgs(cfg.Cluster.Args...),
			cluster.WithMethod(cfg.Cluster.Method),
			cluster.WithMaxClusters(cfg.Cluster.MaxClusters),
			cluster.WithCommandTimeout(cfg.Cluster.Timeout),
			cluster.WithCommandLogger(slog.Default()),
		)
		if err != nil {
			return fmt.Errorf("invalid cluster command: %w", err)
		}
		opts = append(opts, cluster.WithExternalClusterer(external))
	}

	engine, err := db.NewClusterEngine(opts...)
	if err != nil {
		return err
	}
	clusters, err := engine.CreateClusters(context.Background(), core.ID(c.Uint64("user")))
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	printClusters(c.App.Writer, clusters)
	return nil
}

func clustersCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewClusterEngine()
	if err != nil {
		return err
	}
	clusters, err := engine.GetClusters(context.Background(), core.ID(c.Uint64("user")))
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}

	printClusters(c.App.Writer, clusters)
	return nil
}

func printClusters(w io.Writer, clusters []*core.Cluster) {
	if len(clusters) == 0 {
		fmt.Fprintln(w, "No clusters")
		return
	}
	for _, cl := range clusters {
		fmt.Fprintf(w, "%s: %s\n", cl.Name, cl.Description)
		fmt.Fprintf(w, "  id: %s\n", cl.ID)
		fmt.Fprintf(w, "  keywords: %s\n", strings.Join(cl.Keywords, ", "))
		for _, m := range cl.Members {
			fmt.Fprintf(w, "  - %d (%.2f)\n", m.DocumentID, m.Similarity)
		}
	}
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()

	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Force:          c.Bool("force"),
		Resume:         !c.Bool("no-resume"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func shareCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docID := core.ID(c.Uint64("doc"))
	userID := core.ID(c.Uint64("user"))
	if err := db.Metadata().ShareDocument(context.Background(), docID, userID); err != nil {
		return fmt.Errorf("share failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Shared document %d with user %d\n", docID, userID)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

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
