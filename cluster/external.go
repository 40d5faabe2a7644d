package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/docseek/core"
)

const (
	// MethodKMeans and MethodDBSCAN are the algorithms the external process accepts.
	MethodKMeans = "kmeans"
	MethodDBSCAN = "dbscan"

	defaultMaxClusters    = 10
	defaultCommandTimeout = 2 * time.Minute
)

// Clusterer computes clusters for a set of documents. The engine keeps only
// members that refer to docs.
type Clusterer interface {
	Cluster(ctx context.Context, docs []Document) ([]*core.Cluster, error)
}

// CommandClusterer runs an external clustering program. The program is
// called as
//
//	<command> [args] --input <file> --output <file> --method <m> --max_clusters <n>
//
// The input file holds a JSON object mapping document IDs to texts. The
// program writes {"clusters": [...]} to the output file.
type CommandClusterer struct {
	command     string
	args        []string
	method      string
	maxClusters int
	timeout     time.Duration
	logger      *slog.Logger
}

var _ Clusterer = (*CommandClusterer)(nil)

// CommandOption configures a CommandClusterer.
type CommandOption func(*CommandClusterer) error

// WithArgs sets arguments placed before the contract flags, such as a
// script path for an interpreter.
func WithArgs(args ...string) CommandOption {
	return func(c *CommandClusterer) error {
		c.args = args
		return nil
	}
}

// WithMethod selects MethodKMeans (default) or MethodDBSCAN.
func WithMethod(method string) CommandOption {
	return func(c *CommandClusterer) error {
		switch method {
		case MethodKMeans, MethodDBSCAN:
			c.method = method
			return nil
		}
		return fmt.Errorf("unknown clustering method %q", method)
	}
}

// WithMaxClusters caps the number of clusters requested. Default is 10.
func WithMaxClusters(n int) CommandOption {
	return func(c *CommandClusterer) error {
		if n <= 0 {
			return fmt.Errorf("max clusters must be positive: %d", n)
		}
		c.maxClusters = n
		return nil
	}
}

// WithCommandTimeout bounds a single run. Default is two minutes.
func WithCommandTimeout(d time.Duration) CommandOption {
	return func(c *CommandClusterer) error {
		if d <= 0 {
			return fmt.Errorf("command timeout must be positive: %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithCommandLogger sets the logger. Default is slog.Default().
func WithCommandLogger(logger *slog.Logger) CommandOption {
	return func(c *CommandClusterer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCommandClusterer creates a clusterer running command.
func NewCommandClusterer(command string, opts ...CommandOption) (*CommandClusterer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrCommandRequired
	}
	c := &CommandClusterer{
		command:     command,
		method:      MethodKMeans,
		maxClusters: defaultMaxClusters,
		timeout:     defaultCommandTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "command-clusterer")
	return c, nil
}

type externalMember struct {
	ID         core.ID `json:"id"`
	Similarity float64 `json:"similarity"`
}

type externalCluster struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Keywords    []string         `json:"keywords"`
	Documents   []externalMember `json:"documents"`
}

type externalOutput struct {
	Clusters *[]externalCluster `json:"clusters"`
}

// Cluster runs the command over docs.
func (c *CommandClusterer) Cluster(ctx context.Context, docs []Document) ([]*core.Cluster, error) {
	dir, err := os.MkdirTemp("", "docseek-cluster-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalClusterer, err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.json")
	output := filepath.Join(dir, "output.json")

	payload := make(map[string]string, len(docs))
	for _, doc := range docs {
		payload[strconv.FormatUint(uint64(doc.ID), 10)] = doc.Text
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalClusterer, err)
	}
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalClusterer, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(slices.Clone(c.args),
		"--input", input,
		"--output", output,
		"--method", c.method,
		"--max_clusters", strconv.Itoa(c.maxClusters),
	)
	cmd := exec.CommandContext(runCtx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", ErrExternalClusterer, c.timeout)
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrExternalClusterer, err, strings.TrimSpace(stderr.String()))
	}

	result, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("%w: reading output: %w", ErrExternalClusterer, err)
	}
	var out externalOutput
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %w", ErrExternalClusterer, err)
	}
	if out.Clusters == nil {
		return nil, fmt.Errorf("%w: malformed output: missing clusters", ErrExternalClusterer)
	}

	clusters := make([]*core.Cluster, 0, len(*out.Clusters))
	for _, ec := range *out.Clusters {
		cl := &core.Cluster{
			ID:          ec.ID,
			Name:        ec.Name,
			Description: ec.Description,
			Keywords:    ec.Keywords,
		}
		for _, m := range ec.Documents {
			cl.Members = append(cl.Members, core.ClusterMember{DocumentID: m.ID, Similarity: m.Similarity})
		}
		clusters = append(clusters, cl)
	}

	c.logger.Debug("external clustering finished", "documents", len(docs), "clusters", len(clusters), "elapsed", time.Since(start))
	return clusters, nil
}
