// Package config loads the docseek configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/docseek/ai"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "docseek"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// DefaultDataDir holds the term index and the metadata database when no
	// data_dir is configured.
	DefaultDataDir = "docseek-data"
)

// Config is the contents of config.yml. Fields missing from the file keep
// their DefaultConfig values.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	AI      AIConfig      `yaml:"ai"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// AIConfig configures the embedding provider.
type AIConfig struct {
	Enabled   bool `yaml:"enabled"`
	ai.Config `yaml:",inline"`
}

// IndexConfig configures the indexing worker pool.
type IndexConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// SearchConfig configures semantic search.
type SearchConfig struct {
	CandidatePool int `yaml:"candidate_pool"`
	// GenerationRate is the number of missing document embeddings generated
	// per second while searching. Zero disables lazy generation.
	GenerationRate  float64 `yaml:"generation_rate"`
	GenerationBurst int     `yaml:"generation_burst"`
}

// ClusterConfig configures the optional external clustering process.
// An empty Command selects term overlap clustering.
type ClusterConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args,omitempty"`
	Method      string        `yaml:"method"`
	MaxClusters int           `yaml:"max_clusters"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		AI: AIConfig{
			Enabled: true,
			Config:  *ai.DefaultConfig(),
		},
		Index: IndexConfig{
			PoolSize: 8,
		},
		Search: SearchConfig{
			CandidatePool:   100,
			GenerationRate:  5,
			GenerationBurst: 10,
		},
		Cluster: ClusterConfig{
			Method:      "kmeans",
			MaxClusters: 10,
			Timeout:     2 * time.Minute,
		},
	}
}

// DefaultPath returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/docseek/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads the configuration at path. A missing file, or an empty path,
// returns DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks value ranges. The AI section is only checked when enabled.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Index.PoolSize < 1 {
		return fmt.Errorf("config: index.pool_size must be positive, got %d", c.Index.PoolSize)
	}
	if c.Search.CandidatePool < 1 {
		return fmt.Errorf("config: search.candidate_pool must be positive, got %d", c.Search.CandidatePool)
	}
	if c.Search.GenerationRate < 0 || c.Search.GenerationBurst < 0 {
		return errors.New("config: search generation rate and burst must not be negative")
	}
	if c.Cluster.Command != "" {
		if c.Cluster.MaxClusters < 1 {
			return fmt.Errorf("config: cluster.max_clusters must be positive, got %d", c.Cluster.MaxClusters)
		}
		if c.Cluster.Timeout <= 0 {
			return errors.New("config: cluster.timeout must be positive")
		}
	}
	if c.AI.Enabled {
		if err := c.AI.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}
