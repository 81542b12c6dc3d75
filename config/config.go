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


// Package config loads lectern's file and environment configuration.
//
// Values come from three layers, later ones winning: built-in defaults, a
// YAML file, and LECTERN_* environment variables (a .env file in the
// working directory is loaded first when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/chunking"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/extract"
	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMilvus   = "milvus"
)

// AIConfig selects the embedding and generation services.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embedding_host"`
	GenerationHost  string `yaml:"generation_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GenerationModel string `yaml:"generation_model"`
	APIKey          string `yaml:"api_key"`
	Dimension       int    `yaml:"dimension"`
}

// StorageConfig selects the relational store and vector index.
type StorageConfig struct {
	// Relational is "sqlite" or "postgres".
	Relational string `yaml:"relational"`
	// Index is "badger", "postgres" or "milvus".
	Index string `yaml:"index"`

	SQLitePath       string `yaml:"sqlite_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	BadgerPath       string `yaml:"badger_path"`
	MilvusAddress    string `yaml:"milvus_address"`
	MilvusCollection string `yaml:"milvus_collection"`

	// RefreshTimestamps makes re-ingested passages take the new write
	// time instead of keeping their first one.
	RefreshTimestamps bool `yaml:"refresh_timestamps"`
	BadgerSyncWrites  bool `yaml:"badger_sync_writes"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	PoolSize     int   `yaml:"pool_size"`
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
	BatchSize    int   `yaml:"batch_size"`
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

// EmbeddingConfig tunes the embedding coordinator.
type EmbeddingConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	MaxAttempts      int           `yaml:"max_attempts"`
	QueryMaxAttempts int           `yaml:"query_max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MinDelay         time.Duration `yaml:"min_delay"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// QueryConfig tunes question answering.
type QueryConfig struct {
	MaxResults  int           `yaml:"max_results"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// CrawlConfig tunes site crawling.
type CrawlConfig struct {
	Delay      time.Duration `yaml:"delay"`
	MaxPages   int           `yaml:"max_pages"`
	BatchSize  int           `yaml:"batch_size"`
	Pause      time.Duration `yaml:"pause"`
	Strategy   string        `yaml:"strategy"`
	LedgerPath string        `yaml:"ledger_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// Config is the root configuration.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Query     QueryConfig     `yaml:"query"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns the built-in configuration: SQLite plus badger under
// ./lectern-data and a local OpenAI-compatible server.
func Default() *Config {
	defaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			EmbeddingHost:   defaults.EmbeddingHost,
			GenerationHost:  defaults.GenerationHost,
			EmbeddingModel:  defaults.EmbeddingModel,
			GenerationModel: defaults.GenerationModel,
			APIKey:          defaults.APIKey,
		},
		Storage: StorageConfig{
			Relational:        BackendSQLite,
			Index:             BackendBadger,
			SQLitePath:        filepath.Join("lectern-data", "lectern.db"),
			BadgerPath:        filepath.Join("lectern-data", "index"),
			MilvusCollection:  "lectern_passages",
			RefreshTimestamps: true,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    chunking.DefaultSize,
			ChunkOverlap: chunking.DefaultOverlap,
			BatchSize:    32,
			MaxSizeBytes: extract.DefaultMaxSize,
		},
		Embedding: EmbeddingConfig{
			BatchSize:        64,
			MaxAttempts:      5,
			QueryMaxAttempts: 3,
			BaseDelay:        time.Second,
			MinDelay:         100 * time.Millisecond,
			CallTimeout:      60 * time.Second,
		},
		Query: QueryConfig{
			MaxResults:  5,
			Temperature: 0.7,
			MaxTokens:   300,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			CallTimeout: 120 * time.Second,
		},
		Crawl: CrawlConfig{
			Delay:      500 * time.Millisecond,
			MaxPages:   100,
			BatchSize:  5,
			Pause:      2 * time.Second,
			Strategy:   string(core.ChunkSemantic),
			LedgerPath: filepath.Join("lectern-data", "crawl.ledger"),
		},
		Server: ServerConfig{
			Address: ":8080",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error; an
// empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: loading .env: %w", core.ErrConfiguration, err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %w", core.ErrConfiguration, path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AIProviderConfig converts the AI section for ai/openai.
func (c *Config) AIProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithDimension(c.AI.Dimension),
	)
}

// Validate checks backend choices and numeric ranges. Failures wrap
// core.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.AIProviderConfig().Validate(); err != nil {
		return err
	}

	s := c.Storage
	switch s.Relational {
	case BackendSQLite:
		if s.SQLitePath == "" {
			return invalid("storage.sqlite_path is required")
		}
	case BackendPostgres:
		if s.PostgresDSN == "" {
			return invalid("storage.postgres_dsn is required")
		}
	default:
		return invalid("storage.relational must be sqlite or postgres, got %q", s.Relational)
	}
	switch s.Index {
	case BackendBadger:
	case BackendPostgres:
		if s.PostgresDSN == "" {
			return invalid("storage.postgres_dsn is required")
		}
	case BackendMilvus:
		if s.MilvusAddress == "" {
			return invalid("storage.milvus_address is required")
		}
	default:
		return invalid("storage.index must be badger, postgres or milvus, got %q", s.Index)
	}

	in := c.Ingestion
	if in.ChunkSize < 1 {
		return invalid("ingestion.chunk_size must be positive")
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		return invalid("ingestion.chunk_overlap must be in [0, chunk_size)")
	}
	if in.BatchSize < 1 || in.MaxSizeBytes < 1 || in.PoolSize < 0 {
		return invalid("ingestion sizes must be positive")
	}

	e := c.Embedding
	if e.BatchSize < 1 || e.MaxAttempts < 1 || e.QueryMaxAttempts < 1 {
		return invalid("embedding batch size and attempts must be positive")
	}
	if e.BaseDelay < 0 || e.MinDelay < 0 || e.CallTimeout < 0 {
		return invalid("embedding delays cannot be negative")
	}

	q := c.Query
	if q.MaxResults < 1 || q.MaxTokens < 1 || q.MaxAttempts < 1 {
		return invalid("query max_results, max_tokens and max_attempts must be positive")
	}
	if q.Temperature < 0 || q.Temperature > 2 {
		return invalid("query.temperature must be in [0, 2], got %g", q.Temperature)
	}
	if q.CallTimeout < 0 {
		return invalid("query.call_timeout cannot be negative")
	}

	cr := c.Crawl
	if cr.MaxPages < 1 || cr.BatchSize < 1 {
		return invalid("crawl max_pages and batch_size must be positive")
	}
	if err := core.ValidateChunkStrategy(core.ChunkStrategy(cr.Strategy)); err != nil {
		return err
	}

	if c.Server.Address == "" {
		return invalid("server.address is required")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfiguration, fmt.Sprintf(format, args...))
}
