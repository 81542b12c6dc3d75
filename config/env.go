package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/lectern/core"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LECTERN_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from LECTERN_* variables found by lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	strs := map[string]*string{
		"EMBEDDING_HOST":    &c.AI.EmbeddingHost,
		"GENERATION_HOST":   &c.AI.GenerationHost,
		"EMBEDDING_MODEL":   &c.AI.EmbeddingModel,
		"GENERATION_MODEL":  &c.AI.GenerationModel,
		"API_KEY":           &c.AI.APIKey,
		"RELATIONAL":        &c.Storage.Relational,
		"INDEX":             &c.Storage.Index,
		"SQLITE_PATH":       &c.Storage.SQLitePath,
		"POSTGRES_DSN":      &c.Storage.PostgresDSN,
		"BADGER_PATH":       &c.Storage.BadgerPath,
		"MILVUS_ADDRESS":    &c.Storage.MilvusAddress,
		"MILVUS_COLLECTION": &c.Storage.MilvusCollection,
		"CRAWL_LEDGER_PATH": &c.Crawl.LedgerPath,
		"SERVER_ADDRESS":    &c.Server.Address,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DIMENSION":       &c.AI.Dimension,
		"POOL_SIZE":       &c.Ingestion.PoolSize,
		"CHUNK_SIZE":      &c.Ingestion.ChunkSize,
		"CHUNK_OVERLAP":   &c.Ingestion.ChunkOverlap,
		"MAX_RESULTS":     &c.Query.MaxResults,
		"MAX_TOKENS":      &c.Query.MaxTokens,
		"CRAWL_MAX_PAGES": &c.Crawl.MaxPages,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", core.ErrConfiguration, EnvPrefix, name, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"EMBEDDING_MIN_DELAY": &c.Embedding.MinDelay,
		"CRAWL_DELAY":         &c.Crawl.Delay,
		"QUERY_CALL_TIMEOUT":  &c.Query.CallTimeout,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", core.ErrConfiguration, EnvPrefix, name, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"REFRESH_TIMESTAMPS": &c.Storage.RefreshTimestamps,
		"BADGER_SYNC_WRITES": &c.Storage.BadgerSyncWrites,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", core.ErrConfiguration, EnvPrefix, name, err)
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "TEMPERATURE"); ok {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sTEMPERATURE: %w", core.ErrConfiguration, EnvPrefix, err)
		}
		c.Query.Temperature = t
	}
	return nil
}
