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

package indexing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/ragrouter/storage"
)

// Indexer adds chunks to a collection. *ragrouter.Router implements it.
type Indexer interface {
	Index(ctx context.Context, collection string, chunks ...storage.Chunk) error
}

// Config tunes a Loader.
type Config struct {
	// BatchSize is the number of chunks handed to the indexer at once.
	BatchSize int

	// ReportInterval is how often progress is printed, in chunks.
	ReportInterval int

	// MaxAttempts bounds tries per batch, the first one included.
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      32,
		ReportInterval: 32,
		MaxAttempts:    3,
		RetryDelay:     time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.RetryDelay < 0 {
		return errors.New("retry delay cannot be negative")
	}
	return nil
}

// Loader feeds chunks to an Indexer batch by batch.
type Loader struct {
	indexer Indexer
	config  *Config
	out     io.Writer
	logger  *slog.Logger
}

// NewLoader creates a loader printing progress to out. A nil config selects
// DefaultConfig; a nil out disables progress output.
func NewLoader(indexer Indexer, config *Config, out io.Writer) (*Loader, error) {
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &Loader{
		indexer: indexer,
		config:  config,
		out:     out,
		logger:  slog.Default().With("component", "indexing"),
	}, nil
}

// Load indexes chunks into collection and returns how many were stored. It stops
// at the first batch that still fails after retries; earlier batches stay indexed.
func (l *Loader) Load(ctx context.Context, collection string, chunks []storage.Chunk) (int, error) {
	progress := NewProgress(l.out, len(chunks), l.config.ReportInterval)
	defer progress.Done()

	loaded := 0
	for batch := range Batches(slices.Values(chunks), l.config.BatchSize) {
		err := Retry(ctx, l.logger, l.config.MaxAttempts, l.config.RetryDelay, func(ctx context.Context) error {
			return l.indexer.Index(ctx, collection, batch...)
		})
		if err != nil {
			l.logger.Error("batch failed", "collection", collection, "offset", loaded, "size", len(batch), "err", err)
			return loaded, fmt.Errorf("index batch at offset %d: %w", loaded, err)
		}
		loaded += len(batch)
		progress.Add(len(batch))
	}

	l.logger.Info("load complete", "collection", collection, "chunks", loaded, "elapsed", progress.Elapsed())
	return loaded, nil
}
