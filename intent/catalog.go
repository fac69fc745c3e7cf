package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/ragrouter/storage"
)

// Catalog holds the current intent tree and swaps in new snapshots atomically.
// Readers never observe a partially loaded tree.
type Catalog struct {
	repo    storage.IntentRepository
	current atomic.Pointer[Tree]
	logger  *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog) error

// WithCatalogLogger sets a custom logger.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// NewCatalog creates a catalog over repo. No snapshot is loaded until Refresh.
func NewCatalog(repo storage.IntentRepository, opts ...CatalogOption) (*Catalog, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	c := &Catalog{
		repo:   repo,
		logger: slog.Default().With("component", "intent-catalog"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Refresh loads and builds a new tree. On failure the previous snapshot stays in place.
func (c *Catalog) Refresh(ctx context.Context) error {
	nodes, err := c.repo.LoadIntentNodes(ctx)
	if err != nil {
		c.logger.Warn("intent tree refresh failed, keeping previous snapshot", "err", err)
		return fmt.Errorf("load intent nodes: %w", err)
	}
	tree, err := BuildTree(nodes)
	if err != nil {
		c.logger.Warn("intent tree refresh failed, keeping previous snapshot", "err", err)
		return err
	}
	c.current.Store(tree)
	c.logger.Info("intent tree loaded", "nodes", tree.Len(), "topics", len(tree.Leaves()))
	return nil
}

// Snapshot returns the current tree.
func (c *Catalog) Snapshot() (*Tree, error) {
	tree := c.current.Load()
	if tree == nil {
		return nil, ErrTreeNotLoaded
	}
	return tree, nil
}

// Set installs an already built tree, bypassing the repository.
func (c *Catalog) Set(tree *Tree) {
	c.current.Store(tree)
}

// Watch refreshes every interval until ctx is done. Failures are logged by Refresh.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
