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

package badger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
)

// IntentRepository implements storage.IntentRepository for BadgerDB.
type IntentRepository struct {
	backend *Backend
	seq     *badger.Sequence
	logger  *slog.Logger
}

var _ storage.IntentRepository = (*IntentRepository)(nil)

// NewIntentRepository creates a new IntentRepository.
func NewIntentRepository(backend *Backend) (*IntentRepository, error) {
	seq, err := backend.GetSequence(intentPositionSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to get intent position sequence: %w", err)
	}
	return &IntentRepository{
		backend: backend,
		seq:     seq,
		logger:  slog.Default().With("component", "badger-intent-repository"),
	}, nil
}

// Close releases the position sequence.
func (r *IntentRepository) Close() error {
	return r.seq.Release()
}

// LoadIntentNodes returns every stored node in declaration order.
func (r *IntentRepository) LoadIntentNodes(ctx context.Context) ([]core.IntentNode, error) {
	var records []*storage.IntentRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(intentNodePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec *storage.IntentRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalIntentRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Position < records[j].Position
	})

	nodes := make([]core.IntentNode, len(records))
	for i, rec := range records {
		nodes[i] = rec.Node
	}
	r.logger.Debug("loaded intent nodes", "count", len(nodes))
	return nodes, nil
}

// SaveIntentNodes inserts or replaces nodes by code.
func (r *IntentRepository) SaveIntentNodes(ctx context.Context, nodes ...core.IntentNode) error {
	for i := range nodes {
		if err := core.ValidateIntentNode(&nodes[i]); err != nil {
			return err
		}
	}

	return r.backend.Update(func(tx *badger.Txn) error {
		for _, node := range nodes {
			key := makeIntentNodeKey(node.Code)

			old, err := readIntentRecord(tx, key)
			if err != nil {
				return err
			}

			rec := storage.IntentRecord{Node: node}
			if old != nil {
				rec.Position = old.Position
			} else {
				next, err := r.seq.Next()
				if err != nil {
					return err
				}
				rec.Position = int(next)
			}

			if err := tx.Set(key, storage.MarshalIntentRecord(&rec)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteIntentNodes removes nodes by code.
func (r *IntentRepository) DeleteIntentNodes(ctx context.Context, codes ...string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, code := range codes {
			key := makeIntentNodeKey(code)

			rec, err := readIntentRecord(tx, key)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%w: intent %q", storage.ErrNotFound, code)
			}

			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// readIntentRecord reads an intent record, returning nil if it doesn't exist.
func readIntentRecord(tx *badger.Txn, key []byte) (*storage.IntentRecord, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalIntentRecord(val)
}
