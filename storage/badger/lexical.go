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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
	"github.com/poiesic/ragrouter/tokenize"
)

// BM25 parameters
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// LexicalIndex implements storage.LexicalIndex as a BM25 inverted index in BadgerDB.
type LexicalIndex struct {
	backend *Backend
	// writes read-modify-write the corpus stats key
	mu     sync.Mutex
	logger *slog.Logger
}

var _ storage.LexicalIndex = (*LexicalIndex)(nil)

// NewLexicalIndex creates a new LexicalIndex.
func NewLexicalIndex(backend *Backend) (*LexicalIndex, error) {
	return &LexicalIndex{
		backend: backend,
		logger:  slog.Default().With("component", "badger-lexical-index"),
	}, nil
}

// Close releases resources. LexicalIndex has no resources to release.
func (x *LexicalIndex) Close() error {
	return nil
}

// IndexChunks adds chunks to the index, replacing any with the same ID.
func (x *LexicalIndex) IndexChunks(ctx context.Context, chunks ...storage.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk.ID == "" {
			return storage.ErrEmptyChunkID
		}
		err := x.backend.Update(func(tx *badger.Txn) error {
			stats, err := readStats(tx)
			if err != nil {
				return err
			}
			if err := removeDoc(tx, chunk.ID, &stats); err != nil {
				return err
			}
			if err := addDoc(tx, chunk, &stats); err != nil {
				return err
			}
			return tx.Set([]byte(lexicalStatsKey), storage.MarshalLexicalStats(stats))
		})
		if err != nil {
			return fmt.Errorf("failed to index chunk %q: %w", chunk.ID, err)
		}
	}
	x.logger.Debug("indexed chunks", "count", len(chunks))
	return nil
}

// DeleteChunks removes chunks by ID.
func (x *LexicalIndex) DeleteChunks(ctx context.Context, ids ...string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.backend.Update(func(tx *badger.Txn) error {
		stats, err := readStats(tx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			val, err := getValue(tx, makeLexicalDocKey(id))
			if err != nil {
				return err
			}
			if val == nil {
				return fmt.Errorf("%w: chunk %q", storage.ErrNotFound, id)
			}
			if err := removeDoc(tx, id, &stats); err != nil {
				return err
			}
		}
		return tx.Set([]byte(lexicalStatsKey), storage.MarshalLexicalStats(stats))
	})
}

// Search scores every chunk sharing a term with the query using BM25. Raw scores
// are squashed with s/(s+1) so they stay comparable with cosine similarities.
func (x *LexicalIndex) Search(ctx context.Context, query string, topK int) ([]core.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	terms, _ := tokenize.Frequencies(tokenize.Terms(query))
	if len(terms) == 0 {
		return []core.RetrievedChunk{}, nil
	}

	var results []core.RetrievedChunk
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		stats, err := readStats(tx)
		if err != nil {
			return err
		}
		if stats.DocCount == 0 {
			return nil
		}

		scores, err := scoreTerms(ctx, tx, terms, stats)
		if err != nil {
			return err
		}

		ranked := rankScores(scores, topK)
		results = make([]core.RetrievedChunk, 0, len(ranked))
		for _, hit := range ranked {
			val, err := getValue(tx, makeLexicalDocKey(hit.id))
			if err != nil {
				return err
			}
			if val == nil {
				continue
			}
			doc, err := storage.UnmarshalLexicalDoc(val)
			if err != nil {
				return err
			}
			results = append(results, core.RetrievedChunk{
				ID:         doc.ID,
				Text:       doc.Text,
				Score:      hit.score / (hit.score + 1),
				Channel:    core.ChannelKeyword,
				Collection: doc.Collection,
				Metadata:   doc.Metadata,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []core.RetrievedChunk{}
	}
	x.logger.Debug("lexical search", "terms", len(terms), "hits", len(results))
	return results, nil
}

type scoredID struct {
	id    string
	score float64
}

func scoreTerms(ctx context.Context, tx *badger.Txn, terms []string, stats storage.LexicalStats) (map[string]float64, error) {
	avgLen := stats.AverageLength()
	n := float64(stats.DocCount)
	scores := make(map[string]float64)

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prefix := makePartialPostingKey(term)
		type hit struct {
			id string
			p  storage.Posting
		}
		var hits []hit

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			id := string(bytes.TrimPrefix(item.Key(), prefix))
			var p storage.Posting
			err := item.Value(func(val []byte) error {
				var err error
				p, err = storage.UnmarshalPosting(val)
				return err
			})
			if err != nil {
				iter.Close()
				return nil, err
			}
			hits = append(hits, hit{id: id, p: p})
		}
		iter.Close()

		if len(hits) == 0 {
			continue
		}
		df := float64(len(hits))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, h := range hits {
			tf := float64(h.p.Freq)
			norm := 1 - bm25B
			if avgLen > 0 {
				norm += bm25B * float64(h.p.DocLength) / avgLen
			}
			scores[h.id] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores, nil
}

// rankScores orders by descending score, ties by id, and keeps topK.
func rankScores(scores map[string]float64, topK int) []scoredID {
	ranked := make([]scoredID, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, scoredID{id: id, score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func readStats(tx *badger.Txn) (storage.LexicalStats, error) {
	val, err := getValue(tx, []byte(lexicalStatsKey))
	if err != nil || val == nil {
		return storage.LexicalStats{}, err
	}
	return storage.UnmarshalLexicalStats(val)
}

// removeDoc deletes a document and its postings if present, adjusting stats.
func removeDoc(tx *badger.Txn, id string, stats *storage.LexicalStats) error {
	key := makeLexicalDocKey(id)
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return err
	}
	doc, err := storage.UnmarshalLexicalDoc(val)
	if err != nil {
		return err
	}
	for _, tf := range doc.Terms {
		if err := tx.Delete(makePostingKey(tf.Term, id)); err != nil {
			return err
		}
	}
	stats.DocCount--
	stats.TotalLength -= doc.Length
	return tx.Delete(key)
}

func addDoc(tx *badger.Txn, chunk storage.Chunk, stats *storage.LexicalStats) error {
	tokens := tokenize.Terms(chunk.Text)
	order, freq := tokenize.Frequencies(tokens)

	doc := storage.LexicalDoc{
		ID:         chunk.ID,
		Text:       chunk.Text,
		Collection: chunk.Collection,
		Metadata:   chunk.Metadata,
		Length:     len(tokens),
		Terms:      make([]storage.TermFreq, len(order)),
	}
	for i, term := range order {
		doc.Terms[i] = storage.TermFreq{Term: term, Freq: freq[term]}
		posting := storage.Posting{Freq: freq[term], DocLength: doc.Length}
		if err := tx.Set(makePostingKey(term, chunk.ID), storage.MarshalPosting(posting)); err != nil {
			return err
		}
	}
	if err := tx.Set(makeLexicalDocKey(chunk.ID), storage.MarshalLexicalDoc(&doc)); err != nil {
		return err
	}
	stats.DocCount++
	stats.TotalLength += doc.Length
	return nil
}
