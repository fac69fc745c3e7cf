package indexing

import (
	"fmt"
	"iter"
	"os"
	"slices"

	"github.com/poiesic/ragrouter/storage"
	"gopkg.in/yaml.v3"
)

// chunkFile is the on-disk chunk format:
//
//	chunks:
//	  - id: inv-1
//	    text: 阿里巴巴发票抬头为阿里巴巴（中国）有限公司
//	    metadata: {source: invoice-faq.md}
type chunkFile struct {
	Chunks []chunkEntry `yaml:"chunks"`
}

type chunkEntry struct {
	ID       string            `yaml:"id"`
	Text     string            `yaml:"text"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// ParseChunks decodes a YAML chunk document. Every chunk needs an id and text.
func ParseChunks(data []byte) ([]storage.Chunk, error) {
	var doc chunkFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChunkFile, err)
	}
	chunks := make([]storage.Chunk, len(doc.Chunks))
	for i, e := range doc.Chunks {
		if e.ID == "" || e.Text == "" {
			return nil, fmt.Errorf("%w: chunk %d needs both id and text", ErrInvalidChunkFile, i)
		}
		chunks[i] = storage.Chunk{ID: e.ID, Text: e.Text, Metadata: e.Metadata}
	}
	return chunks, nil
}

// ReadChunkFile reads and parses a YAML chunk file.
func ReadChunkFile(path string) ([]storage.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	chunks, err := ParseChunks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chunks, nil
}

// Batches groups a chunk sequence into slices of at most size chunks.
// Each yielded slice is owned by the receiver.
func Batches(source iter.Seq[storage.Chunk], size int) iter.Seq[[]storage.Chunk] {
	return func(yield func([]storage.Chunk) bool) {
		batch := make([]storage.Chunk, 0, size)
		for chunk := range source {
			batch = append(batch, chunk)
			if len(batch) == size {
				if !yield(slices.Clone(batch)) {
					return
				}
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}
