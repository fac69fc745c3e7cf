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

package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// IntentLevel is the depth of a node in the intent tree.
type IntentLevel int

const (
	// LevelDomain is a top-level knowledge domain.
	LevelDomain IntentLevel = iota + 1
	// LevelCategory groups related topics under a domain.
	LevelCategory
	// LevelTopic is a leaf; only topics are classification and search targets.
	LevelTopic
)

func (l IntentLevel) String() string {
	switch l {
	case LevelDomain:
		return "DOMAIN"
	case LevelCategory:
		return "CATEGORY"
	case LevelTopic:
		return "TOPIC"
	default:
		return fmt.Sprintf("IntentLevel(%d)", int(l))
	}
}

// ParseIntentLevel converts a level name into an IntentLevel.
func ParseIntentLevel(s string) (IntentLevel, error) {
	switch s {
	case "DOMAIN", "domain":
		return LevelDomain, nil
	case "CATEGORY", "category":
		return LevelCategory, nil
	case "TOPIC", "topic":
		return LevelTopic, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// IntentKind describes what answers a topic: a knowledge base, the system itself or an MCP tool.
type IntentKind string

const (
	KindKB     IntentKind = "KB"
	KindSystem IntentKind = "SYSTEM"
	KindMCP    IntentKind = "MCP"
)

// IntentNode is one node of the domain -> category -> topic catalogue.
type IntentNode struct {
	Code          string
	Name          string
	Level         IntentLevel
	ParentCode    string // empty for domains
	Description   string
	Examples      []string
	Kind          IntentKind
	Collection    string // vector collection bound to KB topics
	PromptSnippet string
	SortOrder     *int // nil sorts last
	Enabled       bool
}

// IsTopic reports whether the node is a leaf eligible for classification.
func (n *IntentNode) IsTopic() bool {
	return n.Level == LevelTopic
}

// NodeScore is the classifier's judgement for one node.
type NodeScore struct {
	Node  *IntentNode
	Score float64
}

// ChannelType tags the retrieval backend that produced a chunk.
type ChannelType string

const (
	ChannelIntentDirected ChannelType = "intent_directed"
	ChannelKeyword        ChannelType = "keyword"
	ChannelGlobalVector   ChannelType = "global_vector"
)

// Priority orders channels during deduplication; lower values are consumed first.
// Unrecognized channel types sort after every known one.
func (c ChannelType) Priority() int {
	switch c {
	case ChannelIntentDirected:
		return 0
	case ChannelKeyword:
		return 1
	case ChannelGlobalVector:
		return 2
	default:
		return 3
	}
}

// RetrievedChunk is a candidate passage returned by a channel.
type RetrievedChunk struct {
	ID         string
	Text       string
	Score      float64
	Channel    ChannelType
	IntentCode string // set by the intent-directed channel only
	Collection string
	Metadata   map[string]string
}

// Key returns the chunk identity used for deduplication: the id when present,
// otherwise a hash of the text.
func (c RetrievedChunk) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("h:%016x", uint64(IDFromContent(c.Text)))
}

// SearchChannelResult is the outcome of one channel invocation.
type SearchChannelResult struct {
	Channel    ChannelType
	IntentCode string
	Question   string
	Chunks     []RetrievedChunk
	Err        error
	Elapsed    time.Duration
}

// Flags toggles optional post-processing stages per request.
type Flags struct {
	MarginFilter bool
	RerankLimit  bool
}

// SearchContext carries everything known about one retrieval call.
type SearchContext struct {
	RequestID    string
	Question     string
	SubQuestions []string
	TopK         int
	Intents      []NodeScore
	Flags        Flags
	Degradations *Degradations
}

// Questions returns the main question followed by its sub-questions.
func (sc *SearchContext) Questions() []string {
	qs := make([]string, 0, 1+len(sc.SubQuestions))
	qs = append(qs, sc.Question)
	return append(qs, sc.SubQuestions...)
}

// Record notes a degraded-mode event against the request, if a recorder is attached.
func (sc *SearchContext) Record(kind DegradedKind, source string, err error) {
	if sc == nil || sc.Degradations == nil {
		return
	}
	sc.Degradations.Record(kind, source, err)
}

// GeneralGroup collects chunks that cannot be attributed to any selected intent.
const GeneralGroup = "_general"

// RetrievalResult is the final, grouped output handed to answer generation.
type RetrievalResult struct {
	RequestID    string
	Context      string
	IntentChunks map[string][]RetrievedChunk
	Intents      []NodeScore
	Degraded     []DegradedEvent
}

// EmptyResult returns the canonical "no relevant knowledge" result.
func EmptyResult() *RetrievalResult {
	return &RetrievalResult{
		IntentChunks: map[string][]RetrievedChunk{},
	}
}

// IsEmpty reports whether no chunk survived retrieval.
func (r *RetrievalResult) IsEmpty() bool {
	for _, chunks := range r.IntentChunks {
		if len(chunks) > 0 {
			return false
		}
	}
	return true
}
