// Package yamlfile stores the intent tree in a hand-editable YAML document.
//
// Nodes may nest through "children", in which case level and parent are implied
// by position; flat lists with explicit "level" and "parent" work too:
//
//	intents:
//	  - code: fin
//	    name: 财务
//	    children:
//	      - code: fin-invoice
//	        name: 发票
//	        children:
//	          - code: fin-invoice-info
//	            name: 发票信息
//	            collection: kb_finance_invoice
//	            examples: [发票抬头怎么写]
package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned for YAML that does not describe an intent tree.
var ErrMalformed = errors.New("malformed intent file")

type document struct {
	Intents []node `yaml:"intents"`
}

type node struct {
	Code          string   `yaml:"code"`
	Name          string   `yaml:"name"`
	Level         string   `yaml:"level,omitempty"`
	Parent        string   `yaml:"parent,omitempty"`
	Description   string   `yaml:"description,omitempty"`
	Examples      []string `yaml:"examples,omitempty"`
	Kind          string   `yaml:"kind,omitempty"`
	Collection    string   `yaml:"collection,omitempty"`
	PromptSnippet string   `yaml:"prompt_snippet,omitempty"`
	SortOrder     *int     `yaml:"sort_order,omitempty"`
	Enabled       *bool    `yaml:"enabled,omitempty"`
	Children      []node   `yaml:"children,omitempty"`
}

// Parse decodes a YAML intent document into nodes in declaration order
// (depth-first for nested input). Nodes are validated individually; tree-level
// checks happen when the tree is built.
func Parse(data []byte) ([]core.IntentNode, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var out []core.IntentNode
	var walk func(items []node, parent string, depth int) error
	walk = func(items []node, parent string, depth int) error {
		for _, item := range items {
			n, err := item.toCore(parent, depth)
			if err != nil {
				return err
			}
			out = append(out, n)
			if err := walk(item.Children, n.Code, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc.Intents, "", 1); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.IntentNode{}
	}
	return out, nil
}

func (n node) toCore(parent string, depth int) (core.IntentNode, error) {
	level := core.IntentLevel(depth)
	if n.Level != "" {
		parsed, err := core.ParseIntentLevel(n.Level)
		if err != nil {
			return core.IntentNode{}, fmt.Errorf("%w: %s: %w", ErrMalformed, n.Code, err)
		}
		level = parsed
	}
	if n.Parent != "" {
		if parent != "" && n.Parent != parent {
			return core.IntentNode{}, fmt.Errorf("%w: %s: parent %q conflicts with nesting under %q",
				ErrMalformed, n.Code, n.Parent, parent)
		}
		parent = n.Parent
	}

	out := core.IntentNode{
		Code:          n.Code,
		Name:          n.Name,
		Level:         level,
		ParentCode:    parent,
		Description:   n.Description,
		Examples:      n.Examples,
		Kind:          core.IntentKind(n.Kind),
		Collection:    n.Collection,
		PromptSnippet: n.PromptSnippet,
		SortOrder:     n.SortOrder,
		Enabled:       n.Enabled == nil || *n.Enabled,
	}
	if err := core.ValidateIntentNode(&out); err != nil {
		return core.IntentNode{}, err
	}
	return out, nil
}

// Marshal encodes nodes as a flat YAML intent document.
func Marshal(nodes []core.IntentNode) ([]byte, error) {
	doc := document{Intents: make([]node, len(nodes))}
	for i, n := range nodes {
		var enabled *bool
		if !n.Enabled {
			enabled = new(bool)
		}
		doc.Intents[i] = node{
			Code:          n.Code,
			Name:          n.Name,
			Level:         n.Level.String(),
			Parent:        n.ParentCode,
			Description:   n.Description,
			Examples:      n.Examples,
			Kind:          string(n.Kind),
			Collection:    n.Collection,
			PromptSnippet: n.PromptSnippet,
			SortOrder:     n.SortOrder,
			Enabled:       enabled,
		}
	}
	return yaml.Marshal(doc)
}

// Store implements storage.IntentRepository over one YAML file.
type Store struct {
	path     string
	readOnly bool
	mu       sync.Mutex
}

var _ storage.IntentRepository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// ReadOnly rejects every write with storage.ErrReadOnly.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// NewStore creates a store backed by path. The file need not exist yet.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadIntentNodes reads the file; a missing file yields no nodes.
func (s *Store) LoadIntentNodes(ctx context.Context) ([]core.IntentNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// SaveIntentNodes inserts or replaces nodes by code and rewrites the file.
func (s *Store) SaveIntentNodes(ctx context.Context, nodes ...core.IntentNode) error {
	if s.readOnly {
		return storage.ErrReadOnly
	}
	for i := range nodes {
		if err := core.ValidateIntentNode(&nodes[i]); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	index := make(map[string]int, len(current))
	for i, n := range current {
		index[n.Code] = i
	}
	for _, n := range nodes {
		if i, ok := index[n.Code]; ok {
			current[i] = n
			continue
		}
		index[n.Code] = len(current)
		current = append(current, n)
	}
	return s.write(current)
}

// DeleteIntentNodes removes nodes by code and rewrites the file.
func (s *Store) DeleteIntentNodes(ctx context.Context, codes ...string) error {
	if s.readOnly {
		return storage.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(current))
	for _, n := range current {
		present[n.Code] = true
	}
	drop := make(map[string]bool, len(codes))
	for _, c := range codes {
		if !present[c] {
			return fmt.Errorf("%w: intent %q", storage.ErrNotFound, c)
		}
		drop[c] = true
	}
	kept := current[:0]
	for _, n := range current {
		if !drop[n.Code] {
			kept = append(kept, n)
		}
	}
	return s.write(kept)
}

// Close is a no-op; the file is not held open.
func (s *Store) Close() error {
	return nil
}

func (s *Store) load() ([]core.IntentNode, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []core.IntentNode{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (s *Store) write(nodes []core.IntentNode) error {
	data, err := Marshal(nodes)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
