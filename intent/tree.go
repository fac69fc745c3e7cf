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

package intent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/poiesic/ragrouter/core"
)

// PathSeparator joins node names in Tree.PathString.
const PathSeparator = " > "

// Tree is an immutable snapshot of the intent catalogue. Nodes are copied in on
// build, so callers may hold *core.IntentNode pointers for the snapshot's lifetime.
type Tree struct {
	nodes    map[string]*core.IntentNode
	children map[string][]*core.IntentNode
	roots    []*core.IntentNode
	leaves   []*core.IntentNode
	// rank is each node's position in depth-first tree order
	rank map[string]int
}

// BuildTree links a flat node list into a forest. Children are ordered by
// SortOrder ascending (nil last), ties by declaration order.
func BuildTree(nodes []core.IntentNode) (*Tree, error) {
	t := &Tree{
		nodes:    make(map[string]*core.IntentNode, len(nodes)),
		children: make(map[string][]*core.IntentNode),
		rank:     make(map[string]int, len(nodes)),
	}

	declared := make([]*core.IntentNode, 0, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if err := core.ValidateIntentNode(&n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTree, err)
		}
		if _, dup := t.nodes[n.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidTree, n.Code)
		}
		t.nodes[n.Code] = &n
		declared = append(declared, &n)
	}

	for _, n := range declared {
		if n.Level == core.LevelDomain {
			t.roots = append(t.roots, n)
			continue
		}
		parent, ok := t.nodes[n.ParentCode]
		if !ok {
			return nil, fmt.Errorf("%w: %q references missing parent %q", ErrInvalidTree, n.Code, n.ParentCode)
		}
		if parent.Level != n.Level-1 {
			return nil, fmt.Errorf("%w: %q is %s but parent %q is %s",
				ErrInvalidTree, n.Code, n.Level, parent.Code, parent.Level)
		}
		t.children[parent.Code] = append(t.children[parent.Code], n)
	}

	sortNodes(t.roots)
	for code := range t.children {
		sortNodes(t.children[code])
	}

	t.walk(t.roots, true)
	return t, nil
}

// sortNodes orders siblings by SortOrder; the stable sort keeps declaration order on ties.
func sortNodes(nodes []*core.IntentNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].SortOrder, nodes[j].SortOrder
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// walk assigns depth-first ranks and collects enabled topics. A disabled node
// disables its whole subtree.
func (t *Tree) walk(nodes []*core.IntentNode, enabled bool) {
	for _, n := range nodes {
		t.rank[n.Code] = len(t.rank)
		on := enabled && n.Enabled
		if on && n.IsTopic() {
			t.leaves = append(t.leaves, n)
		}
		t.walk(t.children[n.Code], on)
	}
}

// Roots returns the ordered domains.
func (t *Tree) Roots() []*core.IntentNode {
	return t.roots
}

// Leaves returns the enabled topics in depth-first tree order.
func (t *Tree) Leaves() []*core.IntentNode {
	return t.leaves
}

// Node returns the node with the given code, or nil.
func (t *Tree) Node(code string) *core.IntentNode {
	return t.nodes[code]
}

// Children returns the ordered children of a node.
func (t *Tree) Children(code string) []*core.IntentNode {
	return t.children[code]
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Rank returns the node's depth-first position, or -1 for unknown codes.
func (t *Tree) Rank(code string) int {
	r, ok := t.rank[code]
	if !ok {
		return -1
	}
	return r
}

// Path returns node names from the domain down to the node itself.
func (t *Tree) Path(code string) []string {
	var names []string
	for n := t.nodes[code]; n != nil; n = t.nodes[n.ParentCode] {
		names = append(names, n.Name)
		if n.ParentCode == "" {
			break
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// PathString returns Path joined with PathSeparator.
func (t *Tree) PathString(code string) string {
	return strings.Join(t.Path(code), PathSeparator)
}
