package intent

import (
	"sort"

	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/tokenize"
)

// Prefilter narrows a large candidate set by term overlap before model scoring.
type Prefilter struct {
	keep int
}

// NewPrefilter creates a prefilter keeping at most keep candidates.
func NewPrefilter(keep int) *Prefilter {
	if keep < 1 {
		keep = 1
	}
	return &Prefilter{keep: keep}
}

// Filter returns the candidates sharing at least one term with the query, best
// overlaps first up to the keep limit, then restored to tree order. An empty
// result means nothing overlapped; callers should then score everything.
func (p *Prefilter) Filter(tree *Tree, query string, candidates []*core.IntentNode) []*core.IntentNode {
	queryTerms, _ := tokenize.Frequencies(tokenize.Terms(query))
	if len(queryTerms) == 0 {
		return nil
	}
	want := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		want[term] = true
	}

	type hit struct {
		node    *core.IntentNode
		overlap int
	}
	var hits []hit
	for _, n := range candidates {
		if overlap := countOverlap(want, nodeTerms(tree, n)); overlap > 0 {
			hits = append(hits, hit{node: n, overlap: overlap})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].overlap > hits[j].overlap
	})
	if len(hits) > p.keep {
		hits = hits[:p.keep]
	}

	out := make([]*core.IntentNode, len(hits))
	for i, h := range hits {
		out[i] = h.node
	}
	sort.SliceStable(out, func(i, j int) bool {
		return tree.Rank(out[i].Code) < tree.Rank(out[j].Code)
	})
	return out
}

func nodeTerms(tree *Tree, n *core.IntentNode) []string {
	var terms []string
	for _, name := range tree.Path(n.Code) {
		terms = append(terms, tokenize.Terms(name)...)
	}
	terms = append(terms, tokenize.Terms(n.Description)...)
	for _, ex := range n.Examples {
		terms = append(terms, tokenize.Terms(ex)...)
	}
	return terms
}

func countOverlap(want map[string]bool, terms []string) int {
	seen := make(map[string]bool, len(terms))
	count := 0
	for _, t := range terms {
		if want[t] && !seen[t] {
			seen[t] = true
			count++
		}
	}
	return count
}
