package intent

import (
	"fmt"
	"testing"

	"github.com/poiesic/ragrouter/core"
	"github.com/stretchr/testify/assert"
)

func TestPrefilter_Filter(t *testing.T) {
	tree := mustTree(t, sampleNodes())
	leaves := tree.Leaves()

	t.Run("keeps overlapping candidates in tree order", func(t *testing.T) {
		got := NewPrefilter(10).Filter(tree, "发票抬头怎么填", leaves)
		codes := nodeCodes(got)
		assert.Equal(t, []string{"fin-invoice-info", "fin-invoice-apply"}, codes)
	})

	t.Run("keep limit prefers best overlap", func(t *testing.T) {
		got := NewPrefilter(1).Filter(tree, "发票抬头怎么填", leaves)
		assert.Equal(t, []string{"fin-invoice-info"}, nodeCodes(got))
	})

	t.Run("no overlap", func(t *testing.T) {
		assert.Empty(t, NewPrefilter(10).Filter(tree, "weather", leaves))
	})

	t.Run("empty query", func(t *testing.T) {
		assert.Nil(t, NewPrefilter(10).Filter(tree, "   ", leaves))
	})
}

func TestPrefilter_LatinTerms(t *testing.T) {
	var nodes []core.IntentNode
	nodes = append(nodes, core.IntentNode{Code: "d", Name: "Docs", Level: core.LevelDomain, Enabled: true})
	nodes = append(nodes, core.IntentNode{Code: "c", Name: "Guides", Level: core.LevelCategory, ParentCode: "d", Enabled: true})
	for i := range 5 {
		nodes = append(nodes, core.IntentNode{
			Code: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Topic %d", i),
			Level: core.LevelTopic, ParentCode: "c", Enabled: true,
		})
	}
	nodes[4].Description = "kubernetes deployment"
	tree := mustTree(t, nodes)

	got := NewPrefilter(3).Filter(tree, "How do I scale a Kubernetes deployment?", tree.Leaves())
	assert.Equal(t, []string{"t2"}, nodeCodes(got))
}
