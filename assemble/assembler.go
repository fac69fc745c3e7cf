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

// Package assemble groups the final ranked chunks under the intents that
// produced them and renders the text context handed to answer generation.
package assemble

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/intent"
)

// GeneralHeading titles the group of chunks that belong to no selected intent.
const GeneralHeading = "General"

// Assembler renders retrieval results.
type Assembler struct {
	logger *slog.Logger
}

// NewAssembler creates an assembler. A nil logger selects the default.
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default().With("component", "assembler")
	}
	return &Assembler{logger: logger}
}

// Assemble attributes chunks and renders the context. Chunks carrying an intent
// code stay with that intent; the rest join the best selected intent, or the
// general group when nothing was selected. Groups follow intent score order,
// intents unknown to the selection after them, the general group last. An empty
// chunk list yields an empty context and an empty map.
func (a *Assembler) Assemble(tree *intent.Tree, intents []core.NodeScore, chunks []core.RetrievedChunk) *core.RetrievalResult {
	result := core.EmptyResult()
	result.Intents = intents
	if len(chunks) == 0 {
		return result
	}

	fallback := core.GeneralGroup
	if len(intents) > 0 {
		fallback = intents[0].Node.Code
	}

	var order []string
	for _, ns := range intents {
		order = append(order, ns.Node.Code)
	}
	for _, c := range chunks {
		group := c.IntentCode
		if group == "" {
			group = fallback
		}
		if _, ok := result.IntentChunks[group]; !ok && !slices.Contains(order, group) && group != core.GeneralGroup {
			order = append(order, group)
		}
		result.IntentChunks[group] = append(result.IntentChunks[group], c)
	}
	order = append(order, core.GeneralGroup)

	var b strings.Builder
	n := 0
	for _, group := range order {
		groupChunks := result.IntentChunks[group]
		if len(groupChunks) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		heading, snippet := describe(tree, group)
		fmt.Fprintf(&b, "## %s\n", heading)
		if snippet != "" {
			b.WriteString(snippet)
			b.WriteString("\n")
		}
		for _, c := range groupChunks {
			n++
			fmt.Fprintf(&b, "[%d] %s\n", n, c.Text)
		}
	}
	result.Context = b.String()

	a.logger.Debug("assembled context", "groups", len(result.IntentChunks), "chunks", n)
	return result
}

func describe(tree *intent.Tree, group string) (heading, snippet string) {
	if group == core.GeneralGroup {
		return GeneralHeading, ""
	}
	if tree == nil {
		return group, ""
	}
	node := tree.Node(group)
	if node == nil {
		return group, ""
	}
	return tree.PathString(group), node.PromptSnippet
}
