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

package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragrouter/ai/mock"
	"github.com/poiesic/ragrouter/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel answers with SearchFunc or a single chunk named after the channel.
type fakeChannel struct {
	kind       core.ChannelType
	SearchFunc func(ctx context.Context, req Request) ([]core.RetrievedChunk, error)

	mu       sync.Mutex
	requests []Request
}

func newFakeChannel(kind core.ChannelType) *fakeChannel {
	return &fakeChannel{kind: kind}
}

func (f *fakeChannel) Type() core.ChannelType { return f.kind }

func (f *fakeChannel) Search(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, req)
	}
	return []core.RetrievedChunk{{ID: string(f.kind), Text: req.Question, Score: 0.5, Channel: f.kind}}, nil
}

func (f *fakeChannel) calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

type fakeChannels struct {
	intent, keyword, global *fakeChannel
}

func newOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, fakeChannels) {
	t.Helper()
	fc := fakeChannels{
		intent:  newFakeChannel(core.ChannelIntentDirected),
		keyword: newFakeChannel(core.ChannelKeyword),
		global:  newFakeChannel(core.ChannelGlobalVector),
	}
	o, err := NewOrchestrator(fc.intent, fc.keyword, fc.global, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o, fc
}

func searchContext(question string, topK int, intents ...*core.IntentNode) *core.SearchContext {
	sc := &core.SearchContext{
		Question:     question,
		TopK:         topK,
		Degradations: core.NewDegradations(),
	}
	for _, n := range intents {
		sc.Intents = append(sc.Intents, core.NodeScore{Node: n, Score: 0.8})
	}
	return sc
}

func TestNewOrchestrator(t *testing.T) {
	ch := newFakeChannel(core.ChannelKeyword)
	_, err := NewOrchestrator(nil, ch, ch)
	assert.ErrorIs(t, err, ErrChannelRequired)

	for name, opt := range map[string]Option{
		"pool size":  WithPoolSize(0),
		"timeout":    WithChannelTimeout(0),
		"search top": WithSearchTopK(0, 3),
		"logger":     WithLogger(nil),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewOrchestrator(ch, ch, ch, opt)
			assert.Error(t, err)
		})
	}
}

func TestOrchestrator_SearchTopK(t *testing.T) {
	o, _ := newOrchestrator(t)
	assert.Equal(t, 20, o.SearchTopK(5))
	assert.Equal(t, 30, o.SearchTopK(10))

	o, _ = newOrchestrator(t, WithSearchTopK(4, 2))
	assert.Equal(t, 6, o.SearchTopK(3))
}

func TestOrchestrator_Plan(t *testing.T) {
	ctx := context.Background()
	info := &core.IntentNode{Code: "fin-invoice-info", Collection: "kb_invoice"}
	apply := &core.IntentNode{Code: "fin-invoice-apply", Collection: "kb_invoice"}

	t.Run("one intent", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		results, err := o.Run(ctx, searchContext("发票抬头", 5, info))
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, core.ChannelIntentDirected, results[0].Channel)
		assert.Equal(t, "fin-invoice-info", results[0].IntentCode)
		assert.Equal(t, core.ChannelKeyword, results[1].Channel)
		assert.Equal(t, core.ChannelGlobalVector, results[2].Channel)
		for _, r := range results {
			assert.NoError(t, r.Err)
			assert.Len(t, r.Chunks, 1)
		}
		require.Len(t, fc.intent.calls(), 1)
		assert.Equal(t, 20, fc.intent.calls()[0].TopK)
	})

	t.Run("no intents skips intent-directed", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		results, err := o.Run(ctx, searchContext("你好", 5))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Empty(t, fc.intent.calls())
		assert.Len(t, fc.keyword.calls(), 1)
		assert.Len(t, fc.global.calls(), 1)
	})

	t.Run("system topic without collection is not searched", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		greet := &core.IntentNode{Code: "sys-greet", Kind: core.KindSystem}
		tool := &core.IntentNode{Code: "mcp-weather", Kind: core.KindMCP, Collection: "kb_weather"}
		sc := searchContext("你好", 5, greet, tool)

		results, err := o.Run(ctx, sc)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "mcp-weather", results[0].IntentCode)
		require.Len(t, fc.intent.calls(), 1)
		assert.Equal(t, "mcp-weather", fc.intent.calls()[0].Intent.Code)
		assert.Empty(t, sc.Degradations.Events())
	})

	t.Run("sub-questions multiply the plan", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		sc := searchContext("发票抬头", 5, info, apply)
		sc.SubQuestions = []string{"开票流程"}
		results, err := o.Run(ctx, sc)
		require.NoError(t, err)
		assert.Len(t, results, 8)
		assert.Len(t, fc.intent.calls(), 4)
		assert.Len(t, fc.keyword.calls(), 2)
		assert.Equal(t, "开票流程", results[7].Question)
	})
}

func TestOrchestrator_SharedEmbedding(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	o, fc := newOrchestrator(t, WithQueryEmbedder(embedder))
	info := &core.IntentNode{Code: "fin-invoice-info", Collection: "kb_invoice"}

	_, err := o.Run(context.Background(), searchContext("发票抬头", 5, info))
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.CallCount())
	want := mock.DeterministicVector("发票抬头", mock.DefaultDimensions)
	assert.Equal(t, want, fc.intent.calls()[0].Vector)
	assert.Equal(t, want, fc.global.calls()[0].Vector)
	assert.Nil(t, fc.keyword.calls()[0].Vector)
}

func TestOrchestrator_SharedEmbeddingFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	o, fc := newOrchestrator(t, WithQueryEmbedder(embedder))

	results, err := o.Run(context.Background(), searchContext("q", 5))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Nil(t, fc.global.calls()[0].Vector)
}

func TestOrchestrator_KeywordStartsBeforeEmbedding(t *testing.T) {
	keywordStarted := make(chan struct{})
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		select {
		case <-keywordStarted:
			return [][]float32{{1, 0}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	o, fc := newOrchestrator(t, WithQueryEmbedder(embedder), WithChannelTimeout(time.Second))
	fc.keyword.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
		close(keywordStarted)
		return nil, nil
	}

	results, err := o.Run(context.Background(), searchContext("发票抬头", 5))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, []float32{1, 0}, fc.global.calls()[0].Vector)
}

func TestOrchestrator_HangingChannel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	o, fc := newOrchestrator(t, WithChannelTimeout(30*time.Millisecond))
	fc.global.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
		<-release
		return nil, nil
	}
	info := &core.IntentNode{Code: "fin-invoice-info", Collection: "kb_invoice"}
	sc := searchContext("发票抬头", 5, info)

	start := time.Now()
	results, err := o.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, ErrChannelTimeout)
	assert.Empty(t, results[2].Chunks)
	assert.True(t, sc.Degradations.Has(core.ChannelDegraded))
}

func TestOrchestrator_Failures(t *testing.T) {
	info := &core.IntentNode{Code: "fin-invoice-info", Collection: "kb_invoice"}

	t.Run("error", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		fc.keyword.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
			return nil, errors.New("index unavailable")
		}
		sc := searchContext("q", 5, info)
		results, err := o.Run(context.Background(), sc)
		require.NoError(t, err)
		assert.Error(t, results[1].Err)
		assert.Len(t, results[0].Chunks, 1)
		assert.Len(t, results[2].Chunks, 1)
		events := sc.Degradations.Events()
		require.Len(t, events, 1)
		assert.Equal(t, core.ChannelDegraded, events[0].Kind)
		assert.Equal(t, "keyword", events[0].Source)
	})

	t.Run("panic", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		fc.intent.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
			panic("boom")
		}
		sc := searchContext("q", 5, info)
		results, err := o.Run(context.Background(), sc)
		require.NoError(t, err)
		assert.ErrorIs(t, results[0].Err, ErrChannelPanic)
		assert.NoError(t, results[1].Err)
		assert.True(t, sc.Degradations.Has(core.ChannelDegraded))
	})

	t.Run("missing collection is a configuration error", func(t *testing.T) {
		o, fc := newOrchestrator(t)
		fc.intent.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
			return nil, ErrMissingCollection
		}
		sc := searchContext("q", 5, &core.IntentNode{Code: "broken"})
		_, err := o.Run(context.Background(), sc)
		require.NoError(t, err)
		events := sc.Degradations.Events()
		require.Len(t, events, 1)
		assert.Equal(t, core.ConfigurationError, events[0].Kind)
		assert.Equal(t, "intent_directed:broken", events[0].Source)
	})

	t.Run("pool overload", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		o, fc := newOrchestrator(t, WithPoolSize(1), WithChannelTimeout(50*time.Millisecond))
		fc.intent.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
			<-release
			return nil, nil
		}
		sc := searchContext("q", 5, info)

		results, err := o.Run(context.Background(), sc)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.ErrorIs(t, results[0].Err, ErrChannelTimeout)
		assert.ErrorIs(t, results[1].Err, ErrPoolOverloaded)
		assert.ErrorIs(t, results[2].Err, ErrPoolOverloaded)
		assert.True(t, sc.Degradations.Has(core.ChannelDegraded))
	})
}

func TestOrchestrator_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	o, fc := newOrchestrator(t, WithChannelTimeout(time.Minute))
	fc.keyword.SearchFunc = func(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
		<-release
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := o.Run(ctx, searchContext("q", 5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
