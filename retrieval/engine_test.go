package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/poiesic/ragrouter/ai/mock"
	"github.com/poiesic/ragrouter/channel"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/intent"
	"github.com/poiesic/ragrouter/postprocess"
	"github.com/poiesic/ragrouter/storage"
	"github.com/poiesic/ragrouter/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultCollection = "kb_default"

func intentNodes() []core.IntentNode {
	return []core.IntentNode{
		{Code: "fin", Name: "财务", Level: core.LevelDomain, Enabled: true},
		{Code: "fin-invoice", Name: "发票", Level: core.LevelCategory, ParentCode: "fin", Enabled: true},
		{Code: "fin-invoice-info", Name: "发票信息", Level: core.LevelTopic, ParentCode: "fin-invoice",
			Collection: "kb_invoice", Examples: []string{"发票抬头"}, Enabled: true},
		{Code: "hr", Name: "人事", Level: core.LevelDomain, Enabled: true},
		{Code: "hr-leave", Name: "假期", Level: core.LevelCategory, ParentCode: "hr", Enabled: true},
		{Code: "hr-leave-annual", Name: "年假", Level: core.LevelTopic, ParentCode: "hr-leave",
			Collection: "kb_hr", Enabled: true},
	}
}

// recordingMonitor keeps what each stage produced.
type recordingMonitor struct {
	mu        sync.Mutex
	requestID string
	intents   []core.NodeScore
	results   []core.SearchChannelResult
	chunks    []core.RetrievedChunk
	finished  *core.RetrievalResult
}

func (m *recordingMonitor) Start(requestID, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestID = requestID
}

func (m *recordingMonitor) AfterClassification(intents []core.NodeScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = intents
}

func (m *recordingMonitor) AfterChannels(results []core.SearchChannelResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

func (m *recordingMonitor) AfterPostProcessing(chunks []core.RetrievedChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = chunks
}

func (m *recordingMonitor) Finish(result *core.RetrievalResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = result
}

func (m *recordingMonitor) channelsRun() map[core.ChannelType]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[core.ChannelType]int{}
	for _, r := range m.results {
		out[r.Channel]++
	}
	return out
}

type fixture struct {
	engine   *Engine
	provider *mock.MockProvider
	stores   *badger.MemoryStores
}

func newFixture(t *testing.T, seed bool, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	require.NoError(t, stores.Intents.SaveIntentNodes(ctx, intentNodes()...))
	if seed {
		vec := func(text string) []float32 { return mock.DeterministicVector(text, mock.DefaultDimensions) }
		invoice := "阿里巴巴发票抬头为阿里巴巴（中国）有限公司"
		require.NoError(t, stores.Vectors.AddChunks(ctx, "kb_invoice",
			storage.Chunk{ID: "inv-1", Text: invoice, Vector: vec(invoice)}))
		require.NoError(t, stores.Vectors.AddChunks(ctx, defaultCollection,
			storage.Chunk{ID: "gen-1", Text: "公司通用介绍", Vector: vec("公司通用介绍")}))
		require.NoError(t, stores.Lexical.IndexChunks(ctx,
			storage.Chunk{ID: "inv-1", Text: invoice, Collection: "kb_invoice"}))
	}

	provider := mock.NewMockProvider()

	catalog, err := intent.NewCatalog(stores.Intents)
	require.NoError(t, err)
	require.NoError(t, catalog.Refresh(ctx))

	classifier, err := intent.NewClassifier(provider.IntentScorer())
	require.NoError(t, err)

	intentDirected, err := channel.NewIntentDirected(stores.Vectors, provider.Embedder())
	require.NoError(t, err)
	keyword, err := channel.NewKeyword(stores.Lexical)
	require.NoError(t, err)
	global, err := channel.NewGlobalVector(stores.Vectors, provider.Embedder(), defaultCollection)
	require.NoError(t, err)
	orchestrator, err := channel.NewOrchestrator(intentDirected, keyword, global,
		channel.WithQueryEmbedder(provider.Embedder()))
	require.NoError(t, err)
	t.Cleanup(orchestrator.Release)

	pipeline, err := postprocess.NewDefaultPipeline(provider.Reranker(), postprocess.DefaultStageConfig())
	require.NoError(t, err)

	engine, err := NewEngine(catalog, classifier, orchestrator, pipeline, opts...)
	require.NoError(t, err)
	return &fixture{engine: engine, provider: provider, stores: stores}
}

func TestNewEngine(t *testing.T) {
	f := newFixture(t, false)
	e := f.engine

	_, err := NewEngine(nil, e.classifier, e.runner, e.pipeline)
	assert.ErrorIs(t, err, ErrTreeSourceRequired)
	_, err = NewEngine(e.trees, nil, e.runner, e.pipeline)
	assert.ErrorIs(t, err, ErrClassifierRequired)
	_, err = NewEngine(e.trees, e.classifier, nil, e.pipeline)
	assert.ErrorIs(t, err, ErrChannelRunnerRequired)
	_, err = NewEngine(e.trees, e.classifier, e.runner, nil)
	assert.ErrorIs(t, err, ErrPipelineRequired)
	_, err = NewEngine(e.trees, e.classifier, e.runner, e.pipeline, WithDefaultTopK(0))
	assert.Error(t, err)
	_, err = NewEngine(e.trees, e.classifier, e.runner, e.pipeline, WithMaxSubQuestions(-1))
	assert.Error(t, err)
	_, err = NewEngine(e.trees, e.classifier, e.runner, e.pipeline, WithLogger(nil))
	assert.Error(t, err)
}

func TestEngine_InvoiceScenario(t *testing.T) {
	f := newFixture(t, true)
	f.provider.GetMockScorer().Scores = map[string]float64{"fin-invoice-info": 0.82}
	monitor := &recordingMonitor{}

	result, err := f.engine.Execute(context.Background(), Request{Query: "阿里巴巴发票抬头", TopK: 5}, monitor)
	require.NoError(t, err)

	require.Len(t, result.Intents, 1)
	assert.Equal(t, "fin-invoice-info", result.Intents[0].Node.Code)
	assert.InDelta(t, 0.82, result.Intents[0].Score, 1e-9)

	run := monitor.channelsRun()
	assert.Equal(t, 1, run[core.ChannelIntentDirected])
	assert.Equal(t, 1, run[core.ChannelKeyword])
	assert.Equal(t, 1, run[core.ChannelGlobalVector])

	require.Len(t, result.IntentChunks, 1)
	chunks := result.IntentChunks["fin-invoice-info"]
	require.Len(t, chunks, 2)
	assert.Equal(t, "inv-1", chunks[0].ID)
	assert.Equal(t, "gen-1", chunks[1].ID)

	assert.Contains(t, result.Context, "## 财务 > 发票 > 发票信息")
	assert.Contains(t, result.Context, "[1] 阿里巴巴发票抬头为阿里巴巴（中国）有限公司")
	assert.Empty(t, result.Degraded)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, result.RequestID, monitor.requestID)
	assert.Same(t, result, monitor.finished)
}

func TestEngine_ChitChat(t *testing.T) {
	f := newFixture(t, false)
	monitor := &recordingMonitor{}

	result, err := f.engine.Execute(context.Background(), Request{Query: "你好"}, monitor)
	require.NoError(t, err)

	assert.Empty(t, result.Intents)
	run := monitor.channelsRun()
	assert.Zero(t, run[core.ChannelIntentDirected])
	assert.Equal(t, 1, run[core.ChannelKeyword])
	assert.Equal(t, 1, run[core.ChannelGlobalVector])

	assert.True(t, result.IsEmpty())
	assert.Equal(t, "", result.Context)
	assert.NotNil(t, result.IntentChunks)
	assert.Empty(t, result.IntentChunks)
	assert.Equal(t, 0, f.provider.GetMockReranker().CallCount())
}

func TestEngine_ChitChatWithGeneralKnowledge(t *testing.T) {
	f := newFixture(t, true)

	result, err := f.engine.Retrieve(context.Background(), "你好", 5)
	require.NoError(t, err)
	assert.Empty(t, result.Intents)
	require.Len(t, result.IntentChunks[core.GeneralGroup], 1)
	assert.Contains(t, result.Context, "## General")
}

func TestEngine_Validation(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.engine.Retrieve(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEngine_NoTree(t *testing.T) {
	f := newFixture(t, false)
	catalog, err := intent.NewCatalog(f.stores.Intents)
	require.NoError(t, err)
	engine, err := NewEngine(catalog, f.engine.classifier, f.engine.runner, f.engine.pipeline)
	require.NoError(t, err)

	_, err = engine.Retrieve(context.Background(), "发票", 5)
	assert.ErrorIs(t, err, ErrTreeUnavailable)
	assert.ErrorIs(t, err, intent.ErrTreeNotLoaded)
}

func TestEngine_Cancelled(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Retrieve(ctx, "发票抬头", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_SubQuestions(t *testing.T) {
	f := newFixture(t, true, WithMaxSubQuestions(1))
	scorer := f.provider.GetMockScorer()
	monitor := &recordingMonitor{}

	_, err := f.engine.Execute(context.Background(), Request{
		Query:        "发票抬头",
		SubQuestions: []string{" ", "年假怎么算", "开票流程"},
	}, monitor)
	require.NoError(t, err)

	// main question plus the first non-blank sub-question
	assert.Equal(t, 2, scorer.CallCount())
	questions := map[string]bool{}
	for _, r := range monitor.results {
		questions[r.Question] = true
	}
	assert.Equal(t, map[string]bool{"发票抬头": true, "年假怎么算": true}, questions)
}

func TestEngine_DegradedRerank(t *testing.T) {
	f := newFixture(t, true)
	f.provider.GetMockScorer().Scores = map[string]float64{"fin-invoice-info": 0.82}
	f.provider.GetMockReranker().RerankFunc = func(ctx context.Context, query string, candidates []core.RetrievedChunk, topN int) ([]core.RetrievedChunk, error) {
		return nil, errors.New("rerank service down")
	}

	result, err := f.engine.Retrieve(context.Background(), "阿里巴巴发票抬头", 1)
	require.NoError(t, err)
	require.Len(t, result.Degraded, 1)
	assert.Equal(t, core.RerankDegraded, result.Degraded[0].Kind)
	assert.Len(t, result.IntentChunks["fin-invoice-info"], 1)
}

func TestEngine_FlagsOverride(t *testing.T) {
	f := newFixture(t, true)
	f.provider.GetMockScorer().Scores = map[string]float64{"fin-invoice-info": 0.82}
	monitor := &recordingMonitor{}

	_, err := f.engine.Execute(context.Background(), Request{
		Query: "阿里巴巴发票抬头",
		Flags: &core.Flags{MarginFilter: true},
	}, monitor)
	require.NoError(t, err)
	for _, c := range monitor.chunks {
		assert.GreaterOrEqual(t, c.Score, 0.75*monitor.chunks[0].Score)
	}
}
