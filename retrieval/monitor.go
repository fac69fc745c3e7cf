package retrieval

import "github.com/poiesic/ragrouter/core"

// Monitor provides hooks to observe a retrieval.
// Implement this interface to trace intermediate results of each stage.
type Monitor interface {
	Start(requestID, query string)
	AfterClassification(intents []core.NodeScore)
	AfterChannels(results []core.SearchChannelResult)
	AfterPostProcessing(chunks []core.RetrievedChunk)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                           {}
func (n *noopMonitor) AfterClassification(_ []core.NodeScore)      {}
func (n *noopMonitor) AfterChannels(_ []core.SearchChannelResult)  {}
func (n *noopMonitor) AfterPostProcessing(_ []core.RetrievedChunk) {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)              {}
