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
	"sync"
	"time"
)

// DegradedKind classifies a non-fatal failure.
type DegradedKind string

const (
	// ClassificationDegraded means the scorer failed or timed out; routing fell back to no intents.
	ClassificationDegraded DegradedKind = "classification_degraded"
	// ChannelDegraded means one channel invocation failed or timed out.
	ChannelDegraded DegradedKind = "channel_degraded"
	// RerankDegraded means reranking failed and dedup order was kept.
	RerankDegraded DegradedKind = "rerank_degraded"
	// ConfigurationError means an intent node is misconfigured for the requested channel.
	ConfigurationError DegradedKind = "configuration_error"
	// StageDegraded means a post-processing stage failed and was passed through.
	StageDegraded DegradedKind = "stage_degraded"
)

// DegradedEvent records one absorbed failure.
type DegradedEvent struct {
	Kind   DegradedKind
	Source string
	Err    string
	At     time.Time
}

// Degradations is an append-only, concurrency-safe event list scoped to one request.
type Degradations struct {
	mu     sync.Mutex
	events []DegradedEvent
}

// NewDegradations creates an empty recorder.
func NewDegradations() *Degradations {
	return &Degradations{}
}

// Record appends an event.
func (d *Degradations) Record(kind DegradedKind, source string, err error) {
	ev := DegradedEvent{
		Kind:   kind,
		Source: source,
		At:     time.Now().UTC(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

// Events returns a copy of the recorded events in recording order.
func (d *Degradations) Events() []DegradedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DegradedEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Has reports whether an event of the given kind was recorded.
func (d *Degradations) Has(kind DegradedKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range d.events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}
