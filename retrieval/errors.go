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

package retrieval

import "errors"

var (
	// ErrEmptyQuery is returned when the query is empty or only whitespace.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrTreeUnavailable is returned when no intent tree snapshot can be loaded.
	ErrTreeUnavailable = errors.New("intent tree unavailable")

	// ErrTreeSourceRequired is returned when a tree source is not provided.
	ErrTreeSourceRequired = errors.New("tree source required")

	// ErrClassifierRequired is returned when a classifier is not provided.
	ErrClassifierRequired = errors.New("classifier required")

	// ErrChannelRunnerRequired is returned when a channel runner is not provided.
	ErrChannelRunnerRequired = errors.New("channel runner required")

	// ErrPipelineRequired is returned when a post-processing pipeline is not provided.
	ErrPipelineRequired = errors.New("pipeline required")
)
