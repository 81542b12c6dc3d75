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


// Package ai provides abstractions for the model services used by Lectern.
//
// The package defines two capabilities, embedding and generation, plus an
// AIProvider that bundles them:
//
//   - Embedder: turns passage and question text into vectors
//   - Generator: produces an answer from a grounded prompt
//   - AIProvider: aggregates both for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external services
//
// # Constructor Return Type Pattern
//
// Public constructors in ai/openai return INTERFACE types so callers depend
// on the abstraction only:
//
//	provider, err := openai.NewProvider(config) // returns ai.AIProvider
//
// Test constructors in ai/mock return CONCRETE types so tests can inject
// behavior and assert on call counts:
//
//	emb := mock.NewMockEmbedder() // returns *mock.MockEmbedder
//	emb.EmbedTextsFunc = ...
//	count := emb.CallCount()
//
// # Retries
//
// RetryWithBackoff is the shared bounded-retry helper. Provider errors are
// treated as transient unless they wrap core.ErrConfiguration, in which
// case the retry loop stops immediately.
package ai
