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


package openai

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/lectern/ai"
)

// Provider implements ai.AIProvider on OpenAI-compatible services. The
// embedder and generator share one HTTP transport, released by Close.
type Provider struct {
	httpClient *http.Client
	embedder   *Embedder
	generator  *Generator
	logger     *slog.Logger
}

// NewProvider validates config and creates the embedding and generation
// clients.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}

	embedder, err := newEmbedder(config, httpClient)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(config, httpClient)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost,
		"generation_host", config.GenerationHost,
		"shared_host", config.EmbeddingHost == config.GenerationHost)

	return &Provider{
		httpClient: httpClient,
		embedder:   embedder,
		generator:  generator,
		logger:     logger,
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close drops idle connections held by the shared transport.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	p.logger.Debug("provider closed")
	return nil
}
