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
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/lectern/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using an OpenAI-compatible chat API.
type Generator struct {
	client llms.Model
	logger *slog.Logger
}

func newGenerator(config *ai.Config, httpClient *http.Client) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []openai.Option{
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	}
	if httpClient != nil {
		clientOpts = append(clientOpts, openai.WithHTTPClient(httpClient))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating generation client: %w", err)
	}

	return &Generator{
		client: client,
		logger: slog.Default().With("component", "openai-generator", "model", config.GenerationModel),
	}, nil
}

// NewGenerator creates a standalone generator on the default HTTP client.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config, nil)
}

// Generate sends prompt as a single human message and returns the first
// choice.
func (g *Generator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	g.logger.Debug("generating completion", "prompt_length", len(prompt), "max_tokens", opts.MaxTokens)

	response, err := g.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		g.logger.Warn("completion failed", "err", err)
		return "", classify(err)
	}

	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return response.Choices[0].Content, nil
}
