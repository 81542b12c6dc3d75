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


// Package openai answers lectern's embedding and generation calls through
// langchaingo's OpenAI client, so it works against OpenAI itself or any
// server speaking the same API (Ollama, vLLM, LocalAI).
//
// The provider's embedder and generator share one HTTP transport. API
// rejections that a retry cannot fix (400, 401, 403, 404, 422) come back
// wrapping core.ErrConfiguration; everything else is left for the caller's
// retry loop.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithGenerationModel("qwen2.5:7b"),
//	))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	answer, err := provider.Generator().Generate(ctx, prompt, ai.GenerateOptions{MaxTokens: 300})
package openai
