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


package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const (
	DefaultMaxResults  = 5
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 300

	DefaultGenerateAttempts  = 3
	DefaultGenerateBaseDelay = time.Second
	DefaultCallTimeout       = 120 * time.Second
)

// FullQuery is a question about a whole document.
type FullQuery struct {
	DocumentID core.ID
	Question   string
	// MaxResults caps the retrieved passages. Values below one use
	// DefaultMaxResults.
	MaxResults  int
	Temperature float64
}

// NewFullQuery returns a query with the default result count and
// temperature.
func NewFullQuery(documentID core.ID, question string) *FullQuery {
	return &FullQuery{
		DocumentID:  documentID,
		Question:    question,
		MaxResults:  DefaultMaxResults,
		Temperature: DefaultTemperature,
	}
}

// Retrieval is the part of a Retriever the service needs.
type Retrieval interface {
	Retrieve(ctx context.Context, documentID core.ID, question string, limit int) ([]*core.SearchResult, error)
}

// Service answers questions with retrieval-augmented generation.
type Service struct {
	retriever Retrieval
	generator ai.Generator
	documents storage.DocumentStore
	monitor   QueryMonitor

	maxTokens int
	attempts    int
	baseDelay   time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMaxTokens caps the generated answer length.
func WithMaxTokens(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return fmt.Errorf("%w: max tokens must be positive", core.ErrConfiguration)
		}
		s.maxTokens = n
		return nil
	}
}

// WithMonitor observes every query. A nil monitor disables observation.
func WithMonitor(m QueryMonitor) Option {
	return func(s *Service) error {
		if m == nil {
			m = &noopMonitor{}
		}
		s.monitor = m
		return nil
	}
}

// WithRetry sets the generation attempt budget and the delay before the
// second attempt.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Service) error {
		if attempts < 1 {
			return fmt.Errorf("%w: generation attempts must be positive", core.ErrConfiguration)
		}
		s.attempts = attempts
		s.baseDelay = max(baseDelay, 0)
		return nil
	}
}

// WithCallTimeout bounds each generation attempt. An attempt that runs out
// of time is retried like any other transient failure. Zero disables the
// bound.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("%w: call timeout cannot be negative", core.ErrConfiguration)
		}
		s.callTimeout = d
		return nil
	}
}

// NewService creates a new RAG service.
func NewService(retriever Retrieval, generator ai.Generator, documents storage.DocumentStore, opts ...Option) (*Service, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}

	s := &Service{
		retriever:   retriever,
		generator:   generator,
		documents:   documents,
		monitor:     &noopMonitor{},
		maxTokens:   DefaultMaxTokens,
		attempts:    DefaultGenerateAttempts,
		baseDelay:   DefaultGenerateBaseDelay,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "rag")
	return s, nil
}

// QueryFull answers a question from the passages of one document. When
// nothing is retrieved the answer is NoInformationAnswer and the
// generator is not called.
func (s *Service) QueryFull(ctx context.Context, q *FullQuery) (*core.Answer, error) {
	if q == nil || strings.TrimSpace(q.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()
	s.monitor.Start(core.ModeFullDocument, q.Question)

	doc, err := s.documents.GetDocument(ctx, q.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != core.StatusReady {
		s.logger.Warn("querying document that is not ready", "document", doc.Id, "status", doc.Status)
	}

	limit := q.MaxResults
	if limit < 1 {
		limit = DefaultMaxResults
	}
	results, err := s.retriever.Retrieve(ctx, doc.Id, q.Question, limit)
	if err != nil {
		s.logger.Error("error retrieving passages", "document", doc.Id, "err", err)
		return nil, err
	}
	s.monitor.AfterRetrieval(results)

	answer := &core.Answer{
		Id:         core.NewID(),
		Mode:       core.ModeFullDocument,
		DocumentId: doc.Id,
		Question:   q.Question,
	}

	if len(results) == 0 {
		answer.Text = NoInformationAnswer
		answer.Citations = []core.Citation{}
	} else {
		text, err := s.generate(ctx, BuildPrompt(JoinContext(results), q.Question), q.Temperature)
		if err != nil {
			return nil, err
		}
		answer.Text = text
		answer.Tokens = CountTokens(text)
		answer.Citations = citations(results)
	}

	answer.Latency = time.Since(start)
	s.monitor.Finish(answer)
	s.logger.Debug("answered question", "document", doc.Id, "passages", len(results), "tokens", answer.Tokens)
	return answer, nil
}

// QuerySelected answers a question using selectedText as the only context.
func (s *Service) QuerySelected(ctx context.Context, selectedText, question string, temperature float64) (*core.Answer, error) {
	if strings.TrimSpace(selectedText) == "" {
		return nil, ErrEmptySelection
	}
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()
	s.monitor.Start(core.ModeSelectedText, question)

	text, err := s.generate(ctx, BuildPrompt(selectedText, question), temperature)
	if err != nil {
		return nil, err
	}

	answer := &core.Answer{
		Id:           core.NewID(),
		Mode:         core.ModeSelectedText,
		Question:     question,
		SelectedText: selectedText,
		Text:         text,
		Citations:    []core.Citation{},
		Tokens:       CountTokens(text),
		Latency:      time.Since(start),
	}
	s.monitor.Finish(answer)
	return answer, nil
}

// generate calls the generator under the retry budget.
func (s *Service) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	s.monitor.BeforeGeneration(prompt)

	opts := ai.GenerateOptions{MaxTokens: s.maxTokens, Temperature: temperature}
	var text string
	err := ai.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		out, err := s.generator.Generate(callCtx, prompt, opts)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(out)
		return nil
	}, s.attempts, s.baseDelay)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, core.ErrConfiguration) {
			return "", err
		}
		s.logger.Error("generation failed", "attempts", s.attempts, "err", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationFailure, err)
	}
	return text, nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}
