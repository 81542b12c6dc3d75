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


// Package extract turns raw PDF, HTML and plain-text payloads into
// normalized text ready for chunking.
package extract

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/poiesic/lectern/core"
)

// DefaultMaxSize is the largest payload accepted, 50 MiB.
const DefaultMaxSize int64 = 50 << 20

var (
	// ErrTooLarge is returned for payloads above the size limit.
	ErrTooLarge = errors.New("payload exceeds maximum size")

	// ErrNoText is returned when extraction finds no usable text.
	ErrNoText = errors.New("no text could be extracted")

	// ErrMalformed wraps parser failures.
	ErrMalformed = errors.New("malformed document")
)

// Content is the result of extraction.
type Content struct {
	Title string
	Text  string
}

// Extractor dispatches on content type. The zero value is not usable; call
// New.
type Extractor struct {
	maxSize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxSize overrides DefaultMaxSize. Values <= 0 are ignored.
func WithMaxSize(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxSize = n
		}
	}
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses data according to ct and returns normalized text. URL
// content is expected to be the fetched HTML body.
func (e *Extractor) Extract(ct core.ContentType, data []byte) (*Content, error) {
	if int64(len(data)) > e.maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), e.maxSize)
	}

	var (
		content *Content
		err     error
	)
	switch ct {
	case core.ContentTypePDF:
		content, err = PDF(data)
	case core.ContentTypeHTML, core.ContentTypeURL:
		content, err = HTML(data)
	case core.ContentTypeText:
		content, err = plainText(data)
	default:
		return nil, core.ValidateContentType(ct)
	}
	if err != nil {
		return nil, err
	}

	content.Text = Normalize(content.Text)
	if content.Text == "" {
		return nil, ErrNoText
	}
	return content, nil
}

func plainText(data []byte) (*Content, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrMalformed)
	}
	return &Content{Text: string(data)}, nil
}
