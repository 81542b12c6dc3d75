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
	"fmt"
	"strings"
)

// ValidateDocument checks that a Document has a usable id, content type and
// chunk strategy.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if _, err := ParseID(string(doc.Id)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if err := ValidateContentType(doc.ContentType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if err := ValidateChunkStrategy(doc.ChunkStrategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidatePassage checks that a Passage is storable.
func ValidatePassage(p *Passage) error {
	if p == nil {
		return fmt.Errorf("%w: passage is nil", ErrInvalidPassage)
	}

	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrEmptyContent)
	}

	if _, err := ParseID(string(p.Id)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, err)
	}

	if p.Ordinal < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrNegativeOrdinal)
	}

	return nil
}

// ValidateContentType rejects unknown content types.
func ValidateContentType(ct ContentType) error {
	switch ct {
	case ContentTypePDF, ContentTypeHTML, ContentTypeText, ContentTypeURL:
		return nil
	}
	return fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrInvalidContentType, ct)
}

// ValidateChunkStrategy rejects unknown chunk strategies.
func ValidateChunkStrategy(s ChunkStrategy) error {
	switch s {
	case ChunkFixed, ChunkOverlapping, ChunkSemantic:
		return nil
	}
	return fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrInvalidStrategy, s)
}

// ValidateTransition enforces PROCESSING -> {READY, ERROR}. Terminal
// states are final.
func ValidateTransition(from, to DocumentStatus) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, from, to)
	}
	if from == StatusProcessing && (to == StatusProcessing || to.Terminal()) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidDocument, from, to)
}
