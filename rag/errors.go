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
	"errors"
	"fmt"

	"github.com/poiesic/lectern/core"
)

var (
	// ErrCoordinatorRequired is returned when an embedding coordinator is not provided.
	ErrCoordinatorRequired = errors.New("embedding coordinator required")

	// ErrStoreRequired is returned when a dual store is not provided.
	ErrStoreRequired = errors.New("dual store required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptySelection is returned for a blank selected text.
	ErrEmptySelection = errors.New("selected text is empty")

	// ErrGenerationFailure is returned once generation retries are exhausted.
	ErrGenerationFailure = fmt.Errorf("generation failure: %w", core.ErrTerminalFailure)
)
