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

import "errors"

// Error classes shared across packages. Callers classify failures with
// errors.Is against these values.
var (
	// ErrConfiguration marks errors caused by invalid parameters or setup.
	// These are never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrTerminalFailure marks an operation that exhausted its retries.
	ErrTerminalFailure = errors.New("terminal failure")

	// ErrConsistencyAnomaly marks a disagreement between the vector index
	// and the relational store. It is logged, not returned to users.
	ErrConsistencyAnomaly = errors.New("consistency anomaly")
)

var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidPassage indicates a Passage failed validation.
	ErrInvalidPassage = errors.New("invalid passage")

	// ErrInvalidID indicates an identifier is not a canonical UUID.
	ErrInvalidID = errors.New("invalid id")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidContentType indicates an unknown ContentType value.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrInvalidStrategy indicates an unknown ChunkStrategy value.
	ErrInvalidStrategy = errors.New("invalid chunk strategy")

	// ErrNegativeOrdinal indicates a passage ordinal below zero.
	ErrNegativeOrdinal = errors.New("ordinal cannot be negative")

	// ErrTerminalState indicates an attempt to move a document out of
	// READY or ERROR.
	ErrTerminalState = errors.New("document is in a terminal state")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the collection's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
