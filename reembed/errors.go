package reembed

import "errors"

var (
	// ErrRelationalRequired is returned when a relational store is not provided.
	ErrRelationalRequired = errors.New("relational store required")

	// ErrCoordinatorRequired is returned when an embedding coordinator is not provided.
	ErrCoordinatorRequired = errors.New("embedding coordinator required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")
)
