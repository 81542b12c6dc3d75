package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrDualStoreRequired is returned when a dual store is not provided.
	ErrDualStoreRequired = errors.New("dual store required")

	// ErrCoordinatorRequired is returned when an embedding coordinator is not provided.
	ErrCoordinatorRequired = errors.New("embedding coordinator required")

	// ErrPipelineRequired is returned when a crawler gets no pipeline.
	ErrPipelineRequired = errors.New("pipeline required")

	// ErrLedgerRequired is returned when a crawler gets no ledger.
	ErrLedgerRequired = errors.New("ledger required")

	// ErrDiscovererRequired is returned when a crawler gets no discoverer.
	ErrDiscovererRequired = errors.New("discoverer required")

	// ErrFetcherRequired is returned when a URL must be fetched but no
	// fetcher is configured.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrEmptyRequest is returned for a request with no content.
	ErrEmptyRequest = errors.New("request has no content")

	// ErrIncompleteStore is recorded on a document when some passages
	// never reached both stores.
	ErrIncompleteStore = errors.New("not all passages were stored")
)
