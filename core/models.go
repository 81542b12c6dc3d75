package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for domain entities in canonical UUID text form.
type ID string

// passageNamespace scopes content-derived passage ids.
var passageNamespace = uuid.MustParse("6f1c2a9e-3b7d-5e84-a0c1-52d9e7f4b318")

// NewID returns a random identifier for documents and queries.
func NewID() ID {
	return ID(uuid.NewString())
}

// IDFromContent derives a passage id from its text using BLAKE2b hashing.
// The result depends on the text only, so identical text always yields
// the same id regardless of the owning document.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(32, nil)
	return ID(uuid.NewHash(h, passageNamespace, []byte(text), 5).String())
}

// ParseID validates s and returns it in canonical lower-case form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(u.String()), nil
}

func (id ID) String() string {
	return string(id)
}

// ContentType identifies the source format of a document.
type ContentType string

const (
	ContentTypePDF  ContentType = "PDF"
	ContentTypeHTML ContentType = "HTML"
	ContentTypeText ContentType = "TEXT"
	ContentTypeURL  ContentType = "URL"
)

// DocumentStatus tracks where a document is in its ingestion lifecycle.
type DocumentStatus string

const (
	// StatusProcessing is the initial state.
	StatusProcessing DocumentStatus = "PROCESSING"
	// StatusReady means every passage has been stored.
	StatusReady DocumentStatus = "READY"
	// StatusError means ingestion stopped with an error message.
	StatusError DocumentStatus = "ERROR"
)

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// ChunkStrategy selects how document text is split into passages.
type ChunkStrategy string

const (
	ChunkFixed       ChunkStrategy = "fixed"
	ChunkOverlapping ChunkStrategy = "overlapping"
	ChunkSemantic    ChunkStrategy = "semantic"
)

// QueryMode distinguishes whole-document questions from questions about a
// user selection.
type QueryMode string

const (
	ModeFullDocument QueryMode = "FULL_DOCUMENT"
	ModeSelectedText QueryMode = "SELECTED_TEXT"
)

// Metadata keys attached to every passage.
const (
	MetaCreatedAt     = "created_at"
	MetaSource        = "source"
	MetaChunkStrategy = "chunk_strategy"
	MetaContentType   = "content_type"
)

// Document is one ingested source.
type Document struct {
	Id              ID
	Title           string
	ContentType     ContentType
	ChunkStrategy   ChunkStrategy
	Source          string // file name or URL
	Status          DocumentStatus
	TotalChunks     int
	ProcessedChunks int
	Error           string // set only when Status is StatusError
	InsertedAt      time.Time
	UpdatedAt       time.Time
}

// Passage is a contiguous span of document text, the unit of retrieval.
type Passage struct {
	Id         ID
	DocumentId ID
	Ordinal    int
	Text       string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// IndexEntry is what the vector index stores for one passage.
type IndexEntry struct {
	PassageId  ID
	DocumentId ID
	Ordinal    int
	Vector     []float32
}

// SimilarityMatch is a raw hit from the vector index.
type SimilarityMatch struct {
	PassageId  ID
	DocumentId ID
	Ordinal    int
	Score      float32
}

// SearchResult is a hit hydrated with passage text.
type SearchResult struct {
	Passage *Passage
	Score   float32
}

// Citation references a passage that supported an answer.
type Citation struct {
	PassageId ID
	Preview   string
	Score     float32
}

// Answer records one question and its generated response.
type Answer struct {
	Id           ID
	Mode         QueryMode
	DocumentId   ID
	Question     string
	SelectedText string
	Text         string
	Citations    []Citation
	Latency      time.Duration
	Tokens       int
}

// StatusReport is the externally visible progress of a document.
type StatusReport struct {
	DocumentId      ID
	Status          DocumentStatus
	TotalChunks     int
	ProcessedChunks int
	Error           string
}

// Report summarizes the document's status.
func (d *Document) Report() *StatusReport {
	return &StatusReport{
		DocumentId:      d.Id,
		Status:          d.Status,
		TotalChunks:     d.TotalChunks,
		ProcessedChunks: d.ProcessedChunks,
		Error:           d.Error,
	}
}
