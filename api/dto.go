package api

import (
	"time"

	"github.com/poiesic/lectern/core"
)

type submitRequest struct {
	Title         string            `json:"title"`
	Source        string            `json:"source"`
	ContentType   string            `json:"content_type"`
	ChunkStrategy string            `json:"chunk_strategy"`
	Content       string            `json:"content"`
	ContentBase64 []byte            `json:"content_base64"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type submitResponse struct {
	DocumentID core.ID `json:"document_id"`
}

type statusResponse struct {
	DocumentID      core.ID `json:"document_id"`
	Status          string  `json:"status"`
	TotalChunks     int     `json:"total_chunks"`
	ProcessedChunks int     `json:"processed_chunks"`
	Error           string  `json:"error,omitempty"`
}

type documentResponse struct {
	ID              core.ID   `json:"id"`
	Title           string    `json:"title"`
	ContentType     string    `json:"content_type"`
	ChunkStrategy   string    `json:"chunk_strategy"`
	Source          string    `json:"source,omitempty"`
	Status          string    `json:"status"`
	TotalChunks     int       `json:"total_chunks"`
	ProcessedChunks int       `json:"processed_chunks"`
	Error           string    `json:"error,omitempty"`
	InsertedAt      time.Time `json:"inserted_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type listResponse struct {
	Documents []documentResponse `json:"documents"`
}

type queryRequest struct {
	Question    string   `json:"question"`
	MaxResults  int      `json:"max_results"`
	Temperature *float64 `json:"temperature"`
}

type selectedRequest struct {
	SelectedText string   `json:"selected_text"`
	Question     string   `json:"question"`
	Temperature  *float64 `json:"temperature"`
}

type citationResponse struct {
	PassageID core.ID `json:"passage_id"`
	Preview   string  `json:"preview"`
	Score     float32 `json:"score"`
}

type answerResponse struct {
	ID           core.ID            `json:"id"`
	Mode         string             `json:"mode"`
	DocumentID   core.ID            `json:"document_id,omitempty"`
	Question     string             `json:"question"`
	SelectedText string             `json:"selected_text,omitempty"`
	Answer       string             `json:"answer"`
	Citations    []citationResponse `json:"citations"`
	LatencyMs    int64              `json:"latency_ms"`
	Tokens       int                `json:"tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toStatus(r *core.StatusReport) statusResponse {
	return statusResponse{
		DocumentID:      r.DocumentId,
		Status:          string(r.Status),
		TotalChunks:     r.TotalChunks,
		ProcessedChunks: r.ProcessedChunks,
		Error:           r.Error,
	}
}

func toDocument(d *core.Document) documentResponse {
	return documentResponse{
		ID:              d.Id,
		Title:           d.Title,
		ContentType:     string(d.ContentType),
		ChunkStrategy:   string(d.ChunkStrategy),
		Source:          d.Source,
		Status:          string(d.Status),
		TotalChunks:     d.TotalChunks,
		ProcessedChunks: d.ProcessedChunks,
		Error:           d.Error,
		InsertedAt:      d.InsertedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toAnswer(a *core.Answer) answerResponse {
	citations := make([]citationResponse, len(a.Citations))
	for i, c := range a.Citations {
		citations[i] = citationResponse{PassageID: c.PassageId, Preview: c.Preview, Score: c.Score}
	}
	return answerResponse{
		ID:           a.Id,
		Mode:         string(a.Mode),
		DocumentID:   a.DocumentId,
		Question:     a.Question,
		SelectedText: a.SelectedText,
		Answer:       a.Text,
		Citations:    citations,
		LatencyMs:    a.Latency.Milliseconds(),
		Tokens:       a.Tokens,
	}
}
