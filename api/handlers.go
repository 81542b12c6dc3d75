package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/rag"
	"github.com/poiesic/lectern/storage"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request")

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submitDocument(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	content := body.ContentBase64
	if len(content) == 0 && body.Content != "" {
		content = []byte(body.Content)
	}
	id, err := s.backend.SubmitDocument(r.Context(), &ingestion.Request{
		Title:         body.Title,
		Source:        body.Source,
		ContentType:   core.ContentType(body.ContentType),
		ChunkStrategy: core.ChunkStrategy(body.ChunkStrategy),
		Content:       content,
		Metadata:      body.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{DocumentID: id})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.backend.Documents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := listResponse{Documents: make([]documentResponse, len(docs))}
	for i, d := range docs {
		out.Documents[i] = toDocument(d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) documentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.backend.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(report))
}

func (s *Server) queryDocument(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body queryRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	q := rag.NewFullQuery(id, body.Question)
	q.MaxResults = s.maxResults
	if body.MaxResults > 0 {
		q.MaxResults = body.MaxResults
	}
	q.Temperature = s.temperature
	if body.Temperature != nil {
		q.Temperature = *body.Temperature
	}

	answer, err := s.backend.QueryFull(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnswer(answer))
}

func (s *Server) querySelected(w http.ResponseWriter, r *http.Request) {
	var body selectedRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	temperature := s.temperature
	if body.Temperature != nil {
		temperature = *body.Temperature
	}

	answer, err := s.backend.QuerySelected(r.Context(), body.SelectedText, body.Question, temperature)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnswer(answer))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// statusCode maps an error to its HTTP status. Only request validation
// failures are client errors; a configuration error surfacing from a query
// is the server's fault.
func statusCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidContentType),
		errors.Is(err, core.ErrInvalidStrategy),
		errors.Is(err, core.ErrInvalidID),
		errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrEmptyContent),
		errors.Is(err, ingestion.ErrEmptyRequest),
		errors.Is(err, extract.ErrTooLarge),
		errors.Is(err, embedding.ErrEmptyText),
		errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, rag.ErrEmptySelection):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
