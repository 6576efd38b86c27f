package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/studyguide/internal/pipeline"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/source"
	"github.com/dgallion1/studyguide/internal/store"
)

type createGuideRequest struct {
	Title  string   `json:"title"`
	Topics []string `json:"topics"`
	Model  string   `json:"model,omitempty"`
}

// handleCreateGuide accepts a JSON body, or a multipart form carrying the
// same fields plus an optional reference file.
func (s *Server) handleCreateGuide(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	var req createGuideRequest
	var reference string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		req.Title = r.FormValue("title")
		req.Model = r.FormValue("model")
		for _, v := range r.MultipartForm.Value["topics"] {
			req.Topics = append(req.Topics, strings.Split(v, "\n")...)
		}

		ref, status, err := s.readReference(r)
		if err != nil {
			jsonError(w, err.Error(), status)
			return
		}
		reference = ref
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	topics := cleanTopics(req.Topics)
	if req.Title == "" {
		jsonError(w, "title is required", http.StatusBadRequest)
		return
	}
	if len(topics) == 0 {
		jsonError(w, "at least one topic is required", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(req.Title, topics, strings.TrimSpace(req.Model))
	if reference != "" {
		job.SetReference(reference)
	}

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"topics":   len(topics),
		"poll_url": fmt.Sprintf("/api/guides/%s/status", job.ID),
	})
}

// readReference extracts and trims the optional "reference" upload. It
// returns the HTTP status to use on failure.
func (s *Server) readReference(r *http.Request) (string, int, error) {
	file, header, err := r.FormFile("reference")
	if errors.Is(err, http.ErrMissingFile) {
		return "", 0, nil
	}
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("reference: %w", err)
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !source.IsSupported(filename) {
		return "", http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}

	doc, err := source.Extract(bytes.NewReader(data), filename, source.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		return "", http.StatusUnprocessableEntity, fmt.Errorf("read reference: %w", err)
	}
	excerpt := source.Excerpt(doc, s.cfg.ReferenceMaxTokens)
	s.log.Info("reference attached", "filename", filename, "passages", len(doc.Passages), "excerpt_tokens", source.EstimateTokens(excerpt))
	return excerpt, 0, nil
}

func cleanTopics(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) handleGuideStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "guideID")
	if !ok {
		return
	}
	job := s.orchestrator.GetJob(id)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleGuideDiagram renders the stored chapters of a guide as a PNG. A
// guide with no stored chapters renders the empty-guide placeholder.
func (s *Server) handleGuideDiagram(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "guideID")
	if !ok {
		return
	}
	recs, err := s.chapters.ListByGuide(r.Context(), id)
	if err != nil {
		jsonError(w, "failed to list chapters: "+err.Error(), http.StatusInternalServerError)
		return
	}
	chapters, err := store.Chapters(recs)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := render.PNG(&buf, chapters, s.cfg.DiagramFont); err != nil {
		jsonError(w, "failed to render diagram: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		jsonError(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
