package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	docxContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

type parseErrorResponse struct {
	Error    string             `json:"error"`
	Kind     guide.Kind         `json:"kind"`
	Fragment string             `json:"fragment,omitempty"`
	Fields   []guide.FieldError `json:"fields"`
}

// handleParse parses a raw model response posted as the request body.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		jsonError(w, "failed to read body: "+err.Error(), status)
		return
	}

	ch, err := s.parser.Parse(string(raw))
	if err != nil {
		resp := parseErrorResponse{
			Error:  err.Error(),
			Kind:   guide.KindOf(err),
			Fields: guide.FieldErrors(err),
		}
		var pe *guide.ParseError
		if errors.As(err, &pe) {
			resp.Fragment = pe.Fragment
		}
		if resp.Fields == nil {
			resp.Fields = []guide.FieldError{}
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var recs []store.ChapterRecord
	var err error
	if g := q.Get("guide_id"); g != "" {
		guideID, perr := uuid.Parse(g)
		if perr != nil {
			jsonError(w, "invalid guide_id", http.StatusBadRequest)
			return
		}
		recs, err = s.chapters.ListByGuide(r.Context(), guideID)
	} else {
		limit := defaultListLimit
		if v := q.Get("limit"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil || n <= 0 {
				jsonError(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxListLimit)
		}
		recs, err = s.chapters.List(r.Context(), limit)
	}
	if err != nil {
		jsonError(w, "failed to list chapters: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": recs})
}

// loadChapter resolves the {id} path parameter, writing the error response
// itself when it returns false.
func (s *Server) loadChapter(w http.ResponseWriter, r *http.Request) (*store.ChapterRecord, guide.Chapter, bool) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return nil, guide.Chapter{}, false
	}
	rec, err := s.chapters.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "chapter not found", http.StatusNotFound)
		return nil, guide.Chapter{}, false
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, guide.Chapter{}, false
	}
	ch, err := rec.Chapter()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, guide.Chapter{}, false
	}
	return rec, ch, true
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	rec, _, ok := s.loadChapter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleChapterPage(w http.ResponseWriter, r *http.Request) {
	rec, ch, ok := s.loadChapter(w, r)
	if !ok {
		return
	}
	title := rec.GuideTitle
	if title == "" {
		title = rec.Topic
	}

	var buf bytes.Buffer
	if err := s.renderer.Page(&buf, title, rec.Position, ch); err != nil {
		jsonError(w, "failed to render page: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleChapterDOCX(w http.ResponseWriter, r *http.Request) {
	rec, ch, ok := s.loadChapter(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render.DOCX(&buf, ch); err != nil {
		jsonError(w, "failed to render docx: "+err.Error(), http.StatusInternalServerError)
		return
	}
	name := render.DOCXFilename(rec.Position)
	w.Header().Set("Content-Type", docxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}
