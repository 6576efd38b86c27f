package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/studyguide/internal/config"
	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/llm"
	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/pipeline"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/store"
)

// ChapterReader is the read side of the chapter store.
type ChapterReader interface {
	Get(ctx context.Context, id uuid.UUID) (*store.ChapterRecord, error)
	ListByGuide(ctx context.Context, guideID uuid.UUID) ([]store.ChapterRecord, error)
	List(ctx context.Context, limit int) ([]store.ChapterRecord, error)
}

// Server is the HTTP API server for studyguide.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	chapters     ChapterReader
	renderer     *render.Renderer
	parser       *guide.Parser
	stats        *llm.Stats
	log          *logger.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, chapters ChapterReader, renderer *render.Renderer, stats *llm.Stats, log *logger.Logger, cfg config.Config) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		orchestrator: orch,
		chapters:     chapters,
		renderer:     renderer,
		parser:       guide.NewParser(log),
		stats:        stats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(Metrics)

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.StudyguideAPIKey, s.log))

		r.Post("/api/guides", s.handleCreateGuide)
		r.Get("/api/guides/{guideID}/status", s.handleGuideStatus)
		r.Get("/api/guides/{guideID}/diagram.png", s.handleGuideDiagram)

		r.Post("/api/parse", s.handleParse)

		r.Get("/api/chapters", s.handleListChapters)
		r.Get("/api/chapters/{id}", s.handleGetChapter)
		r.Get("/api/chapters/{id}/page", s.handleChapterPage)
		r.Get("/api/chapters/{id}/docx", s.handleChapterDOCX)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
