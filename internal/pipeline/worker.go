package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/studyguide/internal/cache"
	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/llm"
	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/metrics"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/store"
)

// ChapterStore persists parsed chapters.
type ChapterStore interface {
	Save(ctx context.Context, rec *store.ChapterRecord) (*store.ChapterRecord, bool, error)
}

// WorkerOptions tunes a Worker.
type WorkerOptions struct {
	SiteDir          string
	DiagramFormat    string
	DiagramFont      string
	MaxConcurrent    int
	MaxParseAttempts int
	TokenBudgetUSD   float64
	PricePer1KTokens float64
}

// Worker processes guide generation jobs. It holds no per-job state and may
// be shared by several goroutines.
type Worker struct {
	gen      llm.Generator
	parser   *guide.Parser
	store    ChapterStore
	renderer *render.Renderer
	log      *logger.Logger
	opts     WorkerOptions
}

func NewWorker(gen llm.Generator, st ChapterStore, renderer *render.Renderer, log *logger.Logger, opts WorkerOptions) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxParseAttempts <= 0 {
		opts.MaxParseAttempts = 1
	}
	if opts.DiagramFormat == "" {
		opts.DiagramFormat = "png"
	}
	return &Worker{
		gen:      gen,
		parser:   guide.NewParser(log),
		store:    st,
		renderer: renderer,
		log:      log,
		opts:     opts,
	}
}

// chapterResult is the outcome for one topic, kept in topic order.
type chapterResult struct {
	topic      string
	completion llm.Completion
	chapter    guide.Chapter
	err        error
}

// Process runs the full generation pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "guide", job.GuideTitle)
	budget := NewBudget(w.opts.TokenBudgetUSD, w.opts.PricePer1KTokens)
	reference := job.Reference()
	results := make([]chapterResult, len(job.Topics))
	for i, t := range job.Topics {
		results[i].topic = t
	}

	// Phase 1: Generate raw chapter text with bounded concurrency.
	job.SetStatus(StatusGenerating, "generating")
	w.forEach(ctx, results, func(ctx context.Context, i int, r *chapterResult) {
		prompt := llm.BuildChapterPrompt(r.topic, i+1, reference)
		r.completion, r.err = w.generate(ctx, job, budget, prompt, false)
	})

	// Phase 2: Parse, regenerating with the cache bypassed on failure.
	job.SetStatus(StatusParsing, "parsing")
	w.forEach(ctx, results, func(ctx context.Context, i int, r *chapterResult) {
		if r.err != nil {
			return
		}
		prompt := llm.BuildChapterPrompt(r.topic, i+1, reference)
		r.chapter, r.err = w.parseWithRegeneration(ctx, job, budget, prompt, &r.completion)
		if r.err == nil {
			job.IncrGenerated()
		}
	})

	hadErrors := false
	for i, r := range results {
		if r.err != nil {
			log.Error("chapter failed", "chapter", i+1, "topic", r.topic, "error", r.err)
			job.AddError(fmt.Sprintf("chapter %d (%s): %s", i+1, r.topic, r.err))
			hadErrors = true
		}
	}
	if ctx.Err() != nil {
		w.finish(job, log, StatusFailed, "canceled")
		return
	}

	// Phase 3: Store.
	job.SetStatus(StatusStoring, "storing")
	var chapters []guide.Chapter
	for i, r := range results {
		if r.err != nil {
			continue
		}
		chapters = append(chapters, r.chapter)
		if w.store == nil {
			continue
		}
		rec, err := store.NewRecord(job.ID, r.topic, i+1, r.completion.Model, r.completion.Text, r.chapter)
		if err == nil {
			rec.GuideTitle = job.GuideTitle
			rec, _, err = w.store.Save(ctx, rec)
		}
		if err != nil {
			log.Error("store failed", "chapter", i+1, "error", err)
			job.AddError(fmt.Sprintf("store chapter %d: %s", i+1, err))
			hadErrors = true
			continue
		}
		job.AddChapter(rec.ID)
	}
	log.Info("generation complete", "chapters", len(chapters), "topics", len(results), "cost_usd", budget.Spent())

	if len(chapters) == 0 {
		w.finish(job, log, StatusFailed, "generating")
		return
	}

	// Phase 4: Render.
	if w.renderer != nil {
		job.SetStatus(StatusRendering, "rendering")
		dir := filepath.Join(w.opts.SiteDir, job.ID.String())
		if err := w.renderer.WriteGuide(dir, job.GuideTitle, chapters, w.opts.DiagramFormat, w.opts.DiagramFont); err != nil {
			log.Error("render failed", "dir", dir, "error", err)
			job.AddError(fmt.Sprintf("render: %s", err))
			hadErrors = true
		}
		job.SetOutputDir(dir)
	}

	if hadErrors {
		w.finish(job, log, StatusPartial, "done")
	} else {
		w.finish(job, log, StatusCompleted, "done")
	}
}

func (w *Worker) finish(job *Job, log *logger.Logger, status JobStatus, phase string) {
	job.SetStatus(status, phase)
	metrics.JobsTotal.WithLabelValues(string(status)).Inc()
	log.Info("job finished", "status", status)
}

// forEach runs fn for every result with at most MaxConcurrent in flight.
// fn reports failures through the result so one topic never cancels another.
func (w *Worker) forEach(ctx context.Context, results []chapterResult, fn func(ctx context.Context, i int, r *chapterResult)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.MaxConcurrent)
	for i := range results {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				if results[i].err == nil {
					results[i].err = err
				}
				return nil
			}
			fn(gctx, i, &results[i])
			return nil
		})
	}
	g.Wait()
}

// generate requests one chapter, charging the budget only for output this
// call paid for.
func (w *Worker) generate(ctx context.Context, job *Job, budget *Budget, prompt string, bypass bool) (llm.Completion, error) {
	if budget.Exceeded() {
		return llm.Completion{}, ErrBudgetExceeded
	}
	if bypass {
		ctx = cache.Bypass(ctx)
	}
	comp, err := w.gen.Complete(ctx, llm.Request{
		Model:        job.Model,
		Prompt:       prompt,
		SystemPrompt: llm.SystemPrompt,
	})
	if err != nil {
		return llm.Completion{}, err
	}
	if comp.Billable() {
		tokens := comp.TotalTokens()
		job.AddUsage(tokens, budget.Charge(tokens))
	}
	return comp, nil
}

// parseWithRegeneration parses comp and, on a parse failure, asks for a fresh
// completion until MaxParseAttempts parses have been tried. comp is updated
// to the completion that finally parsed.
func (w *Worker) parseWithRegeneration(ctx context.Context, job *Job, budget *Budget, prompt string, comp *llm.Completion) (guide.Chapter, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		ch, err := w.parser.Parse(comp.Text)
		metrics.ChapterParseTotal.WithLabelValues(parseOutcome(err)).Inc()
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if attempt >= w.opts.MaxParseAttempts {
			break
		}

		w.log.Warn("regenerating chapter after parse failure",
			"job_id", job.ID,
			"attempt", attempt+1,
			"kind", guide.KindOf(err),
		)
		next, err := w.generate(ctx, job, budget, prompt, true)
		if err != nil {
			return guide.Chapter{}, fmt.Errorf("regenerate: %w", errors.Join(err, lastErr))
		}
		*comp = next
	}
	return guide.Chapter{}, lastErr
}

func parseOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(guide.KindOf(err))
}
