package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgallion1/studyguide/internal/app"
	"github.com/dgallion1/studyguide/internal/config"
	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/pipeline"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/source"
	"github.com/dgallion1/studyguide/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studyguide",
		Short:         "Generate, parse and render study-guide chapters",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newGenerateCmd(), newParseCmd(), newRenderCmd())
	return root
}

// setup loads configuration and a logger writing to stderr-friendly output.
func setup() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newGenerateCmd() *cobra.Command {
	var (
		title     string
		topics    []string
		model     string
		reference string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a guide, one chapter per topic, and render it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" || len(topics) == 0 {
				return errors.New("--title and at least one --topic are required")
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGeneration(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()

			job := pipeline.NewJob(title, topics, model)
			if reference != "" {
				excerpt, err := readReference(reference, cfg)
				if err != nil {
					return err
				}
				job.SetReference(excerpt)
			}

			application.Worker().Process(ctx, job)
			snap := job.Snapshot()
			if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
			if snap.Status == pipeline.StatusFailed {
				return fmt.Errorf("generation failed: %d error(s)", len(snap.Progress.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "guide title")
	cmd.Flags().StringArrayVar(&topics, "topic", nil, "chapter topic (repeatable)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&reference, "reference", "", "reference document (.txt, .md, .html, .pdf, .docx)")
	return cmd
}

func readReference(path string, cfg config.Config) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	doc, err := source.Extract(f, filepath.Base(path), source.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return "", err
	}
	return source.Excerpt(doc, cfg.ReferenceMaxTokens), nil
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse raw model output (file or stdin) and print the chapter as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			ch, err := guide.ParseChapter(string(raw))
			if err != nil {
				if fields := guide.FieldErrors(err); len(fields) > 0 {
					printJSON(cmd.ErrOrStderr(), fields)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), ch)
		},
	}
}

func newRenderCmd() *cobra.Command {
	var (
		guideID string
		out     string
		title   string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a stored guide as an HTML site with DOCX files and a structure diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(guideID)
			if err != nil {
				return fmt.Errorf("invalid --guide: %w", err)
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			st, err := store.Open(cfg.DatabasePath, log)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListByGuide(context.Background(), id)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("no chapters stored for guide %s", id)
			}
			chapters, err := store.Chapters(recs)
			if err != nil {
				return err
			}
			if title == "" {
				title = recs[0].GuideTitle
			}
			if out == "" {
				out = filepath.Join(cfg.SiteDir, id.String())
			}
			if format == "" {
				format = cfg.DiagramFormat
			}

			r, err := render.NewRenderer(cfg.TemplateDir, cfg.AssetDir)
			if err != nil {
				return err
			}
			if err := r.WriteGuide(out, title, chapters, format, cfg.DiagramFont); err != nil {
				return err
			}
			log.Info("guide rendered", "dir", out, "chapters", len(chapters))
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&guideID, "guide", "", "guide (job) ID")
	cmd.Flags().StringVar(&out, "out", "", "output directory (default <site_dir>/<guide>)")
	cmd.Flags().StringVar(&title, "title", "", "guide title override")
	cmd.Flags().StringVar(&format, "diagram", "", "diagram format: png or dot")
	cmd.MarkFlagRequired("guide")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
