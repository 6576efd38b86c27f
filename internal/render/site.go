package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dgallion1/studyguide/internal/guide"
)

// WriteSite writes index.html and one chapter-NN.html per chapter into dir,
// then copies the asset directory to dir/assets when it exists.
func (r *Renderer) WriteSite(dir, guideTitle string, chapters []guide.Chapter) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create site dir: %w", err)
	}

	var buf bytes.Buffer
	if err := r.Index(&buf, guideTitle, chapters); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	for i, ch := range chapters {
		n := i + 1
		page, err := NewChapterPage(guideTitle, n, ch)
		if err != nil {
			return fmt.Errorf("chapter %d: %w", n, err)
		}
		if n > 1 {
			page.Prev = ChapterFilename(n - 1)
		}
		if n < len(chapters) {
			page.Next = ChapterFilename(n + 1)
		}

		buf.Reset()
		if err := r.writePage(&buf, page); err != nil {
			return fmt.Errorf("chapter %d: %w", n, err)
		}
		if err := os.WriteFile(filepath.Join(dir, ChapterFilename(n)), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write chapter %d: %w", n, err)
		}
	}

	return r.copyAssets(filepath.Join(dir, "assets"))
}

func (r *Renderer) copyAssets(dst string) error {
	if r.assetDir == "" {
		return nil
	}
	info, err := os.Stat(r.assetDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat assets: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset path %s is not a directory", r.assetDir)
	}

	return filepath.WalkDir(r.assetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.assetDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// DOCXFilename is the name of chapter n's Word export.
func DOCXFilename(n int) string {
	return fmt.Sprintf("chapter-%02d.docx", n)
}

// WriteGuide writes the HTML site into dir, one DOCX per chapter into
// dir/docx, and the structure diagram as dir/structure.<diagramFormat>.
func (r *Renderer) WriteGuide(dir, guideTitle string, chapters []guide.Chapter, diagramFormat, fontPath string) error {
	if err := r.WriteSite(dir, guideTitle, chapters); err != nil {
		return fmt.Errorf("site: %w", err)
	}

	docxDir := filepath.Join(dir, "docx")
	if err := os.MkdirAll(docxDir, 0o755); err != nil {
		return fmt.Errorf("create docx dir: %w", err)
	}
	for i, ch := range chapters {
		name := DOCXFilename(i + 1)
		if err := writeDOCXFile(filepath.Join(docxDir, name), ch); err != nil {
			return fmt.Errorf("docx %s: %w", name, err)
		}
	}

	if _, err := WriteDiagram(chapters, dir, "structure", diagramFormat, fontPath); err != nil {
		return fmt.Errorf("diagram: %w", err)
	}
	return nil
}

func writeDOCXFile(path string, ch guide.Chapter) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := DOCX(f, ch); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
