package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"

	"github.com/dgallion1/studyguide/internal/guide"
)

// DiagramNode is one box in the structure diagram.
type DiagramNode struct {
	ID    string
	Label string // may contain newlines
}

// DiagramCluster groups the nodes of one chapter. Edges run between
// consecutive nodes.
type DiagramCluster struct {
	Title string
	Nodes []DiagramNode
}

const emptyGuideLabel = "Empty Guide"

// BuildDiagram lays out each chapter as introduction, sections in order,
// summary, then quiz.
func BuildDiagram(chapters []guide.Chapter) []DiagramCluster {
	clusters := make([]DiagramCluster, 0, len(chapters))
	for i, ch := range chapters {
		prefix := fmt.Sprintf("ch%d", i)
		c := DiagramCluster{Title: "Chapter: " + ch.Title}
		c.Nodes = append(c.Nodes, DiagramNode{
			ID:    prefix + "_intro",
			Label: fmt.Sprintf("Introduction\n(%d words)", guide.WordCount(ch.Introduction)),
		})
		for j, s := range ch.Sections {
			c.Nodes = append(c.Nodes, DiagramNode{
				ID:    fmt.Sprintf("%s_sec%d", prefix, j),
				Label: fmt.Sprintf("Section: %s\n(%d words)", s.Heading, guide.WordCount(s.Content)),
			})
		}
		c.Nodes = append(c.Nodes,
			DiagramNode{ID: prefix + "_summary", Label: fmt.Sprintf("Summary\n(%d words)", guide.WordCount(ch.Summary))},
			DiagramNode{ID: prefix + "_quiz", Label: fmt.Sprintf("Quiz (%d Qs)", len(ch.Quiz))},
		)
		clusters = append(clusters, c)
	}
	return clusters
}

// DOT renders the diagram as Graphviz source.
func DOT(w io.Writer, chapters []guide.Chapter) error {
	var sb strings.Builder
	sb.WriteString("digraph StudyGuide {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")

	clusters := BuildDiagram(chapters)
	if len(clusters) == 0 {
		fmt.Fprintf(&sb, "  empty [label=%s];\n", dotQuote(emptyGuideLabel))
	}
	for i, c := range clusters {
		fmt.Fprintf(&sb, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&sb, "    label=%s;\n", dotQuote(c.Title))
		for _, n := range c.Nodes {
			fmt.Fprintf(&sb, "    %s [label=%s];\n", n.ID, dotQuote(n.Label))
		}
		for j := 1; j < len(c.Nodes); j++ {
			fmt.Fprintf(&sb, "    %s -> %s;\n", c.Nodes[j-1].ID, c.Nodes[j].ID)
		}
		sb.WriteString("  }\n")
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// Diagram geometry in pixels.
const (
	nodeW      = 190.0
	nodeH      = 56.0
	nodeGap    = 40.0
	clusterPad = 20.0
	titleH     = 28.0
	margin     = 24.0
	maxLabel   = 26
)

// PNG draws the diagram with one row per chapter. fontPath selects a TTF
// face; the built-in bitmap face is used when it is empty.
func PNG(w io.Writer, chapters []guide.Chapter, fontPath string) error {
	clusters := BuildDiagram(chapters)

	cols := 1
	for _, c := range clusters {
		cols = max(cols, len(c.Nodes))
	}
	rows := max(len(clusters), 1)
	clusterH := titleH + nodeH + 2*clusterPad
	width := int(2*margin + 2*clusterPad + float64(cols)*nodeW + float64(cols-1)*nodeGap)
	height := int(2*margin + float64(rows)*clusterH + float64(rows-1)*margin)

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	if fontPath != "" {
		if err := dc.LoadFontFace(fontPath, 12); err != nil {
			return fmt.Errorf("load font %s: %w", fontPath, err)
		}
	}

	if len(clusters) == 0 {
		x := (float64(width) - nodeW) / 2
		y := (float64(height) - nodeH) / 2
		drawNode(dc, x, y, emptyGuideLabel)
		return encodePNG(dc, w)
	}

	for i, c := range clusters {
		top := margin + float64(i)*(clusterH+margin)
		cw := 2*clusterPad + float64(len(c.Nodes))*nodeW + float64(len(c.Nodes)-1)*nodeGap

		dc.SetRGB(0.95, 0.96, 0.98)
		dc.DrawRoundedRectangle(margin, top, cw, clusterH, 8)
		dc.FillPreserve()
		dc.SetRGB(0.6, 0.65, 0.75)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.SetRGB(0.15, 0.2, 0.3)
		dc.DrawStringAnchored(shorten(c.Title, 80), margin+clusterPad, top+titleH/2+4, 0, 0.5)

		y := top + titleH + clusterPad
		for j, n := range c.Nodes {
			x := margin + clusterPad + float64(j)*(nodeW+nodeGap)
			drawNode(dc, x, y, n.Label)
			if j > 0 {
				drawArrow(dc, x-nodeGap, y+nodeH/2, x, y+nodeH/2)
			}
		}
	}
	return encodePNG(dc, w)
}

func drawNode(dc *gg.Context, x, y float64, label string) {
	dc.SetRGB(1, 1, 1)
	dc.DrawRoundedRectangle(x, y, nodeW, nodeH, 6)
	dc.FillPreserve()
	dc.SetRGB(0.25, 0.35, 0.55)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	lines := strings.Split(label, "\n")
	lineH := dc.FontHeight() + 4
	startY := y + nodeH/2 - lineH*float64(len(lines)-1)/2
	dc.SetRGB(0.1, 0.1, 0.1)
	for i, line := range lines {
		dc.DrawStringAnchored(shorten(line, maxLabel), x+nodeW/2, startY+float64(i)*lineH, 0.5, 0.35)
	}
}

func drawArrow(dc *gg.Context, x1, y1, x2, y2 float64) {
	dc.SetRGB(0.35, 0.35, 0.35)
	dc.SetLineWidth(1.5)
	dc.DrawLine(x1+4, y1, x2-4, y2)
	dc.Stroke()
	dc.MoveTo(x2-4, y2)
	dc.LineTo(x2-12, y2-5)
	dc.LineTo(x2-12, y2+5)
	dc.ClosePath()
	dc.Fill()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func encodePNG(dc *gg.Context, w io.Writer) error {
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// WriteDiagram renders the diagram in format ("png" or "dot") to
// dir/name.<format>, creating dir if needed, and returns the file path.
func WriteDiagram(chapters []guide.Chapter, dir, name, format, fontPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagram dir: %w", err)
	}
	path := filepath.Join(dir, name+"."+format)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create diagram file: %w", err)
	}

	switch format {
	case "png":
		err = PNG(f, chapters, fontPath)
	case "dot":
		err = DOT(f, chapters)
	default:
		err = fmt.Errorf("unsupported diagram format %q", format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
