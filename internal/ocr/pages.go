package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"docparse-backend/internal/shared/telemetry"
)

// PageSource turns a stored document into PNG pages in reading order.
type PageSource interface {
	Load(ctx context.Context, path string) ([][]byte, error)
}

// PagesConfig controls PDF rasterization.
type PagesConfig struct {
	Pdftoppm      string        // binary name or absolute path; default "pdftoppm"
	DPI           int           // default 200
	MaxPages      int           // 0 = no limit
	RasterTimeout time.Duration // 0 = no extra deadline
}

// Pages rasterizes PDFs with pdftoppm and normalizes images to PNG.
type Pages struct {
	cfg        PagesConfig
	runner     Runner
	countPages func(path string) (int, error)
}

// NewPages builds a page source. A nil runner uses os/exec.
func NewPages(cfg PagesConfig, runner Runner) *Pages {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Pages{cfg: cfg, runner: runner, countPages: pdfPageCount}
}

// Load returns one PNG per page. A PDF with no pages yields no pages.
func (p *Pages) Load(ctx context.Context, path string) ([][]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return p.loadPDF(ctx, path)
	}
	page, err := normalizeImage(path)
	if err != nil {
		return nil, err
	}
	return [][]byte{page}, nil
}

func (p *Pages) loadPDF(ctx context.Context, path string) ([][]byte, error) {
	// The parsed count is advisory. Files with a broken /Count still render,
	// so pdftoppm always runs and decides how many pages there are.
	count, err := p.countPages(path)
	if err != nil {
		telemetry.Warn("ocr.pdf.count_failed", map[string]any{"error": err.Error()})
		count = -1
	}

	if p.cfg.RasterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RasterTimeout)
		defer cancel()
	}

	tmpDir, err := os.MkdirTemp("", "docparse-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(p.cfg.DPI), "-png"}
	if p.cfg.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(p.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, stderr, err := p.runner.Run(ctx, p.cfg.Pdftoppm, args...); err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(msg, 512))
		}
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}

	files, err := renderedPages(prefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if count > 0 {
			return nil, fmt.Errorf("pdftoppm produced no pages for a %d-page document", count)
		}
		return nil, nil
	}
	if count >= 0 && count != len(files) && (p.cfg.MaxPages <= 0 || count < p.cfg.MaxPages) {
		telemetry.Warn("ocr.pdf.count_mismatch", map[string]any{"parsed": count, "rendered": len(files)})
	}
	if p.cfg.MaxPages > 0 && len(files) > p.cfg.MaxPages {
		files = files[:p.cfg.MaxPages]
	}

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// renderedPages lists prefix-N.png files ordered by N. pdftoppm zero-pads N
// to the width of the page count, so lexical order is not enough in general.
func renderedPages(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	type numbered struct {
		path string
		n    int
	}
	items := make([]numbered, 0, len(matches))
	for _, m := range matches {
		raw := strings.TrimSuffix(strings.TrimPrefix(m, prefix+"-"), ".png")
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		items = append(items, numbered{path: m, n: n})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].n < items[j].n })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

func pdfPageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// normalizeImage returns PNG bytes for any decodable image. PNG input is passed
// through untouched.
func normalizeImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if http.DetectContentType(data) == "image/png" {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Ext(path), err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
