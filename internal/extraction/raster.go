package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clarify-backend/internal/shared/telemetry"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		telemetry.Warn("exec failed", map[string]any{
			"cmd":         name,
			"args":        strings.Join(args, " "),
			"duration_ms": time.Since(start).Milliseconds(),
			"error":       err.Error(),
			"stderr":      truncate(errb.String(), 8<<10),
		})
	}
	return out.Bytes(), errb.Bytes(), err
}

// Rasterizer renders PDF pages to PNG images.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfData []byte) ([][]byte, error)
}

// PopplerRasterizer shells out to pdftoppm.
type PopplerRasterizer struct {
	binary string
	dpi    int
	runner Runner
}

// NewPopplerRasterizer creates a rasterizer backed by the pdftoppm binary.
func NewPopplerRasterizer(binary string, dpi int) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &PopplerRasterizer{binary: binary, dpi: dpi, runner: execRunner{}}
}

// Rasterize renders each page of the PDF to a PNG, in page order.
func (r *PopplerRasterizer) Rasterize(ctx context.Context, pdfData []byte) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "clarify-pp-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(inPath, pdfData, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.binary, "-r", fmt.Sprintf("%d", r.dpi), "-png", inPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 200))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)
	}
	return pages, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
