package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OCRBackend extracts text from a single page image. It is the fast,
// deterministic path used for clean typed pages without a usable text layer.
type OCRBackend interface {
	ReadImage(ctx context.Context, pngData []byte) (text string, confidence float64, warnings []string, err error)
}

// TesseractOCR shells out to the tesseract binary.
type TesseractOCR struct {
	binary string
	lang   string
	runner Runner
}

// NewTesseractOCR creates an OCR backend backed by the tesseract binary.
func NewTesseractOCR(binary, lang string) *TesseractOCR {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &TesseractOCR{binary: binary, lang: lang, runner: execRunner{}}
}

// ReadImage runs tesseract on the image. Confidence is the mean word
// confidence from TSV output; a heuristic on the decoded text fills in when
// TSV yields nothing.
func (t *TesseractOCR) ReadImage(ctx context.Context, pngData []byte) (string, float64, []string, error) {
	tmp, err := os.MkdirTemp("", "clarify-ocr-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer os.RemoveAll(tmp)

	imgPath := filepath.Join(tmp, "page.png")
	if err := os.WriteFile(imgPath, pngData, 0o600); err != nil {
		return "", 0, nil, err
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.binary, imgPath, "stdout", "-l", t.lang)
	if err != nil {
		return "", 0, []string{truncate(string(errb), 200)}, fmt.Errorf("tesseract: %w", err)
	}
	text := strings.TrimSpace(string(out))

	conf, warns := t.tsvConfidence(ctx, imgPath)
	if conf == 0 {
		conf = heuristicConfidence(text)
	}
	return text, conf, warns, nil
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *TesseractOCR) tsvConfidence(ctx context.Context, imgPath string) (float64, []string) {
	out, errb, err := t.runner.Run(ctx, t.binary, imgPath, "stdout", "-l", t.lang, "tsv")
	if err != nil {
		return 0, []string{truncate(string(errb), 200)}
	}
	lines := strings.Split(string(out), "\n")
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-1]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return (sum / n) / 100.0, nil
}

// heuristicConfidence estimates quality from decoded text characteristics.
func heuristicConfidence(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	score := 0.3
	if len(trimmed) > 120 {
		score += 0.2
	}
	letters, total := 0, 0
	for _, r := range trimmed {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == ' ' {
			letters++
		}
	}
	if total > 0 && float64(letters)/float64(total) > 0.7 {
		score += 0.3
	}
	if strings.Count(trimmed, " ") > 10 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
