package extraction

import (
	"context"
	"fmt"
	"strings"

	"clarify-backend/internal/llm"
	"clarify-backend/internal/shared/metrics"
	"clarify-backend/internal/shared/telemetry"
)

// FailedPageSentinel marks a page whose every extraction path failed. The
// page entry stays in the result so downstream stages see the gap instead of
// a silently shorter document.
const FailedPageSentinel = "[extraction failed]"

// MinTextLayerChars is the minimum trimmed text-layer length for a page to
// skip OCR. Shorter layers usually mean a scanned page with stray metadata
// text.
const MinTextLayerChars = 100

const textLayerConfidence = 0.95

// ContentType tags how a page's text was produced.
const (
	ContentTypeText   = "text"
	ContentTypeOCR    = "ocr"
	ContentTypeVision = "vision"
)

// Page is the extraction outcome for a single page.
type Page struct {
	PageNumber   int
	Text         string
	ContentTypes []string
	Confidence   float64
}

// Result aggregates per-page outcomes for one document.
type Result struct {
	Pages             []Page
	OverallConfidence float64
	Warnings          []string
}

// Text joins page texts with form feeds, preserving page order.
func (r Result) Text() string {
	parts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\f\n")
}

// ExtractionError means the document could not be parsed as a paginated
// document at all. It is terminal for the analysis and never retried.
type ExtractionError struct {
	FileName string
	Cause    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract document %s: %v", e.FileName, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Engine extracts text from PDF documents, routing each page between a fast
// text-layer/OCR path and a vision path based on image quality.
type Engine struct {
	rasterizer Rasterizer
	vision     llm.VisionReader
	ocr        OCRBackend

	readTextLayer func([]byte) ([]string, error)
}

// NewEngine builds an extraction engine. rasterizer, vision and ocr are each
// optional; missing collaborators disable their path and the engine degrades
// to whatever remains.
func NewEngine(rasterizer Rasterizer, vision llm.VisionReader, ocr OCRBackend) *Engine {
	return &Engine{rasterizer: rasterizer, vision: vision, ocr: ocr, readTextLayer: pageTexts}
}

// Extract processes one document. Page failures degrade that page only; the
// whole document fails only when it cannot be parsed at all.
func (e *Engine) Extract(ctx context.Context, fileName string, data []byte) (Result, error) {
	texts, parseErr := e.readTextLayer(data)

	var images [][]byte
	var warnings []string
	if e.rasterizer != nil {
		var rasterErr error
		images, rasterErr = e.rasterizer.Rasterize(ctx, data)
		if rasterErr != nil {
			images = nil
			warnings = append(warnings, fmt.Sprintf("rasterization unavailable: %v", rasterErr))
		}
	}

	if parseErr != nil && len(images) == 0 {
		return Result{}, &ExtractionError{FileName: fileName, Cause: parseErr}
	}

	numPages := len(texts)
	if len(images) > numPages {
		numPages = len(images)
	}
	if numPages == 0 {
		return Result{}, &ExtractionError{FileName: fileName, Cause: fmt.Errorf("document has no pages")}
	}

	result := Result{Pages: make([]Page, 0, numPages), Warnings: warnings}
	var confSum float64
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var text string
		if i < len(texts) {
			text = texts[i]
		}
		var png []byte
		if i < len(images) {
			png = images[i]
		}
		page, pageWarnings := e.extractPage(ctx, i+1, text, png)
		result.Pages = append(result.Pages, page)
		result.Warnings = append(result.Warnings, pageWarnings...)
		confSum += page.Confidence
	}
	result.OverallConfidence = confSum / float64(numPages)
	return result, nil
}

func (e *Engine) extractPage(ctx context.Context, pageNumber int, textLayer string, png []byte) (Page, []string) {
	var warnings []string

	quality := Quality{Confidence: textLayerConfidence}
	if len(png) > 0 {
		q, err := AssessQuality(png)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: quality assessment failed: %v", pageNumber, err))
		} else {
			quality = q
		}
	}

	if quality.NeedsVision() && e.vision != nil && len(png) > 0 {
		res, err := e.vision.ReadPage(ctx, png, pageNumber)
		if err == nil {
			metrics.IncPagesVision(1)
			warnings = append(warnings, prefixPage(pageNumber, res.Warnings)...)
			return Page{
				PageNumber:   pageNumber,
				Text:         res.Text,
				ContentTypes: []string{ContentTypeVision},
				Confidence:   res.Confidence,
			}, warnings
		}
		warnings = append(warnings, fmt.Sprintf("page %d: vision extraction failed, falling back: %v", pageNumber, err))
		telemetry.Warn("vision fallback", map[string]any{"page": pageNumber, "error": err.Error()})
	}

	return e.fastPath(ctx, pageNumber, textLayer, png, quality, warnings)
}

func (e *Engine) fastPath(ctx context.Context, pageNumber int, textLayer string, png []byte, quality Quality, warnings []string) (Page, []string) {
	metrics.IncPagesFast(1)

	if len(strings.TrimSpace(textLayer)) >= MinTextLayerChars {
		conf := textLayerConfidence
		if quality.NeedsVision() {
			// vision was wanted but unavailable; text layer still counts,
			// at reduced confidence
			conf = quality.Confidence
		}
		return Page{
			PageNumber:   pageNumber,
			Text:         textLayer,
			ContentTypes: []string{ContentTypeText},
			Confidence:   conf,
		}, warnings
	}

	if e.ocr != nil && len(png) > 0 {
		text, conf, ocrWarnings, err := e.ocr.ReadImage(ctx, png)
		if err == nil {
			warnings = append(warnings, prefixPage(pageNumber, ocrWarnings)...)
			return Page{
				PageNumber:   pageNumber,
				Text:         text,
				ContentTypes: []string{ContentTypeOCR},
				Confidence:   conf,
			}, warnings
		}
		warnings = append(warnings, fmt.Sprintf("page %d: ocr failed: %v", pageNumber, err))
	}

	if trimmed := strings.TrimSpace(textLayer); trimmed != "" {
		// short text layer with no OCR available: keep what we have
		return Page{
			PageNumber:   pageNumber,
			Text:         textLayer,
			ContentTypes: []string{ContentTypeText},
			Confidence:   0.4,
		}, warnings
	}

	warnings = append(warnings, fmt.Sprintf("page %d: all extraction paths failed", pageNumber))
	return Page{
		PageNumber:   pageNumber,
		Text:         FailedPageSentinel,
		ContentTypes: []string{ContentTypeText},
		Confidence:   0,
	}, warnings
}

func prefixPage(pageNumber int, warnings []string) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, fmt.Sprintf("page %d: %s", pageNumber, w))
	}
	return out
}
