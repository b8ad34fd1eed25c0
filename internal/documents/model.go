package documents

import "time"

// Document is one uploaded file attached to an analysis. ExtractedText and
// Pages are filled in by the ingestion stage; pages are separated by form
// feeds so the page structure survives the pipeline's pause points.
type Document struct {
	ID            string     `json:"id"`
	AnalysisID    string     `json:"analysisId"`
	FileName      string     `json:"fileName"`
	StorageKey    string     `json:"-"`
	MimeType      string     `json:"mimeType"`
	SizeBytes     int64      `json:"sizeBytes"`
	Position      int        `json:"position"`
	PageCount     int        `json:"pageCount,omitempty"`
	ExtractedText string     `json:"-"`
	Pages         []PageInfo `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// PageInfo records how one page's text was produced. It rides along with
// ExtractedText so chunking keeps per-page provenance after a pause.
type PageInfo struct {
	ContentType string  `json:"contentType"`
	Confidence  float64 `json:"confidence"`
}

// PageSeparator joins page texts inside ExtractedText.
const PageSeparator = "\n\f\n"
