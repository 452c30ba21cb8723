package domain

type ExtractionMethod string

const (
	// MethodText is the primary full-document text parse.
	MethodText ExtractionMethod = "text"
	// MethodLayout is the row-ordered fallback parse.
	MethodLayout ExtractionMethod = "layout"
	// MethodOCR is the last-resort remote OCR pass.
	MethodOCR ExtractionMethod = "ocr"
	// MethodNone means no tier produced any pages.
	MethodNone ExtractionMethod = "none"
)

// SheetRef identifies the plan sheet a page belongs to, when a sheet
// number could be detected in the page text (e.g. "A-101", "S2.01").
type SheetRef struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Discipline string `json:"discipline,omitempty"`
}

// PageText is the per-page output of extraction. It is never persisted;
// chunking consumes it.
type PageText struct {
	PageNumber int
	Text       string
	Sheet      *SheetRef
}

type ExtractionResult struct {
	Method   ExtractionMethod
	Pages    []PageText
	Warnings []string
}

// TotalChars returns the accumulated character count across all pages.
func (r ExtractionResult) TotalChars() int {
	total := 0
	for _, p := range r.Pages {
		total += len(p.Text)
	}
	return total
}

// AvgCharsPerPage is the extraction quality score a tier is judged by.
func (r ExtractionResult) AvgCharsPerPage() float64 {
	if len(r.Pages) == 0 {
		return 0
	}
	return float64(r.TotalChars()) / float64(len(r.Pages))
}
