package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

func pagesWithChars(n, charsPerPage int) []domain.PageText {
	pages := make([]domain.PageText, n)
	for i := range pages {
		pages[i] = domain.PageText{
			PageNumber: i + 1,
			Text:       strings.Repeat("x", charsPerPage),
		}
	}
	return pages
}

type ocrFake struct {
	pages []domain.PageText
	err   error
	calls int
}

func (f *ocrFake) Recognize(context.Context, []byte) ([]domain.PageText, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func newTestManager(textTier, layoutTier tierFunc, ocr OCRRunner) *Manager {
	m := NewManager(Config{QualityThreshold: 50}, ocr, nil)
	if textTier != nil {
		m.textTier = textTier
	}
	if layoutTier != nil {
		m.layoutTier = layoutTier
	}
	return m
}

func TestExtractAcceptsTextTierAboveThreshold(t *testing.T) {
	layoutCalled := false
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(4, 200), nil },
		func([]byte) ([]domain.PageText, error) { layoutCalled = true; return nil, nil },
		nil,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Method != domain.MethodText {
		t.Fatalf("method = %s, want text", result.Method)
	}
	if layoutCalled {
		t.Fatalf("layout tier ran despite text tier meeting threshold")
	}
}

func TestExtractLayoutReplacesOnlyWhenStrictlyBetter(t *testing.T) {
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(4, 30), nil },
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(4, 30), nil },
		nil,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	// Equal score: the earlier tier keeps the document.
	if result.Method != domain.MethodText {
		t.Fatalf("method = %s, want text to win the tie", result.Method)
	}
}

func TestExtractLayoutWinsWithHigherScore(t *testing.T) {
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(4, 10), nil },
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(4, 40), nil },
		nil,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Method != domain.MethodLayout {
		t.Fatalf("method = %s, want layout", result.Method)
	}
	if result.AvgCharsPerPage() != 40 {
		t.Fatalf("avg chars = %f, want 40", result.AvgCharsPerPage())
	}
}

func TestExtractMergesOCRPerPage(t *testing.T) {
	ocr := &ocrFake{pages: []domain.PageText{
		{PageNumber: 1, Text: "OCR PAGE ONE"},
		{PageNumber: 3, Text: "OCR PAGE THREE"},
	}}
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) {
			return []domain.PageText{{PageNumber: 1, Text: "thin"}}, nil
		},
		func([]byte) ([]domain.PageText, error) { return nil, errors.New("layout broken") },
		ocr,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Method != domain.MethodOCR {
		t.Fatalf("method = %s, want ocr", result.Method)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(result.Pages))
	}
	if got := result.Pages[0].Text; got != "OCR PAGE ONE\nthin" {
		t.Fatalf("page 1 merge = %q", got)
	}
	if result.Pages[1].PageNumber != 3 {
		t.Fatalf("pages not sorted: %+v", result.Pages)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "OCR") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an OCR warning, got %v", result.Warnings)
	}
}

func TestExtractSkipsOCRWithoutRunner(t *testing.T) {
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(2, 5), nil },
		func([]byte) ([]domain.PageText, error) { return nil, nil },
		nil,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	// Best-available below threshold is still accepted.
	if result.Method != domain.MethodText {
		t.Fatalf("method = %s, want text", result.Method)
	}
}

func TestExtractZeroPagesIsWarningNotError(t *testing.T) {
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return nil, errors.New("encrypted") },
		func([]byte) ([]domain.PageText, error) { return nil, errors.New("encrypted") },
		nil,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v, want graceful degradation", err)
	}
	if result.Method != domain.MethodNone {
		t.Fatalf("method = %s, want none", result.Method)
	}
	if len(result.Warnings) < 3 {
		t.Fatalf("expected warnings for both tiers plus zero pages, got %v", result.Warnings)
	}
}

func TestExtractMostlyEmptyScanTriggersOCR(t *testing.T) {
	// 10 pages, 8 blank, 2 with dense text: average lands below the
	// threshold so the OCR tier must run.
	pages := pagesWithChars(8, 0)
	pages = append(pages, domain.PageText{PageNumber: 9, Text: strings.Repeat("y", 150)})
	pages = append(pages, domain.PageText{PageNumber: 10, Text: strings.Repeat("y", 150)})

	ocr := &ocrFake{pages: []domain.PageText{{PageNumber: 1, Text: "recovered"}}}
	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pages, nil },
		func([]byte) ([]domain.PageText, error) { return nil, errors.New("no layout") },
		ocr,
	)

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ocr.calls != 1 {
		t.Fatalf("OCR calls = %d, want 1", ocr.calls)
	}
	if result.Method != domain.MethodOCR {
		t.Fatalf("method = %s, want ocr", result.Method)
	}
}

func TestExtractTierTimeout(t *testing.T) {
	m := NewManager(Config{QualityThreshold: 50, TextTimeout: 20 * time.Millisecond, LayoutTimeout: 20 * time.Millisecond}, nil, nil)
	m.textTier = func([]byte) ([]domain.PageText, error) {
		time.Sleep(200 * time.Millisecond)
		return pagesWithChars(1, 100), nil
	}
	m.layoutTier = func([]byte) ([]domain.PageText, error) { return pagesWithChars(1, 60), nil }

	result, err := m.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Method != domain.MethodLayout {
		t.Fatalf("method = %s, want layout after text tier timeout", result.Method)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "timed out") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected timeout warning, got %v", result.Warnings)
	}
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestManager(
		func([]byte) ([]domain.PageText, error) { return pagesWithChars(1, 100), nil },
		nil,
		nil,
	)
	if _, err := m.Extract(ctx, []byte("%PDF")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract() error = %v, want context.Canceled", err)
	}
}
