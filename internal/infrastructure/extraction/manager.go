package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

type Config struct {
	// QualityThreshold is the minimum average extracted characters per
	// page a tier must reach to be accepted without escalation.
	QualityThreshold float64
	TextTimeout      time.Duration
	LayoutTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		QualityThreshold: 50,
		TextTimeout:      3 * time.Minute,
		LayoutTimeout:    60 * time.Second,
	}
}

// OCRRunner is the last-resort tier; nil disables it.
type OCRRunner interface {
	Recognize(ctx context.Context, pdfBytes []byte) ([]domain.PageText, error)
}

type tierFunc func(pdfBytes []byte) ([]domain.PageText, error)

// Manager escalates through extraction tiers until a page-text quality
// bar is met. Individual tier failures become warnings, never errors;
// the caller decides what an empty result means.
type Manager struct {
	cfg    Config
	ocr    OCRRunner
	logger *slog.Logger

	textTier   tierFunc
	layoutTier tierFunc
}

func NewManager(cfg Config, ocr OCRRunner, logger *slog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = def.TextTimeout
	}
	if cfg.LayoutTimeout <= 0 {
		cfg.LayoutTimeout = def.LayoutTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg,
		ocr:        ocr,
		logger:     logger,
		textTier:   extractPlainText,
		layoutTier: extractByRows,
	}
}

func (m *Manager) Extract(ctx context.Context, pdfBytes []byte) (domain.ExtractionResult, error) {
	result := domain.ExtractionResult{Method: domain.MethodNone}

	pages, err := m.runTier(ctx, domain.MethodText, m.cfg.TextTimeout, pdfBytes, m.textTier)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("text extraction failed: %v", err))
	} else {
		result.Method = domain.MethodText
		result.Pages = pages
	}

	if result.AvgCharsPerPage() < m.cfg.QualityThreshold {
		pages, err := m.runTier(ctx, domain.MethodLayout, m.cfg.LayoutTimeout, pdfBytes, m.layoutTier)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("layout extraction failed: %v", err))
		default:
			// The fallback replaces the current best only when it
			// scores strictly higher.
			candidate := domain.ExtractionResult{Method: domain.MethodLayout, Pages: pages}
			if candidate.AvgCharsPerPage() > result.AvgCharsPerPage() {
				result.Method = domain.MethodLayout
				result.Pages = pages
			}
		}
	}

	if result.AvgCharsPerPage() < m.cfg.QualityThreshold && m.ocr != nil {
		m.mergeOCR(ctx, pdfBytes, &result)
	}

	if len(result.Pages) == 0 {
		result.Method = domain.MethodNone
		result.Warnings = append(result.Warnings, "all extraction tiers produced zero pages")
	} else if result.TotalChars() == 0 {
		result.Warnings = append(result.Warnings, "extraction produced zero characters of text")
	}

	return result, nil
}

func (m *Manager) runTier(ctx context.Context, method domain.ExtractionMethod, timeout time.Duration, pdfBytes []byte, fn tierFunc) ([]domain.PageText, error) {
	type outcome struct {
		pages []domain.PageText
		err   error
	}

	start := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		pages, err := fn(pdfBytes)
		ch <- outcome{pages: pages, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		// The parse goroutine keeps running to completion; its result
		// is discarded.
		return nil, fmt.Errorf("tier timed out after %s", timeout)
	case out = <-ch:
	}
	if out.err != nil {
		return nil, out.err
	}

	chars := 0
	for _, p := range out.pages {
		chars += len(p.Text)
	}
	m.logger.Info("extraction_tier_complete",
		"method", string(method),
		"pages", len(out.pages),
		"chars", chars,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return out.pages, nil
}

// mergeOCR folds OCR output into the best result so far. OCR text is
// prepended per page rather than replacing it: OCR may cover pages the
// earlier tiers partially parsed.
func (m *Manager) mergeOCR(ctx context.Context, pdfBytes []byte, result *domain.ExtractionResult) {
	start := time.Now()
	ocrPages, err := m.ocr.Recognize(ctx, pdfBytes)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("OCR failed: %v", err))
		return
	}

	byNumber := make(map[int]int, len(result.Pages))
	for i, p := range result.Pages {
		byNumber[p.PageNumber] = i
	}
	for _, ocrPage := range ocrPages {
		if idx, ok := byNumber[ocrPage.PageNumber]; ok {
			existing := result.Pages[idx]
			existing.Text = ocrPage.Text + "\n" + existing.Text
			if existing.Sheet == nil {
				existing.Sheet = ocrPage.Sheet
			}
			result.Pages[idx] = existing
			continue
		}
		result.Pages = append(result.Pages, ocrPage)
	}
	sort.Slice(result.Pages, func(i, j int) bool {
		return result.Pages[i].PageNumber < result.Pages[j].PageNumber
	})

	result.Method = domain.MethodOCR
	result.Warnings = append(result.Warnings, fmt.Sprintf("OCR tier merged %d pages (text tiers below quality threshold)", len(ocrPages)))
	m.logger.Info("extraction_tier_complete",
		"method", string(domain.MethodOCR),
		"pages", len(ocrPages),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
}
