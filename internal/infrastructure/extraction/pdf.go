package extraction

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// extractPlainText is the primary tier: the parser's own text ordering,
// page by page.
func extractPlainText(pdfBytes []byte) (pages []domain.PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, buildPage(pageNum, text))
	}
	return pages, nil
}

// extractByRows is the fallback tier: reconstructs page text from
// row-ordered fragments, which recovers reading order on drawings where
// the plain-text stream comes out scrambled or empty.
func extractByRows(pdfBytes []byte) (pages []domain.PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var sb strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
				sb.WriteByte(' ')
			}
			sb.WriteByte('\n')
		}
		pages = append(pages, buildPage(pageNum, sb.String()))
	}
	return pages, nil
}

func buildPage(pageNum int, text string) domain.PageText {
	return domain.PageText{
		PageNumber: pageNum,
		Text:       text,
		Sheet:      detectSheet(text),
	}
}

// sheetIDPattern matches plan sheet numbers such as "A-101", "S2.01",
// "E1.1" or "MP-3".
var sheetIDPattern = regexp.MustCompile(`^[A-Z]{1,2}[-.]?\d{1,3}(\.\d{1,2})?$`)

var disciplines = map[byte]string{
	'A': "architectural",
	'S': "structural",
	'E': "electrical",
	'M': "mechanical",
	'P': "plumbing",
	'C': "civil",
	'L': "landscape",
	'F': "fire_protection",
}

// detectSheet scans the first lines of a page for a sheet number in the
// title-block position and derives the discipline from its prefix.
func detectSheet(text string) *domain.SheetRef {
	lines := strings.Split(text, "\n")
	limit := 8
	if len(lines) < limit {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		candidate := strings.TrimSpace(lines[i])
		if candidate == "" || !sheetIDPattern.MatchString(candidate) {
			continue
		}
		ref := &domain.SheetRef{ID: candidate}
		if d, ok := disciplines[candidate[0]]; ok {
			ref.Discipline = d
		}
		if i+1 < len(lines) {
			title := strings.TrimSpace(lines[i+1])
			if title != "" && len(title) <= 60 && !sheetIDPattern.MatchString(title) {
				ref.Title = title
			}
		}
		return ref
	}
	return nil
}
