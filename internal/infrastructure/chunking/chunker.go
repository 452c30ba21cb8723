package chunking

import (
	"strings"

	"github.com/google/uuid"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

const (
	DefaultMaxChunkChars = 900
	DefaultMinChunkChars = 120
)

// Chunker splits page text into sentence-aligned, length-bounded chunks.
type Chunker struct {
	MaxChars int
	MinChars int
}

func New(maxChars, minChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	if minChars < 0 {
		minChars = 0
	}
	if minChars >= maxChars {
		minChars = maxChars / 4
	}
	return &Chunker{MaxChars: maxChars, MinChars: minChars}
}

// Chunk greedily packs sentences into chunks of at most MaxChars.
// When a flush would leave a buffer shorter than MinChars, the
// overflowing sentence is folded into the previous chunk instead of
// opening an undersized one.
func (c *Chunker) Chunk(text string, cc domain.ChunkContext) []domain.TextChunk {
	sentences := splitSentences(normalizeWhitespace(text), c.MaxChars)
	if len(sentences) == 0 {
		return nil
	}

	var snippets []string
	var buf strings.Builder

	for _, sentence := range sentences {
		if buf.Len() == 0 {
			buf.WriteString(sentence)
			continue
		}
		if buf.Len()+1+len(sentence) <= c.MaxChars {
			buf.WriteByte(' ')
			buf.WriteString(sentence)
			continue
		}

		if buf.Len() < c.MinChars && len(snippets) > 0 {
			snippets[len(snippets)-1] = snippets[len(snippets)-1] + " " + sentence
			continue
		}

		snippets = append(snippets, buf.String())
		buf.Reset()
		buf.WriteString(sentence)
	}
	if buf.Len() > 0 {
		snippets = append(snippets, buf.String())
	}

	chunks := make([]domain.TextChunk, 0, len(snippets))
	for i, snippet := range snippets {
		snippet = truncate(snippet, c.MaxChars)
		if strings.TrimSpace(snippet) == "" {
			continue
		}
		page := cc.PageNumber
		chunk := domain.TextChunk{
			ID:          uuid.NewString(),
			DocumentID:  cc.DocumentID,
			PageNumber:  &page,
			SnippetText: snippet,
			Metadata: domain.ChunkMetadata{
				ContentType:    domain.ContentTypeExtractedText,
				ChunkIndex:     i,
				CharacterCount: len(snippet),
				TotalPages:     cc.TotalPages,
			},
		}
		if cc.Sheet != nil {
			chunk.Metadata.SheetID = cc.Sheet.ID
			chunk.Metadata.SheetTitle = cc.Sheet.Title
			chunk.Metadata.Discipline = cc.Sheet.Discipline
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitSentences breaks text on ./?/! boundaries. Sentences longer than
// maxChars are hard-split on word boundaries so no single sentence can
// exceed the chunk bound.
func splitSentences(text string, maxChars int) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if s == "" {
			return
		}
		sentences = append(sentences, hardSplit(s, maxChars)...)
	}

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			flush()
		}
	}
	flush()
	return sentences
}

func hardSplit(sentence string, maxChars int) []string {
	if len(sentence) <= maxChars {
		return []string{sentence}
	}

	var parts []string
	var buf strings.Builder
	for _, word := range strings.Fields(sentence) {
		if buf.Len() > 0 && buf.Len()+1+len(word) > maxChars {
			parts = append(parts, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		// A single word longer than the bound is cut outright.
		buf.WriteString(truncate(word, maxChars))
	}
	if buf.Len() > 0 {
		parts = append(parts, buf.String())
	}
	return parts
}

// truncate cuts on rune boundaries. Plan text is full of multi-byte
// symbols (degree signs, diameters, superscripts); a byte-index cut
// could split one and leave the snippet invalid UTF-8.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
