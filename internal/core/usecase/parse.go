package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// parsedAnalysis is one model's structured output after tolerant parsing.
type parsedAnalysis struct {
	Provider   string
	Model      string
	Items      []domain.LineItem
	Issues     []domain.Issue
	Confidence float64
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of loosely formatted model output.
// Models wrap JSON in prose, markdown fences, or return nothing at all;
// an empty response maps to an empty result rather than a parse failure.
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return `{"items":[],"issues":[],"summary":{"total_items":0}}`, nil
	}

	if m := fencedBlockRe.FindStringSubmatch(content); m != nil {
		return m[1], nil
	}

	if obj := firstBraceObject(content); obj != "" {
		return obj, nil
	}

	return "", fmt.Errorf("no JSON object in content")
}

// firstBraceObject returns the first balanced top-level {...} span,
// ignoring braces inside string literals.
func firstBraceObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func parseModelResult(result domain.ModelResult) (parsedAnalysis, error) {
	raw, err := extractJSON(result.Content)
	if err != nil {
		return parsedAnalysis{}, err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return parsedAnalysis{}, fmt.Errorf("unmarshal model output: %w", err)
	}

	parsed := parsedAnalysis{
		Provider: result.Provider,
		Model:    result.Model,
	}

	for _, rawItem := range asObjectList(payload["items"]) {
		parsed.Items = append(parsed.Items, domain.LineItem{
			Category:    stringField(rawItem, "category", "type", "trade"),
			Name:        stringField(rawItem, "name", "item", "material"),
			Description: stringField(rawItem, "description", "details"),
			Quantity:    numberField(rawItem, "quantity", "qty", "count"),
			Unit:        stringField(rawItem, "unit", "uom"),
			Confidence:  numberField(rawItem, "confidence"),
			AIProvider:  result.Provider,
			Notes:       stringField(rawItem, "notes"),
		})
	}

	for _, rawIssue := range asObjectList(payload["issues"]) {
		parsed.Issues = append(parsed.Issues, domain.Issue{
			Severity:    strings.ToLower(stringField(rawIssue, "severity", "level")),
			Category:    stringField(rawIssue, "category", "type"),
			Description: stringField(rawIssue, "description", "issue", "details"),
			Location:    stringField(rawIssue, "location", "sheet", "page"),
			Confidence:  numberField(rawIssue, "confidence"),
			AIProvider:  result.Provider,
			Notes:       stringField(rawIssue, "notes"),
		})
	}

	parsed.Confidence = deriveConfidence(payload, len(parsed.Items))
	return parsed, nil
}

// deriveConfidence scores how trustworthy a model's answer looks from
// its shape. An explicit confidence field wins; otherwise structural
// completeness earns partial credit.
func deriveConfidence(payload map[string]any, itemCount int) float64 {
	if c, ok := payload["confidence"]; ok {
		if v := asNumber(c); v > 0 {
			if v > 1 {
				v = v / 100
			}
			return clamp01(v)
		}
	}

	score := 0.3
	if _, ok := payload["items"]; ok {
		score += 0.2
	}
	if _, ok := payload["summary"]; ok {
		score += 0.2
	}
	if itemCount > 0 {
		score += 0.2
	}
	if itemCount >= 5 {
		score += 0.1
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func asObjectList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// stringField returns the first non-empty string among the candidate
// keys. Providers do not agree on field naming.
func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// numberField returns the value of the first candidate key that is
// present. An explicit zero is a real answer, not a miss, so presence
// stops the alias fallthrough.
func numberField(obj map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			return asNumber(v)
		}
	}
	return 0
}

func asNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
