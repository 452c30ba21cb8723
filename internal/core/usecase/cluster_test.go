package usecase

import (
	"math"
	"strings"
	"testing"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"outlet", "", 6},
		{"outlet", "outlet", 0},
		{"outlet", "outlets", 1},
		{"kitten", "sitting", 3},
		{"панель", "панели", 1},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNormalizedSimilarity(t *testing.T) {
	if got := normalizedSimilarity("Duplex  Outlet", "duplex outlet"); got != 1 {
		t.Fatalf("case and whitespace must not matter, got %v", got)
	}
	if got := normalizedSimilarity("120V Outlet", "Outlet - 120V"); got != 1 {
		t.Fatalf("word order and punctuation must not matter, got %v", got)
	}
	ab := normalizedSimilarity("copper pipe 1in", "copper piping 1in")
	ba := normalizedSimilarity("copper piping 1in", "copper pipe 1in")
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("similarity not symmetric: %v vs %v", ab, ba)
	}
	if got := normalizedSimilarity("", ""); got != 0 {
		t.Fatalf("two empty strings score %v, want 0", got)
	}
	if got := normalizedSimilarity("rebar #5", "hvac duct"); got > 0.5 {
		t.Fatalf("unrelated strings score too high: %v", got)
	}
}

func TestSameItemFindingCategoryGate(t *testing.T) {
	a := domain.LineItem{Category: "electrical", Name: "Duplex outlet"}
	b := domain.LineItem{Category: "plumbing", Name: "Duplex outlet"}
	if sameItemFinding(a, b, 0.7) {
		t.Fatalf("different categories must never match")
	}
	b.Category = "Electrical"
	if !sameItemFinding(a, b, 0.7) {
		t.Fatalf("category compare must be case insensitive")
	}
}

func TestSameItemFindingDescriptionFallback(t *testing.T) {
	a := domain.LineItem{Category: "electrical", Name: "Receptacle type A", Description: "20A duplex receptacle, wall mounted"}
	b := domain.LineItem{Category: "electrical", Name: "Outlet R-1", Description: "20A duplex receptacle, wall mount"}
	if !sameItemFinding(a, b, 0.7) {
		t.Fatalf("near-identical descriptions must match despite different names")
	}
	b.Description = ""
	if sameItemFinding(a, b, 0.7) {
		t.Fatalf("empty description must not trigger the fallback")
	}
}

func TestSameIssueFindingSeverityGate(t *testing.T) {
	a := domain.Issue{Severity: "high", Category: "code", Description: "Missing GFCI protection near sink"}
	b := domain.Issue{Severity: "medium", Category: "code", Description: "Missing GFCI protection near sink"}
	if sameIssueFinding(a, b, 0.75) {
		t.Fatalf("different severities must never match")
	}
	b.Severity = "HIGH"
	if !sameIssueFinding(a, b, 0.75) {
		t.Fatalf("severity compare must be case insensitive")
	}
}

func TestClusterItemsGroupsNearDuplicates(t *testing.T) {
	items := []domain.LineItem{
		{Category: "electrical", Name: "Outlet - 120V", Quantity: 40, AIProvider: "openai"},
		{Category: "electrical", Name: "120V Outlet", Quantity: 42, AIProvider: "anthropic"},
		{Category: "concrete", Name: "Slab on grade", Quantity: 1, AIProvider: "openai"},
	}

	clusters := clusterItems(items, 0.7)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2: %+v", len(clusters), clusters)
	}
	if len(clusters[0]) != 2 {
		t.Fatalf("outlet cluster size = %d, want 2", len(clusters[0]))
	}
}

func TestMergeItemCluster(t *testing.T) {
	merged := mergeItemCluster([]domain.LineItem{
		{Category: "electrical", Name: "Outlet - 120V", Quantity: 40, Confidence: 0.8, AIProvider: "openai"},
		{Category: "electrical", Name: "120V Outlet", Quantity: 42, Confidence: 0.9, AIProvider: "anthropic"},
	})

	if merged.Quantity != 41 {
		t.Fatalf("quantity = %v, want averaged 41", merged.Quantity)
	}
	if math.Abs(merged.Confidence-0.85) > 1e-9 {
		t.Fatalf("confidence = %v, want averaged 0.85", merged.Confidence)
	}
	if merged.AIProvider != "consensus" {
		t.Fatalf("provider = %q, want consensus", merged.AIProvider)
	}
	if !strings.Contains(merged.Notes, "anthropic") || !strings.Contains(merged.Notes, "openai") {
		t.Fatalf("notes must name agreeing providers: %q", merged.Notes)
	}
	if merged.Name != "Outlet - 120V" {
		t.Fatalf("first member is the base, got name %q", merged.Name)
	}
}

func TestMergeSingleMemberKeepsProvider(t *testing.T) {
	merged := mergeItemCluster([]domain.LineItem{
		{Category: "concrete", Name: "Slab on grade", Quantity: 1, AIProvider: "openai"},
	})
	if merged.AIProvider != "openai" {
		t.Fatalf("single-member cluster must keep its provider, got %q", merged.AIProvider)
	}
}

func TestMergeIssueCluster(t *testing.T) {
	merged := mergeIssueCluster([]domain.Issue{
		{Severity: "high", Category: "code", Description: "Missing GFCI near sink", Confidence: 0.6, AIProvider: "gemini"},
		{Severity: "high", Category: "code", Description: "Missing GFCI protection near sink", Confidence: 0.8, AIProvider: "openai"},
	})
	if math.Abs(merged.Confidence-0.7) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.7", merged.Confidence)
	}
	if merged.AIProvider != "consensus" {
		t.Fatalf("provider = %q, want consensus", merged.AIProvider)
	}
}
