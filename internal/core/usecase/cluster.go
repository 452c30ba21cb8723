package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// normalizedSimilarity maps edit distance onto [0,1], 1 meaning equal.
// Inputs are normalized first so casing, punctuation, and word order do
// not count as edits ("Outlet - 120V" and "120V Outlet" score 1).
func normalizedSimilarity(a, b string) float64 {
	a = normalizeForMatch(a)
	b = normalizeForMatch(b)
	if a == "" && b == "" {
		return 0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

func normalizeForMatch(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// sameItemFinding reports whether two line items describe the same
// physical finding.
func sameItemFinding(a, b domain.LineItem, threshold float64) bool {
	if !strings.EqualFold(strings.TrimSpace(a.Category), strings.TrimSpace(b.Category)) {
		return false
	}
	if normalizedSimilarity(a.Name, b.Name) > threshold {
		return true
	}
	if a.Description != "" && b.Description != "" &&
		normalizedSimilarity(a.Description, b.Description) > threshold {
		return true
	}
	return false
}

func sameIssueFinding(a, b domain.Issue, threshold float64) bool {
	if !strings.EqualFold(a.Severity, b.Severity) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(a.Category), strings.TrimSpace(b.Category)) {
		return false
	}
	return normalizedSimilarity(a.Description, b.Description) >= threshold
}

// clusterItems groups near-duplicate findings. Single pass: each
// unclaimed item seeds a cluster and absorbs every later unclaimed
// item that matches it pairwise.
func clusterItems(items []domain.LineItem, threshold float64) [][]domain.LineItem {
	var clusters [][]domain.LineItem
	claimed := make([]bool, len(items))

	for i := range items {
		if claimed[i] {
			continue
		}
		cluster := []domain.LineItem{items[i]}
		claimed[i] = true
		for j := i + 1; j < len(items); j++ {
			if claimed[j] {
				continue
			}
			if sameItemFinding(items[i], items[j], threshold) {
				cluster = append(cluster, items[j])
				claimed[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func clusterIssues(issues []domain.Issue, threshold float64) [][]domain.Issue {
	var clusters [][]domain.Issue
	claimed := make([]bool, len(issues))

	for i := range issues {
		if claimed[i] {
			continue
		}
		cluster := []domain.Issue{issues[i]}
		claimed[i] = true
		for j := i + 1; j < len(issues); j++ {
			if claimed[j] {
				continue
			}
			if sameIssueFinding(issues[i], issues[j], threshold) {
				cluster = append(cluster, issues[j])
				claimed[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// mergeItemCluster folds a cluster into one line item. The first member
// is the base; quantity and confidence are averaged across members.
func mergeItemCluster(cluster []domain.LineItem) domain.LineItem {
	merged := cluster[0]

	var quantitySum, confidenceSum float64
	providers := make([]string, 0, len(cluster))
	seen := make(map[string]struct{}, len(cluster))
	for _, item := range cluster {
		quantitySum += item.Quantity
		confidenceSum += item.Confidence
		if _, ok := seen[item.AIProvider]; !ok && item.AIProvider != "" {
			seen[item.AIProvider] = struct{}{}
			providers = append(providers, item.AIProvider)
		}
	}
	sort.Strings(providers)

	merged.Quantity = quantitySum / float64(len(cluster))
	merged.Confidence = confidenceSum / float64(len(cluster))
	if len(providers) > 1 {
		merged.AIProvider = "consensus"
	}
	merged.Notes = fmt.Sprintf("agreed by: %s", strings.Join(providers, ", "))
	return merged
}

func mergeIssueCluster(cluster []domain.Issue) domain.Issue {
	merged := cluster[0]

	var confidenceSum float64
	providers := make([]string, 0, len(cluster))
	seen := make(map[string]struct{}, len(cluster))
	for _, issue := range cluster {
		confidenceSum += issue.Confidence
		if _, ok := seen[issue.AIProvider]; !ok && issue.AIProvider != "" {
			seen[issue.AIProvider] = struct{}{}
			providers = append(providers, issue.AIProvider)
		}
	}
	sort.Strings(providers)

	merged.Confidence = confidenceSum / float64(len(cluster))
	if len(providers) > 1 {
		merged.AIProvider = "consensus"
	}
	merged.Notes = fmt.Sprintf("agreed by: %s", strings.Join(providers, ", "))
	return merged
}
