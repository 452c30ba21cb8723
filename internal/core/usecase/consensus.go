package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

// ConsensusConfig carries the tunable thresholds of the merge
// algorithm. Defaults match observed-good values; none is load-bearing.
type ConsensusConfig struct {
	MaxModels          int
	CallTimeout        time.Duration
	ItemSimilarity     float64
	IssueSimilarity    float64
	PromotionFraction  float64
	DisagreementFactor float64
}

func (c *ConsensusConfig) applyDefaults() {
	if c.MaxModels <= 0 {
		c.MaxModels = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.ItemSimilarity <= 0 {
		c.ItemSimilarity = 0.7
	}
	if c.IssueSimilarity <= 0 {
		c.IssueSimilarity = 0.75
	}
	if c.PromotionFraction <= 0 {
		c.PromotionFraction = 0.3
	}
	if c.DisagreementFactor <= 0 {
		c.DisagreementFactor = 0.5
	}
}

type ConsensusUseCase struct {
	gateway   ports.ModelGateway
	roster    []ModelSpec
	available func(provider string) bool
	config    ConsensusConfig
	logger    *slog.Logger
}

func NewConsensusUseCase(
	gateway ports.ModelGateway,
	roster []ModelSpec,
	available func(provider string) bool,
	config ConsensusConfig,
	logger *slog.Logger,
) *ConsensusUseCase {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if len(roster) == 0 {
		roster = DefaultRoster()
	}
	return &ConsensusUseCase{
		gateway:   gateway,
		roster:    roster,
		available: available,
		config:    config,
		logger:    logger,
	}
}

type modelOutcome struct {
	spec   ModelSpec
	result domain.ModelResult
	err    error
}

// AnalyzeWithConsensus fans the task out to the selected models,
// tolerates partial failure, and merges the parseable answers. It
// fails only when not a single model produced usable output.
func (uc *ConsensusUseCase) AnalyzeWithConsensus(ctx context.Context, task domain.AnalysisTask) (*domain.ConsensusResult, error) {
	selected := selectModels(uc.roster, task.TaskType, uc.config.MaxModels, uc.available)
	if len(selected) == 0 {
		return nil, domain.WrapError(domain.ErrInsufficientConsensus, "select models",
			fmt.Errorf("no model available for task %s", task.TaskType))
	}

	outcomes := uc.dispatch(ctx, selected, task)

	parsed, failures := uc.collectAndParse(outcomes)
	if len(parsed) == 0 {
		return nil, domain.WrapError(domain.ErrInsufficientConsensus, "consensus analysis",
			fmt.Errorf("all %d models failed: %s", len(selected), strings.Join(failures, "; ")))
	}

	result := uc.merge(parsed)
	uc.logger.Info("consensus_complete",
		"task_type", string(task.TaskType),
		"models_selected", len(selected),
		"models_contributing", result.ConsensusCount,
		"items", len(result.Items),
		"issues", len(result.Issues),
		"disagreements", len(result.Disagreements),
	)
	return result, nil
}

// dispatch issues one call per model concurrently and waits for every
// call to settle. One model's failure never cancels its siblings.
func (uc *ConsensusUseCase) dispatch(ctx context.Context, selected []ModelSpec, task domain.AnalysisTask) []modelOutcome {
	outcomes := make([]modelOutcome, len(selected))
	var wg sync.WaitGroup

	for i, spec := range selected {
		wg.Add(1)
		go func(i int, spec ModelSpec) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, uc.config.CallTimeout)
			defer cancel()

			result, err := uc.gateway.CallModel(callCtx, spec.Provider, spec.Model, task, domain.CallOptions{
				Timeout: uc.config.CallTimeout,
			})
			outcomes[i] = modelOutcome{spec: spec, result: result, err: err}
		}(i, spec)
	}

	wg.Wait()
	return outcomes
}

func (uc *ConsensusUseCase) collectAndParse(outcomes []modelOutcome) ([]parsedAnalysis, []string) {
	var parsed []parsedAnalysis
	var failures []string

	for i := range outcomes {
		outcome := &outcomes[i]
		label := outcome.spec.Provider + "/" + outcome.spec.Model
		if outcome.err != nil {
			uc.logger.Warn("model_call_failed", "model", label, "error", outcome.err)
			failures = append(failures, fmt.Sprintf("%s: %v", label, outcome.err))
			continue
		}

		analysis, err := parseModelResult(outcome.result)
		if err != nil {
			uc.logger.Warn("model_output_unparseable",
				"model", label,
				"error", err,
				"content_excerpt", excerpt(outcome.result.Content, 200),
			)
			failures = append(failures, fmt.Sprintf("%s: unparseable output", label))
			continue
		}
		outcome.result.Confidence = analysis.Confidence
		parsed = append(parsed, analysis)
	}
	return parsed, failures
}

func (uc *ConsensusUseCase) merge(parsed []parsedAnalysis) *domain.ConsensusResult {
	result := &domain.ConsensusResult{
		ConsensusCount:  len(parsed),
		Disagreements:   []string{},
		ModelAgreements: make([]domain.ModelAgreement, 0, len(parsed)),
	}

	var confidenceSum float64
	for _, p := range parsed {
		confidenceSum += p.Confidence
		result.ModelAgreements = append(result.ModelAgreements, domain.ModelAgreement{
			Model:      p.Model,
			ItemsFound: len(p.Items),
			Confidence: p.Confidence,
		})
	}
	result.Confidence = confidenceSum / float64(len(parsed))

	// A single parseable answer is a consensus of one: no clustering,
	// no disagreements.
	if len(parsed) == 1 {
		result.Items = nonNilItems(parsed[0].Items)
		result.Issues = parsed[0].Issues
		return result
	}

	var allItems []domain.LineItem
	var allIssues []domain.Issue
	for _, p := range parsed {
		allItems = append(allItems, p.Items...)
		allIssues = append(allIssues, p.Issues...)
	}

	minMembers := int(math.Ceil(float64(len(parsed)) * uc.config.PromotionFraction))
	if minMembers < 1 {
		minMembers = 1
	}

	result.Items = []domain.LineItem{}
	for _, cluster := range clusterItems(allItems, uc.config.ItemSimilarity) {
		if len(cluster) >= minMembers {
			result.Items = append(result.Items, mergeItemCluster(cluster))
		}
	}
	for _, cluster := range clusterIssues(allIssues, uc.config.IssueSimilarity) {
		if len(cluster) >= minMembers {
			result.Issues = append(result.Issues, mergeIssueCluster(cluster))
		}
	}

	result.Disagreements = uc.findDisagreements(parsed)
	return result
}

// findDisagreements flags models whose raw item count strays too far
// from the cross-model average. Informational only.
func (uc *ConsensusUseCase) findDisagreements(parsed []parsedAnalysis) []string {
	total := 0
	for _, p := range parsed {
		total += len(p.Items)
	}
	mean := float64(total) / float64(len(parsed))
	if mean == 0 {
		return []string{}
	}

	disagreements := []string{}
	for _, p := range parsed {
		deviation := math.Abs(float64(len(p.Items))-mean) / mean
		if deviation > uc.config.DisagreementFactor {
			disagreements = append(disagreements, fmt.Sprintf(
				"%s found %d items vs average %.1f", p.Model, len(p.Items), mean))
		}
	}
	return disagreements
}

func nonNilItems(items []domain.LineItem) []domain.LineItem {
	if items == nil {
		return []domain.LineItem{}
	}
	return items
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
