package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

const analysisContextChunks = 12

type AnalyzePlanUseCase struct {
	repo      ports.DocumentRepository
	chunks    ports.ChunkRepository
	embedder  ports.Embedder
	consensus *ConsensusUseCase
}

func NewAnalyzePlanUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
	consensus *ConsensusUseCase,
) *AnalyzePlanUseCase {
	return &AnalyzePlanUseCase{
		repo:      repo,
		chunks:    chunks,
		embedder:  embedder,
		consensus: consensus,
	}
}

func (uc *AnalyzePlanUseCase) Analyze(ctx context.Context, documentID string, taskType domain.TaskType, images []domain.EncodedImage) (*domain.ConsensusResult, error) {
	if !taskType.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze plan",
			fmt.Errorf("unknown task type %q", taskType))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch plan: %w", err)
	}
	if doc.Status != domain.StatusReady {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze plan",
			fmt.Errorf("plan status is %q, want ready", doc.Status))
	}

	planContext, err := uc.gatherContext(ctx, documentID, taskType)
	if err != nil {
		return nil, err
	}
	if planContext == "" && len(images) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze plan",
			errors.New("plan has no indexed text and no images were supplied"))
	}

	task := domain.AnalysisTask{
		TaskType:     taskType,
		SystemPrompt: systemPromptFor(taskType),
		UserPrompt:   buildUserPrompt(taskType, doc.Filename, planContext),
		Images:       images,
	}

	return uc.consensus.AnalyzeWithConsensus(ctx, task)
}

// gatherContext retrieves the chunks most relevant to the task type to
// ground the models in the plan's own text.
func (uc *AnalyzePlanUseCase) gatherContext(ctx context.Context, documentID string, taskType domain.TaskType) (string, error) {
	_, embedded, err := uc.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("count chunks: %w", err)
	}
	if embedded == 0 {
		return "", nil
	}

	vector, err := uc.embedder.EmbedQuery(ctx, contextQueryFor(taskType))
	if err != nil {
		return "", fmt.Errorf("embed context query: %w", err)
	}
	chunks, err := uc.chunks.SearchSimilar(ctx, documentID, vector, analysisContextChunks)
	if err != nil {
		return "", fmt.Errorf("retrieve context chunks: %w", err)
	}

	var sb strings.Builder
	for _, chunk := range chunks {
		if chunk.PageNumber != nil {
			fmt.Fprintf(&sb, "[page %d", *chunk.PageNumber)
			if chunk.Metadata.SheetID != "" {
				fmt.Fprintf(&sb, ", sheet %s", chunk.Metadata.SheetID)
			}
			sb.WriteString("] ")
		}
		sb.WriteString(chunk.SnippetText)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

func systemPromptFor(taskType domain.TaskType) string {
	base := "You are a construction plan analyst. Respond with a single JSON object and nothing else. " +
		`The object has the shape {"items": [...], "issues": [...], "summary": {"total_items": n}, "confidence": 0.0-1.0}. ` +
		`Each item: {"category", "name", "description", "quantity", "unit", "confidence"}.`

	switch taskType {
	case domain.TaskTakeoff:
		return base + " Perform a material takeoff: enumerate every countable material and fixture with quantities."
	case domain.TaskQuality:
		return base + ` Review for defects and coordination problems. Each issue: {"severity": "low|medium|high|critical", "category", "description", "location", "confidence"}.`
	case domain.TaskBidAnalysis:
		return base + " Identify scope elements a bidder must price, flagging ambiguous or missing scope as issues."
	case domain.TaskCodeCompliance:
		return base + " Check for building-code concerns; report each suspect condition as an issue with its code area as category."
	case domain.TaskCostEstimation:
		return base + " Estimate costs: items are cost lines with quantity and unit, using the description for pricing assumptions."
	default:
		return base
	}
}

func buildUserPrompt(taskType domain.TaskType, filename, planContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the construction plan %q (task: %s).\n", filename, taskType)
	if planContext != "" {
		sb.WriteString("\nExtracted plan text:\n")
		sb.WriteString(planContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReturn only the JSON object.")
	return sb.String()
}

func contextQueryFor(taskType domain.TaskType) string {
	switch taskType {
	case domain.TaskTakeoff:
		return "material schedules quantities fixtures counts dimensions"
	case domain.TaskQuality:
		return "notes details conflicts revisions coordination tolerances"
	case domain.TaskBidAnalysis:
		return "scope of work specifications alternates allowances exclusions"
	case domain.TaskCodeCompliance:
		return "code references egress fire rating accessibility clearances"
	case domain.TaskCostEstimation:
		return "quantities materials finishes schedules specifications"
	default:
		return "general notes schedules specifications"
	}
}
