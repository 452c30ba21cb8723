package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

func newAnalyzeFixture(gateway *gatewayFake, chunks *chunkRepoFake) *AnalyzePlanUseCase {
	consensus := NewConsensusUseCase(
		gateway,
		takeoffRoster(spec("openai", "gpt-4o", 0.9)),
		nil,
		ConsensusConfig{},
		nil,
	)
	repo := &repoFake{doc: &domain.Document{ID: "plan-1", Filename: "site.pdf", Status: domain.StatusReady}}
	return NewAnalyzePlanUseCase(repo, chunks, &embedderFake{}, consensus)
}

func TestAnalyzeRejectsUnknownTaskType(t *testing.T) {
	uc := newAnalyzeFixture(&gatewayFake{}, &chunkRepoFake{})

	_, err := uc.Analyze(context.Background(), "plan-1", domain.TaskType("summarize"), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeRequiresReadyPlan(t *testing.T) {
	repo := &repoFake{doc: &domain.Document{ID: "plan-1", Status: domain.StatusProcessing}}
	consensus := NewConsensusUseCase(&gatewayFake{}, takeoffRoster(spec("openai", "gpt-4o", 0.9)), nil, ConsensusConfig{}, nil)
	uc := NewAnalyzePlanUseCase(repo, &chunkRepoFake{}, &embedderFake{}, consensus)

	_, err := uc.Analyze(context.Background(), "plan-1", domain.TaskTakeoff, nil)
	if !errors.Is(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "processing") {
		t.Fatalf("error = %v, want status complaint", err)
	}
}

func TestAnalyzeNoTextNoImagesRejected(t *testing.T) {
	chunks := &chunkRepoFake{countOverride: embeddedCount(0, 0)}
	uc := newAnalyzeFixture(&gatewayFake{}, chunks)

	_, err := uc.Analyze(context.Background(), "plan-1", domain.TaskTakeoff, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeNoTextButImagesProceeds(t *testing.T) {
	gateway := &gatewayFake{content: map[string]string{
		"openai": `{"items":[{"category":"electrical","name":"Outlet","quantity":12}]}`,
	}}
	chunks := &chunkRepoFake{countOverride: embeddedCount(0, 0)}
	uc := newAnalyzeFixture(gateway, chunks)

	images := []domain.EncodedImage{{MediaType: "image/png", Data: "aGVsbG8="}}
	result, err := uc.Analyze(context.Background(), "plan-1", domain.TaskTakeoff, images)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(result.Items))
	}
}

func TestAnalyzeGroundsPromptInRetrievedChunks(t *testing.T) {
	page := 3
	gateway := &gatewayFake{content: map[string]string{"openai": `{"items":[]}`}}
	chunks := &chunkRepoFake{
		countOverride: embeddedCount(5, 5),
		searchOut: []domain.TextChunk{
			{
				PageNumber:  &page,
				SnippetText: "Provide 20A duplex receptacles at 12in AFF.",
				Metadata:    domain.ChunkMetadata{SheetID: "E-101"},
			},
		},
	}
	uc := newAnalyzeFixture(gateway, chunks)

	var captured domain.AnalysisTask
	gatewayCapture := &taskCaptureGateway{inner: gateway, captured: &captured}
	uc.consensus.gateway = gatewayCapture

	if _, err := uc.Analyze(context.Background(), "plan-1", domain.TaskTakeoff, nil); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !strings.Contains(captured.UserPrompt, "[page 3, sheet E-101]") {
		t.Fatalf("prompt missing provenance: %q", captured.UserPrompt)
	}
	if !strings.Contains(captured.UserPrompt, "duplex receptacles") {
		t.Fatalf("prompt missing chunk text: %q", captured.UserPrompt)
	}
	if !strings.Contains(captured.SystemPrompt, "material takeoff") {
		t.Fatalf("system prompt not specialized for takeoff: %q", captured.SystemPrompt)
	}
}

type taskCaptureGateway struct {
	inner    *gatewayFake
	captured *domain.AnalysisTask
}

func (g *taskCaptureGateway) CallModel(ctx context.Context, provider, model string, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error) {
	*g.captured = task
	return g.inner.CallModel(ctx, provider, model, task, opts)
}

func (g *taskCaptureGateway) CallFirstAvailable(ctx context.Context, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error) {
	*g.captured = task
	return g.inner.CallFirstAvailable(ctx, task, opts)
}
