package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultCallTimeout  = 60 * time.Second
)

// Router normalizes calls across providers. Every real call is guarded
// by a cheap probe with a short deadline; a failed probe skips the
// provider for this task without marking it degraded. Rate limits and
// call-level timeouts do mark the provider degraded.
type Router struct {
	order         []Provider
	byName        map[string]Provider
	defaultModels map[string]string
	health        ports.ProviderHealth
	probeTimeout  time.Duration
	logger        *slog.Logger
}

func NewRouter(order []Provider, defaultModels map[string]string, health ports.ProviderHealth, logger *slog.Logger) *Router {
	byName := make(map[string]Provider, len(order))
	for _, p := range order {
		byName[p.Name()] = p
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		order:         order,
		byName:        byName,
		defaultModels: defaultModels,
		health:        health,
		probeTimeout:  DefaultProbeTimeout,
		logger:        logger,
	}
}

func (r *Router) CallModel(ctx context.Context, provider, model string, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error) {
	p, ok := r.byName[provider]
	if !ok {
		return domain.ModelResult{}, fmt.Errorf("unknown provider: %s", provider)
	}
	if r.health.IsDegraded(provider) {
		return domain.ModelResult{}, &ProviderError{Provider: provider, Op: "call", Err: ErrProviderDegraded}
	}

	if err := r.probe(ctx, p, model); err != nil {
		return domain.ModelResult{}, &ProviderError{Provider: provider, Op: "probe", Err: err}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Generate(callCtx, GenerateRequest{
		Model:       model,
		System:      task.SystemPrompt,
		Prompt:      task.UserPrompt,
		Images:      task.Images,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		if isDegradationSignal(err) {
			r.health.MarkDegraded(provider)
			r.logger.Warn("provider_degraded", "provider", provider, "model", model, "error", err)
		}
		var perr *ProviderError
		if errors.As(err, &perr) {
			return domain.ModelResult{}, err
		}
		return domain.ModelResult{}, &ProviderError{Provider: provider, Op: "call", Err: err}
	}

	return domain.ModelResult{
		Provider:     provider,
		Model:        model,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		TokensUsed:   resp.TokensUsed,
		TaskType:     task.TaskType,
	}, nil
}

func (r *Router) CallFirstAvailable(ctx context.Context, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error) {
	var reasons []string
	for _, p := range r.order {
		name := p.Name()
		if r.health.IsDegraded(name) {
			reasons = append(reasons, fmt.Sprintf("%s: skipped (degraded)", name))
			continue
		}

		model := r.defaultModels[name]
		if model == "" {
			reasons = append(reasons, fmt.Sprintf("%s: no default model configured", name))
			continue
		}

		result, err := r.CallModel(ctx, name, model, task, opts)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return result, nil
	}
	return domain.ModelResult{}, fmt.Errorf("all providers failed: %s", strings.Join(reasons, "; "))
}

// probe confirms the provider is reachable before spending a long call
// on it. Probe failures are skip signals, not degradation signals.
func (r *Router) probe(ctx context.Context, p Provider, model string) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	_, err := p.Generate(probeCtx, GenerateRequest{
		Model:     model,
		Prompt:    "ping",
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}

// isDegradationSignal reports whether the error should put the provider
// on the bench: HTTP 429 or a call-level deadline.
func isDegradationSignal(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.RateLimited() || perr.TimedOut()
	}
	return false
}
