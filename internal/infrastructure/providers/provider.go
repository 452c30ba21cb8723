package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// GenerateRequest is the normalized request shape shared by every
// provider client; each client maps it onto its own wire format.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Images      []domain.EncodedImage
	MaxTokens   int
	Temperature float32
}

type GenerateResponse struct {
	Content      string
	FinishReason string
	TokensUsed   int
}

// Provider is one upstream model API.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// ErrProviderDegraded marks a call skipped because the provider carries
// an active degradation mark.
var ErrProviderDegraded = errors.New("provider degraded")

// ProviderError wraps any transport or API failure from one provider.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *ProviderError) TimedOut() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
