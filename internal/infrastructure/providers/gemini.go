package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiMaxTokensCap = 8192
)

// GeminiProvider speaks the Google generative-language REST API;
// images travel as inline_data parts.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > geminiMaxTokensCap {
		maxTokens = geminiMaxTokensCap
	}

	parts := []map[string]any{{"text": req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": img.MediaType,
				"data":      img.Data,
			},
		})
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": parts},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
			"temperature":     req.Temperature,
		},
	}
	if req.System != "" {
		payload["system_instruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.System}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return GenerateResponse{}, &ProviderError{Provider: p.Name(), Op: "generate", Err: err}
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, req.Model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, &ProviderError{Provider: p.Name(), Op: "generate", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, &ProviderError{Provider: p.Name(), Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return GenerateResponse{}, &ProviderError{
			Provider:   p.Name(),
			Op:         "generate",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			TotalTokenCount int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return GenerateResponse{}, &ProviderError{Provider: p.Name(), Op: "generate", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Candidates) == 0 {
		return GenerateResponse{}, &ProviderError{Provider: p.Name(), Op: "generate", Err: errors.New("empty candidates")}
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return GenerateResponse{
		Content:      sb.String(),
		FinishReason: parsed.Candidates[0].FinishReason,
		TokensUsed:   parsed.UsageMetadata.TotalTokenCount,
	}, nil
}
