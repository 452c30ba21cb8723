package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/infrastructure/resilience"
)

// OCRClient drives a job-based remote document-OCR API: submit the PDF,
// poll until the job settles, fetch per-page text.
type OCRClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor

	pollInterval time.Duration
}

func NewOCRClient(baseURL, apiKey string, executor *resilience.Executor) *OCRClient {
	return &OCRClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		executor:     executor,
		pollInterval: 3 * time.Second,
	}
}

func (c *OCRClient) Recognize(ctx context.Context, pdfBytes []byte) ([]domain.PageText, error) {
	var jobID string
	submit := func(callCtx context.Context) error {
		id, err := c.submitJob(callCtx, pdfBytes)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ocr.submit", submit, classifyOCRError)
	} else {
		err = submit(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("submit ocr job: %w", err)
	}

	if err := c.awaitJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.fetchPages(ctx, jobID)
}

func (c *OCRClient) submitJob(ctx context.Context, pdfBytes []byte) (string, error) {
	payload := map[string]any{
		"document": base64.StdEncoding.EncodeToString(pdfBytes),
		"mime_type": "application/pdf",
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.postJSON(ctx, "/v1/documents", payload, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("ocr response missing job id")
	}
	return out.JobID, nil
}

func (c *OCRClient) awaitJob(ctx context.Context, jobID string) error {
	interval := c.pollInterval
	for {
		var status struct {
			State string `json:"state"`
			Error string `json:"error"`
		}
		if err := c.getJSON(ctx, "/v1/documents/"+jobID+"/status", &status); err != nil {
			return fmt.Errorf("poll ocr job: %w", err)
		}

		switch status.State {
		case "succeeded", "partial":
			return nil
		case "failed":
			if status.Error == "" {
				status.Error = "unknown error"
			}
			return fmt.Errorf("ocr job failed: %s", status.Error)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// Back off slowly on long jobs.
		if interval < 10*time.Second {
			interval += time.Second
		}
	}
}

func (c *OCRClient) fetchPages(ctx context.Context, jobID string) ([]domain.PageText, error) {
	var out struct {
		Pages []struct {
			PageNumber int    `json:"page_number"`
			Text       string `json:"text"`
		} `json:"pages"`
	}
	if err := c.getJSON(ctx, "/v1/documents/"+jobID+"/pages", &out); err != nil {
		return nil, fmt.Errorf("fetch ocr pages: %w", err)
	}

	pages := make([]domain.PageText, 0, len(out.Pages))
	for _, p := range out.Pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		pages = append(pages, buildPage(p.PageNumber, p.Text))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("ocr produced no text")
	}
	return pages, nil
}

func (c *OCRClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ocr request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *OCRClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create ocr request: %w", err)
	}
	return c.do(req, out)
}

func (c *OCRClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ocrStatusError{statusCode: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ocr response: %w", err)
	}
	return nil
}

type ocrStatusError struct {
	statusCode int
	status     string
	body       string
}

func (e *ocrStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("ocr status: %s", e.status)
	}
	return fmt.Sprintf("ocr status: %s: %s", e.status, e.body)
}

func classifyOCRError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}

	var statusErr *ocrStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
