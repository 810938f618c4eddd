package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arielsz/jarvisz/pkg/logger"
)

const maxRateLimitRetries = 3

// HTTPProvider talks to any OpenAI-compatible chat completions endpoint
// (Groq, OpenAI, xAI). Rate-limited calls are retried with exponential
// backoff before giving up with ErrRateLimited.
type HTTPProvider struct {
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client

	// backoff returns how long to sleep before retry attempt n (0-based).
	// Overridable in tests.
	backoff func(attempt int) time.Duration
}

func NewHTTPProvider(apiKey, apiBase, model string) *HTTPProvider {
	return &HTTPProvider{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * 5 * time.Second // 5s, 10s, 20s
		},
	}
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	if p.apiBase == "" {
		return "", fmt.Errorf("provider API base not configured")
	}

	for attempt := 0; attempt < maxRateLimitRetries; attempt++ {
		text, retryable, err := p.doCall(ctx, messages, opts)
		if err == nil {
			return text, nil
		}
		if !retryable {
			return "", err
		}
		if attempt == maxRateLimitRetries-1 {
			break
		}

		wait := p.backoff(attempt)
		logger.WarnCF("providers", "Rate limit hit, backing off", map[string]interface{}{
			"model":   p.model,
			"wait":    wait.String(),
			"attempt": attempt + 1,
		})
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", ErrRateLimited
}

// doCall performs one request. retryable is true only for rate-limit style
// failures; anything else surfaces immediately.
func (p *HTTPProvider) doCall(ctx context.Context, messages []Message, opts CompleteOptions) (string, bool, error) {
	requestBody := map[string]interface{}{
		"model":    p.model,
		"messages": messages,
		"stream":   false,
	}
	if opts.Temperature > 0 {
		requestBody["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		requestBody["max_tokens"] = opts.MaxTokens
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("rate limited: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// Some backends report quota exhaustion with other 4xx/5xx codes.
		if isQuotaBody(body) {
			return "", true, fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		return "", false, fmt.Errorf("chat completions failed: status %d body %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", false, fmt.Errorf("empty choices in response")
	}

	return apiResponse.Choices[0].Message.Content, false, nil
}

func isQuotaBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "rate_limit") || strings.Contains(lower, "quota")
}
