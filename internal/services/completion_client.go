package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gumbo/internal/health"
)

const defaultCompletionTimeout = 30 * time.Second

// CompletionService turns a prompt into model text.
// Implementations must honour the timeout and must not retry on their own.
type CompletionService interface {
	Complete(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error)
}

// CompletionClient calls an OpenAI-compatible /chat/completions endpoint
type CompletionClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	health      *health.Service
}

// NewCompletionClient creates a completion client. healthService may be nil.
func NewCompletionClient(baseURL, apiKey, model string, healthService *health.Service) *CompletionClient {
	if healthService != nil {
		healthService.Register(health.ComponentCompletion, model)
	}
	return &CompletionClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: 0.3, // Low temp for consistency
		// Per-call deadlines come from the context; this only bounds stuck connections
		httpClient: &http.Client{Timeout: 2 * defaultCompletionTimeout},
		health:     healthService,
	}
}

// Model returns the configured model name
func (c *CompletionClient) Model() string {
	return c.model
}

// Complete sends a single-turn prompt and returns the assistant message content
func (c *CompletionClient) Complete(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	if !c.health.IsHealthy(health.ComponentCompletion) && !c.health.ProbeDue(health.ComponentCompletion) {
		return "", ErrCompletionUnavailable
	}
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"stream":      false,
		"temperature": c.temperature,
	}
	if maxTokens > 0 {
		requestBody["max_tokens"] = maxTokens
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.health.MarkUnhealthy(health.ComponentCompletion, err.Error(), 0)
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.MarkUnhealthy(health.ComponentCompletion, err.Error(), resp.StatusCode)
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [COMPLETION] API error (status %d, body length: %d bytes)", resp.StatusCode, len(body))
		c.health.MarkUnhealthy(health.ComponentCompletion, string(body), resp.StatusCode)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncateText(string(body), 200))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		c.health.MarkUnhealthy(health.ComponentCompletion, "unparseable API response", resp.StatusCode)
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("no response from completion model")
	}

	c.health.MarkHealthy(health.ComponentCompletion)
	return apiResponse.Choices[0].Message.Content, nil
}
