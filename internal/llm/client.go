// Package llm is a minimal OpenRouter chat-completions client shared by
// the reranker and the query expander. Callers bound each call with a
// context deadline; the client itself never retries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	"github.com/maktabah/bahith/internal/ratecontrol"
	"github.com/maktabah/bahith/internal/tracing"
)

// Completer is the call surface the pipeline depends on; tests inject
// fakes.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Client speaks the OpenRouter chat API.
type Client struct {
	baseURL string
	httpw   *circuitbreaker.HTTPWrapper
	log     *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	// No client-level timeout; per-call deadlines come from the context.
	httpClient := &http.Client{}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpw:   circuitbreaker.NewHTTPWrapper(httpClient, "openrouter", "llm", logger),
		log:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one user prompt at temperature 0 and returns the raw
// assistant text.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	if err := ratecontrol.Wait(ctx, "openrouter"); err != nil {
		return "", err
	}

	url := c.baseURL + "/chat/completions"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body, _ := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+os.Getenv("OPENROUTER_API_KEY"))
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, msg)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// StripFences removes a surrounding markdown code fence if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	} else {
		return s
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
