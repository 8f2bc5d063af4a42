package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/ratecontrol"
	"github.com/maktabah/bahith/internal/tracing"
)

const (
	maxRetryAttempts = 8
	backoffBaseMs    = 3000
	backoffCapMs     = 60000
)

// Backend turns a batch of texts into vectors via one provider API.
type Backend interface {
	Embed(ctx context.Context, texts []string, model Model) ([][]float32, error)
}

// httpBackend speaks the OpenAI-compatible /embeddings shape both
// OpenRouter and Jina expose. Items in the response carry an index and
// may arrive out of order.
type httpBackend struct {
	provider  string
	url       string
	apiKeyEnv string
	httpw     *circuitbreaker.HTTPWrapper
	timeout   time.Duration
	logger    *zap.Logger

	sleep func(context.Context, time.Duration) error // test hook
}

func newOpenRouterBackend(baseURL string, timeout time.Duration, logger *zap.Logger) *httpBackend {
	return newHTTPBackend("openrouter", baseURL+"/embeddings", "OPENROUTER_API_KEY", timeout, logger)
}

func newJinaBackend(baseURL string, timeout time.Duration, logger *zap.Logger) *httpBackend {
	if baseURL == "" {
		baseURL = "https://api.jina.ai/v1"
	}
	return newHTTPBackend("jina", baseURL+"/embeddings", "JINA_API_KEY", timeout, logger)
}

func newHTTPBackend(provider, url, apiKeyEnv string, timeout time.Duration, logger *zap.Logger) *httpBackend {
	client := &http.Client{Timeout: timeout}
	return &httpBackend{
		provider:  provider,
		url:       url,
		apiKeyEnv: apiKeyEnv,
		httpw:     circuitbreaker.NewHTTPWrapper(client, provider, "embeddings", logger),
		timeout:   timeout,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type embedResponse struct {
	Data []embedItem `json:"data"`
}

// Embed calls the provider once per retry attempt; only HTTP 429 retries,
// with exponential backoff capped at one minute.
func (b *httpBackend) Embed(ctx context.Context, texts []string, model Model) ([][]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: model.Name, Input: texts})

	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if err := ratecontrol.Wait(ctx, b.provider); err != nil {
			return nil, err
		}
		vecs, retry, err := b.attempt(ctx, body, texts, model)
		if err == nil {
			return vecs, nil
		}
		if !retry || attempt == maxRetryAttempts-1 {
			return nil, err
		}
		ometrics.EmbeddingRetries.Inc()
		delay := backoffBaseMs << attempt
		if delay > backoffCapMs {
			delay = backoffCapMs
		}
		b.logger.Warn("embedding backend rate limited, backing off",
			zap.String("provider", b.provider),
			zap.Int("attempt", attempt+1),
			zap.Int("delay_ms", delay),
		)
		if err := b.sleep(ctx, time.Duration(delay)*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embedding backend %s: retries exhausted", b.provider)
}

func (b *httpBackend) attempt(ctx context.Context, body []byte, texts []string, model Model) ([][]float32, bool, error) {
	// The per-attempt deadline is independent of the retry series.
	actx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	actx, span := tracing.StartHTTPSpan(actx, "POST", b.url)
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+os.Getenv(b.apiKeyEnv))
	tracing.InjectTraceparent(actx, req)

	resp, err := b.httpw.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("embedding backend %s: rate limited", b.provider)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("embedding backend %s: status %d: %s", b.provider, resp.StatusCode, msg)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, false, err
	}
	if len(er.Data) != len(texts) {
		return nil, false, fmt.Errorf("embedding backend %s: %d vectors for %d texts", b.provider, len(er.Data), len(texts))
	}

	// Align by the returned index; providers may reorder items.
	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })
	out := make([][]float32, len(texts))
	for _, item := range er.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, false, fmt.Errorf("embedding backend %s: index %d out of range", b.provider, item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for j, f := range item.Embedding {
			vec[j] = float32(f)
		}
		out[item.Index] = vec
	}
	ometrics.RecordEmbedding(model.Name, "backend_ok", time.Since(start).Seconds())
	return out, false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
