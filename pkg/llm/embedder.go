package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultEmbeddingModel is used when EmbedderConfig.Model is empty.
const DefaultEmbeddingModel = "text-embedding-3-small"

// ErrEmptyEmbedding is returned when the service replies with no vectors.
var ErrEmptyEmbedding = errors.New("llm returned empty embedding")

// EmbedderConfig configures the HTTP embedder. BaseURL and APIKey are
// typically shared with the completions client.
type EmbedderConfig struct {
	Config
	Model string
}

// HTTPEmbedder talks to any OpenAI-compatible embeddings endpoint. It
// implements the semantic index's Embedder contract.
type HTTPEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
}

// NewHTTPEmbedder creates an embedder. Defaults: path /v1/embeddings,
// timeout 120 s, model text-embedding-3-small.
func NewHTTPEmbedder(cfg EmbedderConfig) *HTTPEmbedder {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.Path) == "" || cfg.Path == "/v1/chat/completions" {
		cfg.Path = "/v1/embeddings"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	return &HTTPEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns the embedding vector for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("encoding embeddings request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+e.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embeddings request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading embeddings response: %w", err)
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embeddings returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}

	if parsed.Error != nil {
		return nil, fmt.Errorf("embeddings error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings returned status %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return parsed.Data[0].Embedding, nil
}
