// Package llm provides the language-model transports: a native Ollama
// client and an OpenAI-compatible client. Both serve text generation and
// embeddings behind the pipeline's Querier and Oracle interfaces.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// Ollama calls a local Ollama server for generation and embeddings.
type Ollama struct {
	Endpoint    string // base URL, e.g. http://localhost:11434
	Model       string
	EmbedModel  string // empty falls back to Model
	Temperature float64
	MaxTokens   int

	HTTPClient *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Query sends one generation request and returns the completion text.
func (c *Ollama) Query(ctx context.Context, prompt string) (string, error) {
	if c.Endpoint == "" || c.Model == "" {
		return "", fmt.Errorf("%w: endpoint and model required", internalerr.ErrQuery)
	}
	reqBody, err := json.Marshal(generateRequest{
		Model:  c.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.Temperature,
			NumPredict:  c.MaxTokens,
		},
	})
	if err != nil {
		return "", err
	}

	data, err := c.post(ctx, "/api/generate", reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", internalerr.ErrQuery, err)
	}
	var payload generateResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: decode: %v", internalerr.ErrQuery, err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("%w: %s", internalerr.ErrQuery, payload.Error)
	}
	return payload.Response, nil
}

// Embed returns one vector per text from the embeddings endpoint. The
// endpoint takes a single prompt per request, so texts are sent one at a
// time.
func (c *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint required", internalerr.ErrEmbed)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		reqBody, err := json.Marshal(embeddingRequest{Model: c.embedModel(), Prompt: text})
		if err != nil {
			return nil, err
		}
		data, err := c.post(ctx, "/api/embeddings", reqBody)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
		}
		var payload embeddingResponse
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", internalerr.ErrEmbed, err)
		}
		if payload.Error != "" {
			return nil, fmt.Errorf("%w: %s", internalerr.ErrEmbed, payload.Error)
		}
		vec := make([]float32, len(payload.Embedding))
		for j, v := range payload.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Ollama) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	url := strings.TrimRight(c.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, firstLine(data))
	}
	return data, nil
}

func (c *Ollama) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (c *Ollama) embedModel() string {
	if c.EmbedModel != "" {
		return c.EmbedModel
	}
	return c.Model
}

func firstLine(data []byte) string {
	s := strings.TrimSpace(string(data))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
