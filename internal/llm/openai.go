package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// OpenAI calls an OpenAI-compatible server through the official SDK. Local
// vLLM-style servers work by pointing BaseURL at them.
type OpenAI struct {
	client      *openai.Client
	model       openai.ChatModel
	embedModel  string
	temperature float64
	maxTokens   int
}

// OpenAIOptions configure an OpenAI client.
type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	EmbedModel  string // empty falls back to Model
	Temperature float64
	MaxTokens   int

	HTTPClient *http.Client
}

// NewOpenAI creates a client from opts.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(clientOpts...)

	embedModel := opts.EmbedModel
	if embedModel == "" {
		embedModel = opts.Model
	}
	return &OpenAI{
		client:      &client,
		model:       openai.ChatModel(opts.Model),
		embedModel:  embedModel,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Query sends one chat completion request and returns the message text.
func (c *OpenAI) Query(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", internalerr.ErrQuery, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", internalerr.ErrQuery)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per text from the embeddings endpoint.
func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          c.embedModel,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", internalerr.ErrEmbed, item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		out[item.Index] = vec
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding for index %d", internalerr.ErrEmbed, i)
		}
	}
	return out, nil
}
