package transcribe

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient transcribes through the OpenAI audio API using go-openai.
// Implements the Provider interface.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIClient creates an OpenAI transcription client. baseURL may be
// empty to use the public API.
func NewOpenAIClient(apiKey, baseURL, model, language string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Transcribe requests WebVTT output directly, so no segment parsing is needed.
func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: req.Filename,
		Reader:   req.Audio,
		Language: c.language,
		Format:   openai.AudioResponseFormatVTT,
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	return resp.Text, nil
}

// Ping lists models, which needs a valid key but no audio.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyOpenAI(err)
	}
	return nil
}

func classifyOpenAI(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return fromStatus(reqErr.HTTPStatusCode, msg, err)
	}
	return asError(err)
}
