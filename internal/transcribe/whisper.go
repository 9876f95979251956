package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (speaches, faster-whisper-server, DeepInfra's OpenAI endpoint, ...).
// Implements the Provider interface.
type WhisperClient struct {
	url      string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewWhisperClient creates a new Whisper HTTP client. apiKey may be empty for
// unauthenticated self-hosted servers.
func NewWhisperClient(url, apiKey, model, language string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:      url,
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Transcribe sends an audio file as multipart/form-data and returns the VTT body.
// The file part carries the content type inferred from the original filename.
func (wc *WhisperClient) Transcribe(ctx context.Context, req Request) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.Filename)))
	ct := req.ContentType
	if ct == "" {
		ct = ContentTypeFor(req.Filename)
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", asError(fmt.Errorf("create form file: %w", err))
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return "", asError(fmt.Errorf("copy audio data: %w", err))
	}

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}
	if wc.language != "" {
		w.WriteField("language", wc.language)
	}
	w.WriteField("response_format", "vtt")
	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return "", asError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	wc.authorize(httpReq)

	body, status, err := wc.do(httpReq)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fromStatus(status, strings.TrimSpace(string(body)), nil)
	}
	return string(body), nil
}

// Ping fetches the sibling /models endpoint.
func (wc *WhisperClient) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(wc.url, "/audio/transcriptions") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return asError(err)
	}
	wc.authorize(req)

	body, status, err := wc.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fromStatus(status, strings.TrimSpace(string(body)), nil)
	}
	return nil
}

func (wc *WhisperClient) authorize(req *http.Request) {
	if wc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+wc.apiKey)
	}
}

func (wc *WhisperClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, 0, &Error{Kind: KindUnavailable, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &Error{Kind: KindUnavailable, Message: "read response: " + err.Error(), Err: err}
	}
	return body, resp.StatusCode, nil
}
