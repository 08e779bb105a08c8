package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	helpyhttp "github.com/psds-microservice/helpy/http"
	"github.com/psds-microservice/support-bot/internal/errs"
)

// OpenAI: классификатор поверх OpenAI-совместимого chat completions API
// (OpenAI, OpenRouter, vLLM, Ollama).
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	prompt     string
}

// NewOpenAI создаёт клиент для baseURL + "/chat/completions".
// Непустой prompt уходит первым, как system-сообщение.
func NewOpenAI(baseURL, apiKey, model, prompt string) *OpenAI {
	return &OpenAI{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		prompt:     prompt,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAI) Classify(ctx context.Context, conversation []Message) (string, error) {
	wire := chatRequest{Model: c.model}
	if c.prompt != "" {
		wire.Messages = append(wire.Messages, Message{Role: RoleSystem, Content: c.prompt})
	}
	wire.Messages = append(wire.Messages, conversation...)

	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", errs.ErrClassifier, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: new request: %v", errs.ErrClassifier, err)
	}
	req.Header.Set(helpyhttp.HeaderContentType, helpyhttp.ContentTypeJSON)
	if c.apiKey != "" {
		req.Header.Set(helpyhttp.HeaderAuthorization, "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrClassifier, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", errs.ErrClassifier, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", errs.ErrClassifier, resp.StatusCode, truncate(string(raw), 200))
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", errs.ErrClassifier, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", errs.ErrClassifier, out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty response", errs.ErrClassifier)
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
