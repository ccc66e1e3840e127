package copygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultOpenAIURL is the chat completions endpoint.
const DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// Request holds the parameters for a completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	// JSON asks the provider for a JSON object response.
	JSON bool
}

// Response holds the result of a completion call.
type Response struct {
	Content string
	Model   string
}

// Provider is the interface for completion backends.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type OpenAIConfig struct {
	APIKey string
	Model  string
	// URL overrides DefaultOpenAIURL, e.g. with an httptest server.
	URL    string
	Client *http.Client
}

// OpenAI talks to the chat completions API.
type OpenAI struct {
	apiKey string // never serialized
	model  string
	url    string
	client *http.Client
}

// NewOpenAI returns a provider, or an error when no API key is configured.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key not set")
	}
	p := &OpenAI{apiKey: cfg.APIKey, model: cfg.Model, url: cfg.URL, client: cfg.Client}
	if p.model == "" {
		p.model = "gpt-4o-mini"
	}
	if p.url == "" {
		p.url = DefaultOpenAIURL
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 60 * time.Second}
	}
	return p, nil
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	var messages []openaiMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserPrompt})

	body := openaiRequest{Model: p.model, Messages: messages}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxBodyBytes = 4 << 20
	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("reading response body: %w", err)
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBytes, &oaiResp); err != nil {
		return Response{}, fmt.Errorf("parsing response JSON (HTTP %d, body: %s): %w", resp.StatusCode, truncate(string(respBytes), 200), err)
	}
	if resp.StatusCode != http.StatusOK {
		if oaiResp.Error != nil {
			return Response{}, fmt.Errorf("openai: %s: %s", oaiResp.Error.Type, oaiResp.Error.Message)
		}
		return Response{}, fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, truncate(string(respBytes), 200))
	}
	if len(oaiResp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: empty choices in response")
	}
	return Response{Content: oaiResp.Choices[0].Message.Content, Model: "openai:" + oaiResp.Model}, nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
