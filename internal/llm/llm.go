package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the provider responds with no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Client is a chat-completion client for any OpenAI-compatible endpoint,
// configured from (model, API key, base URL).
type Client struct {
	model   string
	apiKey  string
	baseURL string
	http    *http.Client
}

// New validates the model and base URL and returns a Client. No network
// traffic happens until Complete is called.
func New(model, apiKey, baseURL string) (*Client, error) {
	if model == "" {
		return nil, errors.New("llm.New: model is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("llm.New: invalid base URL %q", baseURL)
	}

	return &Client{
		model:   model,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation to the provider and returns the assistant
// reply content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llm.Client.Complete: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm.Client.Complete: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm.Client.Complete: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm.Client.Complete: read body: %w", err)
	}

	var parsed completionResponse
	if err = json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("llm.Client.Complete: decode: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("llm.Client.Complete: provider returned %d: %s", resp.StatusCode, msg)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm.Client.Complete: %w", ErrEmptyCompletion)
	}

	return parsed.Choices[0].Message.Content, nil
}
