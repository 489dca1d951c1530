// Package chat relays conversations to an OpenAI-compatible completion
// endpoint and streams the generated text back fragment by fragment.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Defaults for the upstream endpoint.
const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "qwen/qwen-2.5-coder-32b-instruct"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 3000
	DoneMarker         = "[DONE]"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("chat: upstream api key is not configured")
	errEventTooLarge = errors.New("chat: upstream event exceeds size limit")
)

// Role of a conversation turn.
type Role string

// Role values.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ProviderError is returned when the upstream responds with a non-2xx status.
// Body never contains the API key.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "chat: upstream error"
	}
	return fmt.Sprintf("chat: upstream request failed: status %d: %s", e.StatusCode, e.Body)
}

// Options configure a Client. Zero values fall back to the defaults.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	SiteURL     string
	SiteName    string
	HTTPClient  *http.Client
}

// Client streams completions from the upstream endpoint.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No overall timeout; streams are bounded by the request context.
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}
	}
	return &Client{opts: opts, http: httpClient}
}

// Model returns the upstream model identifier.
func (c *Client) Model() string { return c.opts.Model }

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return strings.TrimSpace(c.opts.APIKey) != "" }

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream sends messages upstream and calls onFragment for every non-empty
// content delta in order. It returns a *ProviderError when the upstream
// rejects the request before streaming starts. An error from onFragment
// stops the stream and is returned as is.
func (c *Client) Stream(ctx context.Context, messages []Message, onFragment func(string) error) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	body, errMarshal := json.Marshal(completionRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if errMarshal != nil {
		return fmt.Errorf("chat: marshal request: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if errReq != nil {
		return fmt.Errorf("chat: build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.opts.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.opts.SiteURL)
	}
	if c.opts.SiteName != "" {
		req.Header.Set("X-Title", c.opts.SiteName)
	}

	resp, errDo := c.http.Do(req)
	if errDo != nil {
		return fmt.Errorf("chat: upstream request: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("chat: close upstream body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	reader := newEventReader(resp.Body)
	for {
		data, errNext := reader.next()
		if errNext == io.EOF {
			return nil
		}
		if errNext != nil {
			return fmt.Errorf("chat: read stream: %w", errNext)
		}
		payload := strings.TrimSpace(string(data))
		if payload == DoneMarker {
			return nil
		}
		var chunk streamChunk
		if errChunk := json.Unmarshal([]byte(payload), &chunk); errChunk != nil {
			log.WithError(errChunk).Debug("chat: skip unparseable chunk")
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if errFragment := onFragment(chunk.Choices[0].Delta.Content); errFragment != nil {
			return errFragment
		}
	}
}
