// Package ai splits tasks into steps with an OpenAI-compatible
// chat-completions endpoint.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xvierd/stepflow/internal/ports"
)

const (
	// DefaultEndpoint is the base URL used when none is configured.
	DefaultEndpoint = "https://api.openai.com/v1"
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.GPT4oMini
	// MaxSteps caps how many steps one breakdown may return.
	MaxSteps = 8
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("AI breakdown is not configured")
	// ErrBadResponse is returned when the endpoint answers with an error
	// status or an unusable body.
	ErrBadResponse = errors.New("unexpected AI response")
)

// listMarker matches bullets and numbering in front of a step line.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|\[[ xX]?\])\s*`)

const systemPrompt = `You break a task into small, concrete steps that each take a few minutes.
Answer with one step per line, at most 8 lines, no numbering, no commentary.`

// Config configures a Breakdowner.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Breakdowner implements ports.Breakdowner.
type Breakdowner struct {
	cfg    Config
	client *openai.Client
}

var _ ports.Breakdowner = (*Breakdowner)(nil)

// New creates a breakdowner. A nil httpClient means a default *http.Client
// with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Breakdowner {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	clientCfg.HTTPClient = httpClient
	return &Breakdowner{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Breakdown asks the model for steps and parses one step per line.
func (b *Breakdowner) Breakdown(ctx context.Context, title, description string) ([]string, error) {
	if b.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	user := "Task: " + title
	if strings.TrimSpace(description) != "" {
		user += "\nDetails: " + description
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return ParseSteps(resp.Choices[0].Message.Content), nil
}

// classify marks error statuses from the endpoint as ErrBadResponse.
// Transport and context errors are wrapped unchanged.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d: %v", ErrBadResponse, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

// ParseSteps turns a model answer into step titles. Blank lines and list
// markers are dropped and at most MaxSteps are kept.
func ParseSteps(content string) []string {
	var steps []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, "*_`")
		if line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) == MaxSteps {
			break
		}
	}
	return steps
}
