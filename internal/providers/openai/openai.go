// Package openai adapts an OpenAI-compatible chat completion API to the
// llm node's text-generation capability.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	oai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: api key not set")

// Config holds the provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	// RequestsPerSecond paces outgoing requests. 0 disables pacing.
	RequestsPerSecond float64
}

// Client generates text through chat completions.
type Client struct {
	api     *oai.Client
	limiter *rate.Limiter
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		api:     oai.NewClientWithConfig(c),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Generate implements nodes.TextGenerator.
func (c *Client) Generate(ctx context.Context, req nodes.GenerateRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			// The limiter refuses waits that would outlast the deadline.
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatRequest(req))
	if err != nil {
		return "", providerError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &nodes.ProviderError{Message: "model returned no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func chatRequest(req nodes.GenerateRequest) oai.ChatCompletionRequest {
	var messages []oai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, oai.ChatCompletionMessage{
			Role:    oai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	user := oai.ChatCompletionMessage{Role: oai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = req.UserMessage
	} else {
		user.MultiContent = append(user.MultiContent, oai.ChatMessagePart{
			Type: oai.ChatMessagePartTypeText,
			Text: req.UserMessage,
		})
		for _, url := range req.Images {
			user.MultiContent = append(user.MultiContent, oai.ChatMessagePart{
				Type:     oai.ChatMessagePartTypeImageURL,
				ImageURL: &oai.ChatMessageImageURL{URL: url, Detail: oai.ImageURLDetailAuto},
			})
		}
	}
	messages = append(messages, user)

	out := oai.ChatCompletionRequest{Model: req.Model, Messages: messages}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
		if out.Temperature == 0 {
			// A zero temperature is dropped by omitempty.
			out.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.Thinking {
		out.ReasoningEffort = "medium"
	}
	return out
}

// providerError maps client errors onto nodes.ProviderError so the executor
// can classify them.
func providerError(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &nodes.ProviderError{StatusCode: apiErr.HTTPStatusCode, Code: code, Message: apiErr.Message}
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &nodes.ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
