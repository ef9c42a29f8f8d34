package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientConfig configures the HTTP gateway client. TextURL and ImageURL
// point at OpenAI-compatible chat-completions endpoints; they may differ
// because text reasoning and image analysis are typically served by
// different model deployments.
type ClientConfig struct {
	TextURL    string
	ImageURL   string
	APIKey     string
	TextModel  string
	ImageModel string
	Timeout    time.Duration
	MaxTokens  int
}

// Client is the production Gateway implementation. It speaks the
// chat-completions wire format against dedicated model endpoints.
type Client struct {
	text      *resty.Client
	image     *resty.Client
	textModel string
	imgModel  string
	maxTokens int
}

const defaultMaxTokens = 1024

func NewClient(cfg ClientConfig) *Client {
	mk := func(baseURL string) *resty.Client {
		c := resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
		if cfg.APIKey != "" {
			c.SetAuthToken(cfg.APIKey)
		}
		if cfg.Timeout > 0 {
			c.SetTimeout(cfg.Timeout)
		}
		return c
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		text:      mk(cfg.TextURL),
		image:     mk(cfg.ImageURL),
		textModel: cfg.TextModel,
		imgModel:  cfg.ImageModel,
		maxTokens: maxTokens,
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateText implements Gateway.
func (c *Client) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	return c.complete(ctx, c.text, chatRequest{
		Model:     c.textModel,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
}

// AnalyzeImage implements Gateway. The image travels inline as a data URL,
// the way multimodal chat-completions endpoints expect it.
func (c *Client) AnalyzeImage(ctx context.Context, req ImageRequest) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Data))

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	})

	return c.complete(ctx, c.image, chatRequest{
		Model:     c.imgModel,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
}

func (c *Client) complete(ctx context.Context, client *resty.Client, body chatRequest) (string, error) {
	var out chatResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("chat completion: %w", ErrTimeout)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		return "", &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion: response contained no choices")
	}
	return out.Choices[0].Message.Content, nil
}
