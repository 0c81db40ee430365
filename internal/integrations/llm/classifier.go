// Package llm calls the topic classification model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIURL      = "https://api.openai.com/v1/chat/completions"
	defaultMaxTokens      = 300
)

type Usage struct {
	Requests     int64
	InputTokens  int64
	OutputTokens int64
}

func (u *Usage) Add(other Usage) {
	u.Requests += other.Requests
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

type Settings struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	MaxTokens       int
	HTTPClient      *http.Client

	// Endpoint overrides for proxies and tests.
	AnthropicBaseURL string
	OpenAIURL        string
}

type Client struct {
	provider   string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	anthropic  anthropic.Client
	openAIURL  string

	mu    sync.Mutex
	usage Usage
}

func NewClient(s Settings) (*Client, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" {
		provider = "anthropic"
	}
	c := &Client{
		provider:   provider,
		model:      strings.TrimSpace(s.Model),
		maxTokens:  s.MaxTokens,
		httpClient: s.HTTPClient,
		openAIURL:  s.OpenAIURL,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	switch provider {
	case "anthropic":
		if s.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
		c.apiKey = s.AnthropicAPIKey
		if c.model == "" {
			c.model = defaultAnthropicModel
		}
		opts := []option.RequestOption{
			option.WithAPIKey(s.AnthropicAPIKey),
			option.WithHTTPClient(c.httpClient),
		}
		if s.AnthropicBaseURL != "" {
			opts = append(opts, option.WithBaseURL(s.AnthropicBaseURL))
		}
		c.anthropic = anthropic.NewClient(opts...)
	case "openai":
		if s.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
		c.apiKey = s.OpenAIAPIKey
		if c.model == "" {
			c.model = defaultOpenAIModel
		}
		if c.openAIURL == "" {
			c.openAIURL = defaultOpenAIURL
		}
	default:
		return nil, fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", s.Provider)
	}
	return c, nil
}

func (c *Client) Provider() string { return c.provider }
func (c *Client) Model() string    { return c.model }

// Usage returns token totals accumulated across Classify calls.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Classify sends prompt as a single user message and returns the raw reply
// text.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	var (
		text  string
		usage Usage
		err   error
	)
	switch c.provider {
	case "openai":
		log.Printf("llm classify provider=openai model=%s prompt_chars=%d", c.model, len(prompt))
		text, usage, err = c.callOpenAI(ctx, prompt)
	default:
		log.Printf("llm classify provider=anthropic model=%s prompt_chars=%d", c.model, len(prompt))
		text, usage, err = c.callAnthropic(ctx, prompt)
	}
	c.mu.Lock()
	c.usage.Add(usage)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// --- Anthropic ---

func (c *Client) callAnthropic(ctx context.Context, prompt string) (string, Usage, error) {
	message, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		Requests:     1,
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), usage.InputTokens, usage.OutputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) callOpenAI(ctx context.Context, prompt string) (string, Usage, error) {
	bodyBytes, err := json.Marshal(openAIRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.openAIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}
	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}

	usage := Usage{Requests: 1}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	content := openAIResp.Choices[0].Message.Content
	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(content), usage.InputTokens, usage.OutputTokens)
	return content, usage, nil
}
