// Package genai wraps an OpenAI-compatible chat completions endpoint for
// intent classification, structured extraction, and tool-calling loops.
//
// The default base URL targets Groq's OpenAI-compatible API. Requests are
// paced by a client-side rate limiter, and transient failures are retried
// with exponential backoff.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	tferrors "github.com/randalmurphal/traveops/pkg/turnflow/errors"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "llama-3.3-70b-versatile"

	// DefaultMaxTokens caps completion length when none is configured.
	DefaultMaxTokens = 1024

	// DefaultRequestsPerMinute is the client-side pacing applied when no
	// rate limit is configured.
	DefaultRequestsPerMinute = 60
)

// ErrNoChoicesReturned indicates the provider returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// sdkChatService adapts the OpenAI SDK client to chatService.
type sdkChatService struct {
	client openai.Client
}

func (s sdkChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the chat completion service with model settings, pacing,
// and retry behavior.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
	limiter     *rate.Limiter
	retry       tferrors.RetryConfig

	apiKey  string
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key. When absent, NewClient falls back to the
// GROQ_API_KEY and OPENAI_API_KEY environment variables.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = int64(n)
	}
}

// WithRateLimit paces requests to at most rpm per minute. Zero disables
// client-side pacing.
func WithRateLimit(rpm int) Option {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
}

// WithRetry overrides the retry configuration for transient failures.
func WithRetry(cfg tferrors.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient builds a chat client against an OpenAI-compatible endpoint.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		baseURL:   DefaultBaseURL,
		retry:     tferrors.DefaultRetry,
	}
	WithRateLimit(DefaultRequestsPerMinute)(c)
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = firstEnv("GROQ_API_KEY", "OPENAI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, errors.New("api key not set: use WithAPIKey or set GROQ_API_KEY or OPENAI_API_KEY")
	}

	sdk := openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithMaxRetries(0),
	)
	c.chat = sdkChatService{client: sdk}
	return c, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// ClientInterface is the client surface workflow code depends on. It is
// satisfied by *Client and by test doubles.
type ClientInterface interface {
	Model() string
	Generate(ctx context.Context, system, user string) (string, error)
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GenerateStructured(ctx context.Context, system, user string, out any) error
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
}

var _ ClientInterface = (*Client)(nil)

// Model returns the configured chat model.
func (c *Client) Model() string {
	return c.model
}

// Generate produces a completion for a single system/user prompt pair.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	return c.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	})
}

// GenerateWithMessages produces a completion for a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.complete(ctx, c.params(messages))
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured requests a JSON object response and decodes it into out.
// Malformed model output surfaces as a *errors.JSONParseError, which the
// retry layer treats as escalatable rather than transient.
func (c *Client) GenerateStructured(ctx context.Context, system, user string, out any) error {
	params := c.params([]openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	})
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
	}

	resp, err := c.complete(ctx, params)
	if err != nil {
		return err
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(stripFences(content)), out); err != nil {
		return &tferrors.JSONParseError{Input: content, Message: err.Error()}
	}
	return nil
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolCallResponse is the model's reply when tools are offered: plain
// content, tool calls to execute, or both.
type ToolCallResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *ToolCallResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// AssistantParam rebuilds the assistant message carrying these tool calls.
// It must be appended to the conversation before the tool result messages
// that reference the call IDs.
func (r *ToolCallResponse) AssistantParam() openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(r.Content)},
			ToolCalls: calls,
		},
	}
}

// GenerateWithTools produces a completion with the given tools offered to
// the model.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	params := c.params(messages)
	params.Tools = tools

	resp, err := c.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (c *Client) params(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}
}

// complete runs one chat completion with pacing and transient-only retry.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	cfg := c.retry
	if cfg.MaxAttempts <= 0 {
		cfg = tferrors.NoRetry
	}

	result := tferrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (openai.ChatCompletion, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return openai.ChatCompletion{}, err
			}
		}
		resp, err := c.chat.Create(ctx, params)
		if err != nil {
			return openai.ChatCompletion{}, classifyTransport(err)
		}
		if len(resp.Choices) == 0 {
			return openai.ChatCompletion{}, ErrNoChoicesReturned
		}
		return resp, nil
	})
	if result.Err != nil {
		return openai.ChatCompletion{}, result.Err
	}
	return result.Value, nil
}

// classifyTransport maps SDK and transport failures onto retry categories.
// API errors carry their HTTP status; anything else that reached the wire
// is assumed transient.
func classifyTransport(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &tferrors.HTTPError{
			StatusCode: apierr.StatusCode,
			Message:    apierr.Message,
			Endpoint:   "chat/completions",
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var tagged *tferrors.CategorizedError
	var httpErr *tferrors.HTTPError
	if errors.As(err, &tagged) || errors.As(err, &httpErr) {
		return err
	}
	return tferrors.Transient(err, "chat completion request")
}

// stripFences removes a markdown code fence wrapper some models emit
// around JSON payloads.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
