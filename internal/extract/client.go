// Package extract turns stored group messages into structured property
// listings by sending batches of message texts to an LLM and normalizing
// the replies into domain records.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Candidate is one raw listing produced by the model for a message text.
// Numeric fields are `any` because models emit them inconsistently as JSON
// numbers or strings; normalization coerces them afterwards.
type Candidate struct {
	ListingType  string `json:"listing_type"`
	PropertyType string `json:"property_type"`
	Location     string `json:"location"`
	Price        any    `json:"price"`
	Bedrooms     any    `json:"bedrooms"`
	Bathrooms    any    `json:"bathrooms"`
	AreaSqft     any    `json:"area_sqft"`
	Floor        any    `json:"floor"`
	Furnishing   string `json:"furnishing"`
	Parking      any    `json:"parking"`
	ContactPhone string `json:"contact_phone"`
	Confidence   any    `json:"confidence"`
}

// MessageResult holds the candidates the model produced for a single input
// text. A text that contains no listing yields an empty Candidates slice.
type MessageResult struct {
	Candidates []Candidate `json:"listings"`
}

// Inference is the narrow LLM surface the extraction job depends on.
// ExtractBatch must return exactly one MessageResult per input text, in
// input order, plus the raw model response for persistence.
type Inference interface {
	ExtractBatch(ctx context.Context, texts []string) ([]MessageResult, string, error)
}

// ErrBatchMismatch is returned when the model reply violates the batch
// contract, either because it is not parseable JSON or because it does not
// contain one result per input text. Such a reply cannot be attributed
// positionally, and with deterministic inference retrying the same batch
// reproduces the same reply, so callers must consume the batch rather than
// requeue it.
var ErrBatchMismatch = errors.New("extract: reply violates the batch contract")

const systemPrompt = `You extract real-estate listings from WhatsApp group messages.

You receive a JSON array of message texts. Reply with a JSON object:
  {"results": [{"listings": [...]}, ...]}
with exactly one entry in "results" per input text, in the same order.

Each listing object has these fields (omit or null when absent from the text):
  listing_type   one of "sale", "rental", "lease"
  property_type  e.g. "apartment", "house", "villa", "plot", "commercial", "office", "shop"
  location       neighbourhood / area / city as written
  price          numeric amount in rupees (expand lakh/crore)
  bedrooms, bathrooms, area_sqft, floor  integers
  furnishing     one of "furnished", "semi-furnished", "unfurnished"
  parking        integer number of parking slots, or true/false
  contact_phone  phone number as written
  confidence     0.0-1.0, how certain you are this is a real listing

A text may contain zero, one, or several listings. Never invent values.`

// OpenAIClient implements Inference on top of the OpenAI chat completions
// API with JSON-mode output and linear-backoff retries.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIClient constructs an OpenAIClient. Model may be empty, in which
// case GPT-4o mini is used.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client:     openai.NewClient(apiKey),
		model:      model,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type batchEnvelope struct {
	Results []MessageResult `json:"results"`
}

// ExtractBatch sends the texts as one chat completion and parses the reply.
// Transient API failures are retried; a reply that is not valid JSON or
// whose result count differs from the input count fails with
// ErrBatchMismatch.
func (c *OpenAIClient) ExtractBatch(ctx context.Context, texts []string) ([]MessageResult, string, error) {
	if len(texts) == 0 {
		return nil, "", nil
	}

	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, "", fmt.Errorf("extract: marshal batch: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	}

	var resp openai.ChatCompletionResponse
	for attempt := 0; ; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if attempt >= c.maxRetries || ctx.Err() != nil {
			return nil, "", fmt.Errorf("extract: chat completion: %w", err)
		}
		select {
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}

	if len(resp.Choices) == 0 {
		return nil, "", errors.New("extract: empty completion")
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)

	var env batchEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, raw, fmt.Errorf("%w: parse completion: %v", ErrBatchMismatch, err)
	}
	if len(env.Results) != len(texts) {
		return nil, raw, fmt.Errorf("%w: got %d, want %d", ErrBatchMismatch, len(env.Results), len(texts))
	}
	return env.Results, raw, nil
}
