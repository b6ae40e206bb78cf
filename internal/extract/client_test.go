package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// completionStub serves the chat completions endpoint, replying with the
// configured message content.
func completionStub(t *testing.T, content string) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		model:      "test-model",
		maxRetries: 0,
		retryDelay: time.Millisecond,
	}
}

func TestExtractBatchParsesResults(t *testing.T) {
	c := completionStub(t, `{"results":[{"listings":[{"listing_type":"sale","confidence":0.9}]},{"listings":[]}]}`)

	results, raw, err := c.ExtractBatch(context.Background(), []string{"2bhk for sale", "good morning"})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if raw == "" {
		t.Fatalf("raw response not returned")
	}
	if len(results) != 2 {
		t.Fatalf("results = %d; want 2", len(results))
	}
	if len(results[0].Candidates) != 1 || results[0].Candidates[0].ListingType != "sale" {
		t.Fatalf("first result unexpected: %+v", results[0])
	}
	if len(results[1].Candidates) != 0 {
		t.Fatalf("second result should be empty: %+v", results[1])
	}
}

func TestExtractBatchProseReplyIsBatchMismatch(t *testing.T) {
	c := completionStub(t, "Sure! Here are the results: [not json]")

	_, raw, err := c.ExtractBatch(context.Background(), []string{"2bhk for sale", "3bhk for rent"})
	if !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("err = %v; want ErrBatchMismatch", err)
	}
	if raw == "" {
		t.Fatalf("raw reply should be returned for persistence even on failure")
	}
}

func TestExtractBatchCountMismatch(t *testing.T) {
	c := completionStub(t, `{"results":[{"listings":[]}]}`)

	_, _, err := c.ExtractBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("err = %v; want ErrBatchMismatch", err)
	}
}

func TestExtractBatchEmptyInput(t *testing.T) {
	c := completionStub(t, `{"results":[]}`)

	results, raw, err := c.ExtractBatch(context.Background(), nil)
	if err != nil || raw != "" || results != nil {
		t.Fatalf("empty input should short-circuit: %v %q %v", err, raw, results)
	}
}
