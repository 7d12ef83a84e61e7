package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

// chatServer serves a canned chat completion stream and records the request
// body it received.
func chatServer(t *testing.T, fragments []string) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	body := map[string]interface{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			chunk, _ := json.Marshal(map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"model":   body["model"],
				"choices": []interface{}{map[string]interface{}{"index": 0, "delta": map[string]string{"content": f}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func streamThrough(t *testing.T, srv *httptest.Server, req *CompletionRequest) []string {
	t.Helper()
	c, err := NewOpenAIClient("test-key", srv.URL+"/v1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var got []string
	_, err = c.CompleteStream(context.Background(), req, func(token string, _ int) error {
		got = append(got, token)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return got
}

func TestOpenAIForwardsZeroSamplingParams(t *testing.T) {
	srv, body := chatServer(t, []string{"Hi"})

	streamThrough(t, srv, &CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []ChatMessage{{Role: "user", Content: "hello"}},
		MaxTokens:   10,
		Temperature: 0,
		TopP:        0,
	})

	for _, key := range []string{"temperature", "top_p"} {
		v, ok := (*body)[key].(float64)
		if !ok {
			t.Fatalf("%s missing from upstream request: %v", key, *body)
		}
		if v <= 0 || v > 1e-6 {
			t.Fatalf("%s = %v, want a value indistinguishable from zero", key, v)
		}
	}
}

func TestOpenAIForwardsParams(t *testing.T) {
	srv, body := chatServer(t, []string{"Hel", "lo"})

	got := streamThrough(t, srv, &CompletionRequest{
		Model:            "gpt-4o",
		Messages:         []ChatMessage{{Role: "user", Content: "hello"}},
		MaxTokens:        200,
		Temperature:      0.7,
		TopP:             0.9,
		FrequencyPenalty: -1,
	})

	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Fatalf("fragments = %v", got)
	}

	want := map[string]float64{
		"temperature":       0.7,
		"top_p":             0.9,
		"frequency_penalty": -1,
		"max_tokens":        200,
	}
	for key, w := range want {
		v, ok := (*body)[key].(float64)
		if !ok || math.Abs(v-w) > 1e-6 {
			t.Fatalf("%s = %v, want %v", key, (*body)[key], w)
		}
	}
	if (*body)["model"] != "gpt-4o" || (*body)["stream"] != true {
		t.Fatalf("unexpected request: %v", *body)
	}
}
