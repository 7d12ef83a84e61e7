package llm

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubClient struct {
	name   string
	models []string
	calls  []string
}

func (s *stubClient) CompleteStream(ctx context.Context, req *CompletionRequest, cb StreamCallback) (*CompletionResponse, error) {
	s.calls = append(s.calls, req.Model)
	if err := cb(s.name, 0); err != nil {
		return nil, err
	}
	return &CompletionResponse{Content: s.name, Model: req.Model}, nil
}

func (s *stubClient) Name() string     { return s.name }
func (s *stubClient) Models() []string { return s.models }

func TestProviderFor(t *testing.T) {
	cases := map[string]Provider{
		"gpt-4o":                     ProviderOpenAI,
		"gpt-3.5-turbo":              ProviderOpenAI,
		"claude-3-5-sonnet-20241022": ProviderAnthropic,
		"":                           ProviderOpenAI,
	}
	for model, want := range cases {
		if got := ProviderFor(model); got != want {
			t.Fatalf("ProviderFor(%q) = %s, want %s", model, got, want)
		}
	}
}

func TestRouterDispatchesByModel(t *testing.T) {
	oa := &stubClient{name: "openai", models: []string{"gpt-4o"}}
	an := &stubClient{name: "anthropic", models: []string{"claude-3-haiku-20240307"}}
	r := NewRouter(map[Provider]Client{ProviderOpenAI: oa, ProviderAnthropic: an})

	if got := r.Models(); !reflect.DeepEqual(got, []string{"gpt-4o", "claude-3-haiku-20240307"}) {
		t.Fatalf("Models() = %v", got)
	}

	var fragments []string
	cb := func(token string, _ int) error {
		fragments = append(fragments, token)
		return nil
	}
	if _, err := r.CompleteStream(context.Background(), &CompletionRequest{Model: "claude-3-haiku-20240307"}, cb); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := r.CompleteStream(context.Background(), &CompletionRequest{Model: "gpt-4o"}, cb); err != nil {
		t.Fatalf("stream: %v", err)
	}

	if len(an.calls) != 1 || len(oa.calls) != 1 {
		t.Fatalf("unexpected routing: openai=%v anthropic=%v", oa.calls, an.calls)
	}
	if !reflect.DeepEqual(fragments, []string{"anthropic", "openai"}) {
		t.Fatalf("fragments = %v", fragments)
	}
}

func TestRouterWithoutProvider(t *testing.T) {
	r := NewRouter(map[Provider]Client{ProviderOpenAI: &stubClient{name: "openai"}, ProviderAnthropic: nil})

	if r.Empty() {
		t.Fatalf("router with one client reported empty")
	}
	_, err := r.CompleteStream(context.Background(), &CompletionRequest{Model: "claude-3-opus-20240229"}, func(string, int) error { return nil })
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}

	if !NewRouter(nil).Empty() {
		t.Fatalf("router without clients should be empty")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderOpenAI, "key", "http://localhost:1/v1")
	if err != nil || c.Name() != "openai" {
		t.Fatalf("openai client: %v, %v", c, err)
	}
	c, err = NewClient(ProviderAnthropic, "key", "")
	if err != nil || c.Name() != "anthropic" {
		t.Fatalf("anthropic client: %v, %v", c, err)
	}

	if _, err := NewClient(ProviderOpenAI, "", ""); err == nil {
		t.Fatalf("expected an error for a missing key")
	}
	if _, err := NewClient(Provider("mistral"), "key", ""); err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}
