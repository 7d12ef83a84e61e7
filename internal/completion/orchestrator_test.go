package completion

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/oaiwrapper/oaiwrapper/internal/llm"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

// fakeClient streams fixed fragments and then returns err.
type fakeClient struct {
	fragments []string
	err       error
	calls     int
	lastReq   *llm.CompletionRequest
}

func (f *fakeClient) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	for i, frag := range f.fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := cb(frag, i); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Model: req.Model}, nil
}

func (f *fakeClient) Name() string     { return "fake" }
func (f *fakeClient) Models() []string { return []string{"fake-model"} }

func newRequest() *Request {
	return &Request{
		Model:    "gpt-3.5-turbo",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hello"}},
		Params:   model.DefaultGenerationParams(),
	}
}

func TestRunCompleted(t *testing.T) {
	client := &fakeClient{fragments: []string{"Hi", " there"}}
	o := New(client, nil)

	var seen, accumulated []string
	out := o.Run(context.Background(), newRequest(), func(frag, acc string) error {
		seen = append(seen, frag)
		accumulated = append(accumulated, acc)
		return nil
	})

	if out.State != StateCompleted {
		t.Fatalf("state = %s, want completed", out.State)
	}
	if out.Content != "Hi there" || out.Fragments != 2 || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !reflect.DeepEqual(seen, []string{"Hi", " there"}) {
		t.Fatalf("fragments = %v", seen)
	}
	if !reflect.DeepEqual(accumulated, []string{"Hi", "Hi there"}) {
		t.Fatalf("accumulated = %v", accumulated)
	}

	req := client.lastReq
	if req.Model != "gpt-3.5-turbo" || !req.Stream || req.MaxTokens != 1024 {
		t.Fatalf("unexpected upstream request: %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
		t.Fatalf("unexpected history: %+v", req.Messages)
	}
}

func TestRunStoppedMidStream(t *testing.T) {
	client := &fakeClient{fragments: []string{"Hel", "lo", " world"}}
	o := New(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := o.Run(ctx, newRequest(), func(frag, acc string) error {
		cancel()
		return nil
	})

	if out.State != StateStopped {
		t.Fatalf("state = %s, want stopped", out.State)
	}
	if out.Content != "Hel" || out.Fragments != 1 {
		t.Fatalf("partial content = %q (%d fragments), want %q", out.Content, out.Fragments, "Hel")
	}
	if out.Err != nil {
		t.Fatalf("stopped run carried error %v", out.Err)
	}
}

func TestRunStoppedBeforeStart(t *testing.T) {
	client := &fakeClient{fragments: []string{"never"}}
	o := New(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := o.Run(ctx, newRequest(), nil)
	if out.State != StateStopped || out.Content != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if client.calls != 0 {
		t.Fatalf("upstream called %d times", client.calls)
	}
}

func TestRunFailedKeepsPartialContent(t *testing.T) {
	upstream := errors.New("connection reset")
	client := &fakeClient{fragments: []string{"Par", "tial"}, err: upstream}
	o := New(client, nil)

	out := o.Run(context.Background(), newRequest(), nil)
	if out.State != StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	if out.Content != "Partial" {
		t.Fatalf("content = %q", out.Content)
	}
	if !errors.Is(out.Err, ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", out.Err)
	}
}

func TestRunFailedWithoutContent(t *testing.T) {
	client := &fakeClient{err: llm.ErrNoProvider}
	o := New(client, nil)

	out := o.Run(context.Background(), newRequest(), nil)
	if out.State != StateFailed || out.Content != "" || out.Fragments != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !errors.Is(out.Err, ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", out.Err)
	}
}

func TestRunConsumerErrorStops(t *testing.T) {
	client := &fakeClient{fragments: []string{"one", "two", "three"}}
	o := New(client, nil)

	calls := 0
	out := o.Run(context.Background(), newRequest(), func(frag, acc string) error {
		calls++
		if calls == 2 {
			return errors.New("client gone")
		}
		return nil
	})

	if out.State != StateStopped {
		t.Fatalf("state = %s, want stopped", out.State)
	}
	if out.Content != "onetwo" {
		t.Fatalf("content = %q", out.Content)
	}
	if calls != 2 {
		t.Fatalf("consumer called %d times", calls)
	}
}
