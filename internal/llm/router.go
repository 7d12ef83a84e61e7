package llm

import (
	"context"
	"fmt"
)

// Router dispatches requests to the client serving the requested model.
type Router struct {
	clients map[Provider]Client
}

// NewRouter builds a router. Nil clients are skipped.
func NewRouter(clients map[Provider]Client) *Router {
	r := &Router{clients: make(map[Provider]Client)}
	for p, c := range clients {
		if c != nil {
			r.clients[p] = c
		}
	}
	return r
}

// Name returns the provider name.
func (r *Router) Name() string {
	return "router"
}

// Models returns the models of every configured provider, OpenAI first.
func (r *Router) Models() []string {
	var models []string
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic} {
		if c, ok := r.clients[p]; ok {
			models = append(models, c.Models()...)
		}
	}
	return models
}

// Empty reports whether no provider is configured.
func (r *Router) Empty() bool {
	return len(r.clients) == 0
}

// CompleteStream routes a streaming completion request.
func (r *Router) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	c, err := r.clientFor(req.Model)
	if err != nil {
		return nil, err
	}
	return c.CompleteStream(ctx, req, callback)
}

func (r *Router) clientFor(model string) (Client, error) {
	p := ProviderFor(model)
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w for model %q (%s)", ErrNoProvider, model, p)
	}
	return c, nil
}
