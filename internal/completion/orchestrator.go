// Package completion drives one streamed assistant reply from the upstream
// completion service.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/llm"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
	"github.com/oaiwrapper/oaiwrapper/pkg/metrics"
)

// ErrCompletion wraps every upstream failure.
var ErrCompletion = errors.New("completion failed")

// errHalted aborts the upstream stream from inside the fragment callback.
var errHalted = errors.New("stream halted")

// State is the lifecycle of a single run.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// FragmentFunc receives each fragment together with everything accumulated
// so far. A non-nil error halts the stream.
type FragmentFunc func(fragment, accumulated string) error

// Request is one streamed completion.
type Request struct {
	Model    string
	Messages []model.Message
	Params   model.GenerationParams
}

// Outcome is the terminal result of Run. Content holds whatever was
// accumulated, including on Stopped and Failed.
type Outcome struct {
	State     State
	Content   string
	Fragments int
	Err       error
}

// Orchestrator runs streamed completions against an llm.Client.
type Orchestrator struct {
	client llm.Client
	logger *logger.Logger
	tracer trace.Tracer
}

// New creates an orchestrator.
func New(client llm.Client, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		client: client,
		logger: log.Named("completion"),
		tracer: otel.Tracer("github.com/oaiwrapper/oaiwrapper/internal/completion"),
	}
}

// Run streams a reply for req. Cancelling ctx stops the run and closes the
// upstream stream; a run whose ctx is already done never reaches upstream.
func (o *Orchestrator) Run(ctx context.Context, req *Request, onFragment FragmentFunc) *Outcome {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "completion.stream", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.history", len(req.Messages)),
	))
	defer span.End()

	out := &Outcome{State: StateIdle}
	if ctx.Err() != nil {
		out.State = StateStopped
		o.finish(span, req.Model, out, start)
		return out
	}

	out.State = StateStreaming
	var buf strings.Builder
	var consumerErr error

	callback := func(token string, _ int) error {
		if ctx.Err() != nil {
			return errHalted
		}
		buf.WriteString(token)
		out.Fragments++
		if onFragment != nil {
			if err := onFragment(token, buf.String()); err != nil {
				consumerErr = err
				return errHalted
			}
		}
		return nil
	}

	_, err := o.client.CompleteStream(ctx, buildRequest(req), callback)
	out.Content = buf.String()

	switch {
	case err == nil:
		out.State = StateCompleted
	case errors.Is(err, errHalted), ctx.Err() != nil:
		out.State = StateStopped
		if consumerErr != nil {
			o.logger.Debug("fragment consumer halted stream", zap.Error(consumerErr))
		}
	default:
		out.State = StateFailed
		out.Err = fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	o.finish(span, req.Model, out, start)
	return out
}

func (o *Orchestrator) finish(span trace.Span, modelName string, out *Outcome, start time.Time) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.String("completion.outcome", string(out.State)),
		attribute.Int("completion.fragments", out.Fragments),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		o.logger.Warn("completion failed",
			zap.String("model", modelName),
			zap.Int("fragments", out.Fragments),
			zap.Error(out.Err),
		)
	}
	metrics.RecordTurn(modelName, string(out.State), elapsed.Seconds(), out.Fragments)
}

func buildRequest(req *Request) *llm.CompletionRequest {
	messages := make([]llm.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return &llm.CompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        req.Params.MaxTokens,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		Stream:           true,
	}
}
