// Package dispatch runs chat turns: it forwards a conversation to the model
// provider, consumes the streamed reply and records either the assistant's
// text or one tool call with its result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horizon/conversation"
	"horizon/display"
	"horizon/metrics"
	"horizon/model"
	"horizon/tools"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrEmptyMessage is returned when the user submits only whitespace.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrEmptyResponse is returned when the model finishes without text or a tool call.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrUnknownTool is returned when the model calls a tool outside the registry.
	ErrUnknownTool = tools.ErrUnknownTool
)

// FallbackText replaces a tool call whose arguments failed validation.
const FallbackText = "Sorry, I couldn't put that information together. Could you rephrase your request?"

// Options configures a Dispatcher.
type Options struct {
	SystemPrompt string
	// ToolDelay is the completion delay before a tool result is recorded.
	ToolDelay time.Duration
	// StreamBuffer bounds the chunks queued between provider and consumer.
	StreamBuffer int
	// Sink receives confirmed inquiries. Defaults to LogSink.
	Sink InquirySink
}

// Dispatcher runs turns against one model provider. It holds no per-chat
// state; callers serialize turns of a chat through its conversation handle.
type Dispatcher struct {
	provider model.Provider
	opts     Options
}

func New(provider model.Provider, opts Options) *Dispatcher {
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 1
	}
	if opts.ToolDelay < 0 {
		opts.ToolDelay = 0
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	return &Dispatcher{provider: provider, opts: opts}
}

// Provider returns the model provider turns are sent to.
func (d *Dispatcher) Provider() model.Provider {
	return d.provider
}

type turn struct {
	id      string
	handle  *conversation.Handle
	observe Observer
	state   State
	logger  *log.Entry
	started time.Time
}

func (t *turn) emit(e Event) {
	e.TurnID = t.id
	e.State = t.state
	e.StateName = t.state.String()
	if t.observe != nil {
		t.observe(e)
	}
}

func (t *turn) transition(s State) {
	if t.state == s {
		return
	}
	t.logger.WithFields(log.Fields{"from": t.state.String(), "state": s.String()}).Trace("turn state changed")
	t.state = s
	t.emit(Event{Type: EventState})
}

// finish returns the turn to Idle and reports its result.
func (t *turn) finish(outcome string, d display.Descriptor) display.Descriptor {
	metrics.ObserveTurn(outcome, time.Since(t.started).Seconds())
	t.transition(Idle)
	t.emit(Event{Type: EventDone, Descriptor: &d})
	return d
}

// nextID is the descriptor id of the message at offset from the end of the log.
func (t *turn) nextID(offset int) string {
	return display.ID(t.handle.ChatID(), t.handle.Len()+offset)
}

func (d *Dispatcher) newTurn(h *conversation.Handle, observe Observer) *turn {
	id := model.NewID()
	return &turn{
		id:      id,
		handle:  h,
		observe: observe,
		state:   Idle,
		started: time.Now(),
		logger: log.WithFields(log.Fields{
			"chat_id": h.ChatID(),
			"turn_id": id,
		}),
	}
}

// Submit runs one turn: it appends the user's message, streams the model's
// reply and appends either the full assistant text or one tool call with its
// result. The returned descriptor is what the caller should render.
//
// If ctx is cancelled mid-stream the partial text is discarded, only the
// user's message stays in the log, and ctx's error is returned.
func (d *Dispatcher) Submit(ctx context.Context, h *conversation.Handle, content string, observe Observer) (display.Descriptor, error) {
	if strings.TrimSpace(content) == "" {
		metrics.TurnsTotal.WithLabelValues(metrics.OutcomeEmptyInput).Inc()
		return display.Descriptor{}, ErrEmptyMessage
	}

	t := d.newTurn(h, observe)
	defer d.commit(ctx, t)

	if err := h.Append(model.NewTextMessage(model.RoleUser, content)); err != nil {
		return display.Descriptor{}, fmt.Errorf("failed to record user message: %w", err)
	}
	t.logger.Debug("user message appended")

	t.transition(AwaitingModelResponse)
	text, call, err := d.stream(ctx, t)

	switch {
	case ctx.Err() != nil:
		t.logger.WithField("discarded_chars", len(text)).Info("turn cancelled, discarding partial response")
		t.finish(metrics.OutcomeCancelled, display.Error(t.nextID(0)))
		return display.Descriptor{}, ctx.Err()
	case err != nil:
		t.logger.WithError(err).Error("model request failed")
		return t.finish(metrics.OutcomeError, display.Error(t.nextID(0))), fmt.Errorf("model request failed: %w", err)
	case call != nil:
		if text != "" {
			t.logger.WithField("chars", len(text)).Debug("dropping text streamed before tool call")
		}
		return d.runTool(ctx, t, *call)
	case text == "":
		t.logger.Warn("model returned neither text nor a tool call")
		return t.finish(metrics.OutcomeError, display.Error(t.nextID(0))), ErrEmptyResponse
	}

	id := t.nextID(0)
	if err := h.Append(model.NewTextMessage(model.RoleAssistant, text)); err != nil {
		return t.finish(metrics.OutcomeError, display.Error(id)), fmt.Errorf("failed to record assistant message: %w", err)
	}
	t.logger.WithField("chars", len(text)).Debug("assistant message appended")
	return t.finish(metrics.OutcomeText, display.Text(id, display.KindAssistant, text)), nil
}

// history is what the provider sees: the system prompt followed by the log.
func (d *Dispatcher) history(h *conversation.Handle) []model.Message {
	conv := h.CurrentState()
	msgs := make([]model.Message, 0, len(conv.Messages)+1)
	if d.opts.SystemPrompt != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: d.opts.SystemPrompt})
	}
	return append(msgs, conv.Messages...)
}

// runTool validates the call, waits out the completion delay and appends the
// call and its result together.
func (d *Dispatcher) runTool(ctx context.Context, t *turn, call model.ToolCall) (display.Descriptor, error) {
	logger := t.logger.WithField("tool", call.Name)

	inv, err := tools.Parse(call.Name, call.Arguments)
	var verr *tools.ValidationError
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		// the name is model output, keep it out of the label set
		metrics.ToolCallsTotal.WithLabelValues(metrics.UnknownTool, metrics.ToolResultUnknown).Inc()
		logger.WithField("arguments", string(call.Arguments)).Error("model called a tool outside the registry")
		return t.finish(metrics.OutcomeUnknown, display.Error(t.nextID(0))), fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	case errors.As(err, &verr):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.ToolResultInvalid).Inc()
		logger.WithError(err).Warn("tool arguments failed validation, answering with fallback text")
		id := t.nextID(0)
		if err := t.handle.Append(model.NewTextMessage(model.RoleAssistant, FallbackText)); err != nil {
			return t.finish(metrics.OutcomeError, display.Error(id)), fmt.Errorf("failed to record fallback message: %w", err)
		}
		return t.finish(metrics.OutcomeFallback, display.Text(id, display.KindAssistant, FallbackText)), nil
	case err != nil:
		return t.finish(metrics.OutcomeError, display.Error(t.nextID(0))), err
	}

	// the result message lands one past the call message
	id := t.nextID(1)
	if err := d.await(ctx, t, id, inv.Tool()); err != nil {
		logger.Info("turn cancelled while tool was running")
		t.finish(metrics.OutcomeCancelled, display.Error(id))
		return display.Descriptor{}, err
	}

	msgs, err := toolPair(inv, callIDOrNew(call.ID))
	if err != nil {
		return t.finish(metrics.OutcomeError, display.Error(id)), err
	}
	if err := t.handle.Append(msgs...); err != nil {
		return t.finish(metrics.OutcomeError, display.Error(id)), fmt.Errorf("failed to record tool call: %w", err)
	}

	metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.ToolResultOK).Inc()
	logger.Debug("tool call and result appended")
	return t.finish(metrics.OutcomeTool, display.FromInvocation(id, inv)), nil
}

// await moves the turn to ExecutingTool, shows the tool's skeleton and
// sleeps for the completion delay. The inquiry form is interactive and shows
// up at once.
func (d *Dispatcher) await(ctx context.Context, t *turn, id string, tool tools.Name) error {
	t.transition(ExecutingTool)
	if tool == tools.ShowPropertyInquiryForm {
		return ctx.Err()
	}
	skeleton := display.Skeleton(id, tool)
	t.emit(Event{Type: EventSkeleton, Descriptor: &skeleton})

	if d.opts.ToolDelay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.opts.ToolDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toolPair builds the assistant tool-call message and its tool-result reply.
func toolPair(inv tools.Invocation, callID string) ([]model.Message, error) {
	args, err := tools.MarshalArgs(inv)
	if err != nil {
		return nil, err
	}
	result, err := tools.MarshalResult(inv)
	if err != nil {
		return nil, err
	}
	name := string(inv.Tool())
	return []model.Message{
		model.NewToolCallMessage(name, callID, args),
		model.NewToolResultMessage(name, callID, result),
	}, nil
}

func callIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return model.NewID()
}

// commit persists the turn's result. Persistence is best effort and never
// changes the turn's outcome; Commit logs its own failures.
func (d *Dispatcher) commit(ctx context.Context, t *turn) {
	if err := t.handle.Commit(context.WithoutCancel(ctx)); err != nil {
		metrics.CommitFailuresTotal.Inc()
	}
}
