package dispatch

import (
	"context"
	"strings"

	"horizon/metrics"
	"horizon/model"
	"horizon/tools"

	log "github.com/sirupsen/logrus"
)

// chunk is one unit on the stream channel. The final chunk has done set and
// carries the provider's error, if any.
type chunk struct {
	text  string
	calls []model.ToolCall
	done  bool
	err   error
}

// produce runs the provider and pushes its output onto out, closing it after
// the terminal chunk. Sends block while out is full; a cancelled ctx aborts
// the provider through the callback's error.
func (d *Dispatcher) produce(ctx context.Context, history []model.Message, out chan<- chunk) {
	defer close(out)

	err := d.provider.ChatWithTools(ctx, history, tools.Schemas(), func(text string, calls []model.ToolCall) error {
		if text == "" && len(calls) == 0 {
			return nil
		}
		select {
		case out <- chunk{text: text, calls: calls}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	out <- chunk{done: true, err: err}
}

// stream consumes the provider's reply in arrival order. It returns the
// accumulated text and the first tool call, if the model made one.
func (d *Dispatcher) stream(ctx context.Context, t *turn) (string, *model.ToolCall, error) {
	out := make(chan chunk, d.opts.StreamBuffer)
	go d.produce(ctx, d.history(t.handle), out)

	var (
		text strings.Builder
		call *model.ToolCall
		err  error
	)
	for c := range out {
		if c.done {
			err = c.err
			continue
		}

		if c.text != "" {
			metrics.StreamChunksTotal.Inc()
			text.WriteString(c.text)
			if call == nil {
				t.transition(StreamingText)
				t.emit(Event{Type: EventDelta, Delta: c.text})
			}
		}

		if len(c.calls) > 0 && call == nil {
			first := c.calls[0]
			call = &first
			if len(c.calls) > 1 {
				t.logger.WithField("ignored", len(c.calls)-1).Warn("model requested several tool calls, only the first runs")
			}
			t.logger.WithFields(log.Fields{"tool": first.Name}).Debug("tool call received")
			t.transition(ExecutingTool)
		}
	}
	return text.String(), call, err
}
