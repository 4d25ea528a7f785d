package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizon/auth"
	"horizon/conversation"
	"horizon/display"
	"horizon/metrics"
	"horizon/model"
	"horizon/provider/testutil"
	"horizon/storage"
	"horizon/tools"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) deltas() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, e := range r.events {
		if e.Type == EventDelta {
			b.WriteString(e.Delta)
		}
	}
	return b.String()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, e := range r.events {
		if e.Type == EventState {
			out = append(out, e.State)
		}
	}
	return out
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func acquire(t *testing.T, store *conversation.Store, chatID string) *conversation.Handle {
	t.Helper()
	h, err := store.Acquire(context.Background(), chatID)
	require.NoError(t, err)
	t.Cleanup(h.Release)
	return h
}

// assertPaired checks that every tool call is immediately followed by its
// result and no result appears on its own.
func assertPaired(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i, m := range msgs {
		for _, p := range m.Parts {
			switch p.Type {
			case model.PartToolCall:
				require.Less(t, i+1, len(msgs), "tool call %s has no result", p.ToolCallID)
				next := msgs[i+1]
				require.Len(t, next.Parts, 1)
				assert.Equal(t, model.PartToolResult, next.Parts[0].Type)
				assert.Equal(t, p.ToolCallID, next.Parts[0].ToolCallID)
			case model.PartToolResult:
				require.Greater(t, i, 0, "tool result without call")
				prev := msgs[i-1]
				require.Len(t, prev.Parts, 1)
				assert.Equal(t, model.PartToolCall, prev.Parts[0].Type)
				assert.Equal(t, p.ToolCallID, prev.Parts[0].ToolCallID)
			}
		}
	}
}

func TestSubmitStreamsText(t *testing.T) {
	chunks := []string{"Hello", ", ", "wörld", "! ", "Prices are up 3%."}
	prov := testutil.NewScriptedProvider(testutil.Turn{Chunks: chunks})
	d := New(prov, Options{SystemPrompt: "be helpful", StreamBuffer: 2})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	rec := &recorder{}
	desc, err := d.Submit(context.Background(), h, "What's new?", rec.observe)
	require.NoError(t, err)

	want := strings.Join(chunks, "")
	assert.Equal(t, display.KindAssistant, desc.Kind)
	assert.Equal(t, want, desc.Text)
	assert.Equal(t, "chat-1", desc.ID)

	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, want, msgs[1].Content)
	assert.Equal(t, want, rec.deltas(), "deltas must concatenate to the persisted text")

	assert.Equal(t, []State{AwaitingModelResponse, StreamingText, Idle}, rec.states())
	done := rec.ofType(EventDone)
	require.Len(t, done, 1)
	assert.Equal(t, desc, *done[0].Descriptor)
}

func TestSubmitSendsSystemPromptAndTools(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{Chunks: []string{"ok"}})
	d := New(prov, Options{SystemPrompt: "you sell houses"})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.Submit(context.Background(), h, "hi", nil)
	require.NoError(t, err)

	histories := prov.Histories()
	require.Len(t, histories, 1)
	require.Len(t, histories[0], 2)
	assert.Equal(t, model.RoleSystem, histories[0][0].Role)
	assert.Equal(t, "you sell houses", histories[0][0].Content)
	assert.Equal(t, "hi", histories[0][1].Content)

	offered := prov.OfferedTools()
	require.Len(t, offered, 1)
	assert.Len(t, offered[0], 4)
}

func TestSubmitKeepsChunkOrderUnderBackPressure(t *testing.T) {
	var chunks []string
	for i := 0; i < 200; i++ {
		chunks = append(chunks, fmt.Sprintf("<%d>", i))
	}
	prov := testutil.NewScriptedProvider(testutil.Turn{Chunks: chunks})
	d := New(prov, Options{StreamBuffer: 1})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	rec := &recorder{}
	slow := func(e Event) {
		if e.Type == EventDelta {
			time.Sleep(100 * time.Microsecond)
		}
		rec.observe(e)
	}
	desc, err := d.Submit(context.Background(), h, "stream please", slow)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(chunks, ""), rec.deltas())
	assert.Equal(t, rec.deltas(), desc.Text)
}

func TestSubmitShowPropertyDetails(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("call-1", "showPropertyDetails",
			`{"id":"P123","price":450000,"description":"Two-bedroom flat with balcony"}`)},
	})
	d := New(prov, Options{ToolDelay: time.Millisecond})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	rec := &recorder{}
	desc, err := d.Submit(context.Background(), h, "show me property P123", rec.observe)
	require.NoError(t, err)

	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 3)
	assertPaired(t, msgs)

	call := msgs[1]
	assert.Equal(t, model.RoleAssistant, call.Role)
	assert.Equal(t, "showPropertyDetails", call.Parts[0].ToolName)
	assert.Equal(t, "call-1", call.Parts[0].ToolCallID)
	assert.Contains(t, string(call.Parts[0].Args), `"P123"`)

	var result tools.Property
	require.NoError(t, json.Unmarshal(msgs[2].Parts[0].Result, &result))
	assert.Equal(t, "P123", result.ID)

	assert.Equal(t, display.KindPropertyCard, desc.Kind)
	require.NotNil(t, desc.Property)
	assert.Equal(t, "P123", desc.Property.ID)
	assert.Equal(t, "chat-2", desc.ID)

	skeletons := rec.ofType(EventSkeleton)
	require.Len(t, skeletons, 1)
	assert.Equal(t, display.KindSkeleton, skeletons[0].Descriptor.Kind)
	assert.Equal(t, desc.ID, skeletons[0].Descriptor.ID)
	assert.Equal(t, []State{AwaitingModelResponse, ExecutingTool, Idle}, rec.states())

	// the descriptor matches what a later render derives from the log
	derived := display.Derive(h.CurrentState())
	assert.Equal(t, desc, derived[len(derived)-1])
}

func TestSubmitToolVariants(t *testing.T) {
	tests := []struct {
		name string
		call model.ToolCall
		kind display.Kind
	}{
		{
			name: "trending",
			call: testutil.ToolCall("", "listTrendingProperties", testutil.TrendingArgs),
			kind: display.KindPropertyList,
		},
		{
			name: "events",
			call: testutil.ToolCall("c2", "getRealEstateEvents", testutil.EventsArgs),
			kind: display.KindEvents,
		},
		{
			name: "inquiry form",
			call: testutil.ToolCall("c3", "showPropertyInquiryForm", `{"propertyId":"P1","userId":"U1"}`),
			kind: display.KindInquiryForm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := testutil.NewScriptedProvider(testutil.Turn{
				Chunks:    []string{"Let me check. "},
				ToolCalls: []model.ToolCall{tt.call},
			})
			d := New(prov, Options{})
			h := acquire(t, conversation.NewStore(nil, nil), "chat")

			desc, err := d.Submit(context.Background(), h, "go", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, desc.Kind)

			msgs := h.CurrentState().Messages
			require.Len(t, msgs, 3, "preamble text must not be recorded next to a tool call")
			assertPaired(t, msgs)
			assert.NotEmpty(t, msgs[1].Parts[0].ToolCallID)
		})
	}
}

func TestSubmitOnlyFirstToolCallRuns(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{
			testutil.ToolCall("a", "showPropertyInquiryForm", `{"propertyId":"P1","userId":"U1"}`),
			testutil.ToolCall("b", "listTrendingProperties", testutil.TrendingArgs),
		},
	})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.Submit(context.Background(), h, "inquire", nil)
	require.NoError(t, err)
	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[1].Parts[0].ToolCallID)
}

func TestSubmitInvalidArgumentsFallsBackToText(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("c", "showPropertyDetails", `{"id":"P1","price":"cheap"}`)},
	})
	d := New(prov, Options{ToolDelay: time.Hour})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	desc, err := d.Submit(context.Background(), h, "details for P1", nil)
	require.NoError(t, err)
	assert.Equal(t, display.KindAssistant, desc.Kind)
	assert.Equal(t, FallbackText, desc.Text)

	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsText())
	assert.Equal(t, FallbackText, msgs[1].Content)
}

func TestSubmitUnknownTool(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("c", "deleteAllListings", `{}`)},
	})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	desc, err := d.Submit(context.Background(), h, "do it", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTool))
	assert.Equal(t, display.KindError, desc.Kind)
	assert.Equal(t, display.GenericErrorText, desc.Text)
	assert.Len(t, h.CurrentState().Messages, 1)
}

func TestUnknownToolNameStaysOutOfMetricLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.ToolCallsTotal))

	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("c", "inventedTool-7f3a", `{}`)},
	})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.Submit(context.Background(), h, "do it", nil)
	require.ErrorIs(t, err, ErrUnknownTool)

	families, err := reg.Gather()
	require.NoError(t, err)
	var sawUnknown bool
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				assert.NotEqual(t, "inventedTool-7f3a", l.GetValue())
				if l.GetName() == "tool" && l.GetValue() == metrics.UnknownTool {
					sawUnknown = true
				}
			}
		}
	}
	assert.True(t, sawUnknown, "unknown tool call was not counted")
}

func TestInquiryFormSkipsCompletionDelay(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("c", "showPropertyInquiryForm", `{"propertyId":"P1","userId":"U1"}`)},
	})
	d := New(prov, Options{ToolDelay: time.Hour})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &recorder{}
	desc, err := d.Submit(ctx, h, "I want to inquire about P1", rec.observe)
	require.NoError(t, err)
	assert.Equal(t, display.KindInquiryForm, desc.Kind)
	assert.Empty(t, rec.ofType(EventSkeleton))
	assert.Len(t, h.CurrentState().Messages, 3)
}

func TestSubmitProviderError(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{Chunks: []string{"par"}, Err: errors.New("connection reset")})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	desc, err := d.Submit(context.Background(), h, "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, display.KindError, desc.Kind)
	assert.Len(t, h.CurrentState().Messages, 1)
}

func TestSubmitEmptyResponse(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.Submit(context.Background(), h, "hello", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Len(t, h.CurrentState().Messages, 1)
}

func TestSubmitRejectsEmptyMessage(t *testing.T) {
	prov := testutil.NewScriptedProvider()
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.Submit(context.Background(), h, "  \n\t", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.CurrentState().Messages)
	assert.Empty(t, prov.Histories())
}

func TestSubmitCancelledMidStreamDiscardsPartialText(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{Chunks: []string{"The market is"}, Hold: true})
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	observe := func(e Event) {
		rec.observe(e)
		if e.Type == EventDelta {
			cancel()
		}
	}

	_, err := d.Submit(ctx, h, "how is the market?", observe)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "The market is", rec.deltas())

	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestSubmitCancelledDuringToolDelay(t *testing.T) {
	prov := testutil.NewScriptedProvider(testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("c", "listTrendingProperties", testutil.TrendingArgs)},
	})
	d := New(prov, Options{ToolDelay: time.Hour})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	observe := func(e Event) {
		if e.Type == EventSkeleton {
			cancel()
		}
	}

	_, err := d.Submit(ctx, h, "trending?", observe)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.CurrentState().Messages, 1)
}

func TestSubmitCommitsAuthenticatedChat(t *testing.T) {
	persist, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	store := conversation.NewStore(persist, auth.Static{UserID: "U1"})

	prov := testutil.NewScriptedProvider(
		testutil.Turn{Chunks: []string{"Welcome!"}},
		testutil.Turn{ToolCalls: []model.ToolCall{testutil.ToolCall("c", "listTrendingProperties", testutil.TrendingArgs)}},
	)
	d := New(prov, Options{})
	h := acquire(t, store, "chat")

	_, err = d.Submit(context.Background(), h, "hello", nil)
	require.NoError(t, err)
	_, err = d.Submit(context.Background(), h, "Show me trending properties", nil)
	require.NoError(t, err)

	saved, err := persist.GetChat(context.Background(), "chat")
	require.NoError(t, err)
	assert.Equal(t, "U1", saved.UserID)
	assert.Equal(t, "/chat/chat", saved.Path)
	assert.Equal(t, "hello", saved.Title)
	require.Len(t, saved.Messages, 5)
	assertPaired(t, saved.Messages)

	// the second turn saw the first turn's messages
	histories := prov.Histories()
	require.Len(t, histories, 2)
	assert.Len(t, histories[1], 3)
}

func TestLogIsAppendOnlyAcrossTurns(t *testing.T) {
	prov := testutil.NewScriptedProvider(
		testutil.Turn{Chunks: []string{"one"}},
		testutil.Turn{ToolCalls: []model.ToolCall{testutil.ToolCall("x", "showPropertyDetails", `{"id":"P9","price":1,"description":"d"}`)}},
		testutil.Turn{Chunks: []string{"three"}},
	)
	d := New(prov, Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	previous := []model.Message{}
	for _, input := range []string{"a", "b", "c"} {
		_, err := d.Submit(context.Background(), h, input, nil)
		require.NoError(t, err)

		current := h.CurrentState().Messages
		require.Greater(t, len(current), len(previous))
		assert.Equal(t, previous, current[:len(previous)])
		previous = current
	}
	assertPaired(t, previous)
}

type fakeSink struct {
	calls [][3]string
	err   error
}

func (f *fakeSink) SubmitInquiry(ctx context.Context, chatID, propertyID, userID string) error {
	f.calls = append(f.calls, [3]string{chatID, propertyID, userID})
	return f.err
}

func TestConfirmInquiry(t *testing.T) {
	sink := &fakeSink{}
	d := New(testutil.NewScriptedProvider(), Options{Sink: sink, ToolDelay: time.Millisecond})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	rec := &recorder{}
	desc, err := d.ConfirmInquiry(context.Background(), h, "P1", "U1", rec.observe)
	require.NoError(t, err)

	assert.Equal(t, [][3]string{{"chat", "P1", "U1"}}, sink.calls)
	assert.Equal(t, display.KindInquiryConfirmation, desc.Kind)
	require.NotNil(t, desc.Confirmation)
	assert.Equal(t, "P1", desc.Confirmation.PropertyID)
	assert.Equal(t, "U1", desc.Confirmation.UserID)
	assert.Len(t, rec.ofType(EventSkeleton), 1)

	msgs := h.CurrentState().Messages
	require.Len(t, msgs, 4)
	assertPaired(t, msgs)
	assert.Equal(t, "submitPropertyInquiry", msgs[0].Parts[0].ToolName)

	var confirmation, notice bool
	for _, m := range msgs {
		if m.Role != model.RoleSystem {
			continue
		}
		if strings.Contains(m.Content, "P1") && !strings.Contains(m.Content, "U1") {
			confirmation = true
		}
		if strings.Contains(m.Content, "P1") && strings.Contains(m.Content, "U1") {
			notice = true
		}
	}
	assert.True(t, confirmation, "missing system confirmation mentioning P1")
	assert.True(t, notice, "missing system notice mentioning P1 and U1")
}

func TestConfirmInquirySinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("crm offline")}
	d := New(testutil.NewScriptedProvider(), Options{Sink: sink})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	desc, err := d.ConfirmInquiry(context.Background(), h, "P1", "U1", nil)
	require.Error(t, err)
	assert.Equal(t, display.KindError, desc.Kind)
	assert.Empty(t, h.CurrentState().Messages)
}

func TestConfirmInquiryValidation(t *testing.T) {
	d := New(testutil.NewScriptedProvider(), Options{})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err := d.ConfirmInquiry(context.Background(), h, "P1", " ", nil)
	assert.ErrorIs(t, err, ErrInvalidInquiry)
}

func TestStoreSinkRecordsInquiry(t *testing.T) {
	persist, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	d := New(testutil.NewScriptedProvider(), Options{Sink: StoreSink{Store: persist}})
	h := acquire(t, conversation.NewStore(nil, nil), "chat")

	_, err = d.ConfirmInquiry(context.Background(), h, "P7", "U3", nil)
	require.NoError(t, err)

	inquiries, err := persist.ListInquiries(context.Background(), "chat")
	require.NoError(t, err)
	require.Len(t, inquiries, 1)
	assert.Equal(t, "P7", inquiries[0].PropertyID)
	assert.Equal(t, "U3", inquiries[0].UserID)
}
