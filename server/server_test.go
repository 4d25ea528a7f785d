package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"horizon/auth"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/display"
	"horizon/model"
	"horizon/provider/testutil"
	"horizon/storage"
	"horizon/tools"
)

type fixture struct {
	handler  http.Handler
	store    *conversation.Store
	persist  storage.ChatStore
	provider *testutil.MockProvider
}

func newFixture(t *testing.T, turns ...testutil.Turn) *fixture {
	t.Helper()

	persist, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	var users []auth.User
	for _, u := range []struct{ id, token string }{{"U1", "token-u1"}, {"U2", "token-u2"}} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.token), bcrypt.MinCost)
		require.NoError(t, err)
		users = append(users, auth.User{ID: u.id, TokenHash: string(hash)})
	}

	prov := testutil.NewScriptedProvider(turns...)
	store := conversation.NewStore(persist, auth.ContextProvider{})
	srv := New(Options{
		Listen:     "127.0.0.1:0",
		Store:      store,
		Persist:    persist,
		Dispatcher: dispatch.New(prov, dispatch.Options{Sink: dispatch.StoreSink{Store: persist}}),
		Tokens:     auth.NewTokenAuthenticator(users),
	})
	return &fixture{handler: srv.Handler(), store: store, persist: persist, provider: prov}
}

func (f *fixture) do(t *testing.T, method, path, body, token string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeTurn(t *testing.T, rec *httptest.ResponseRecorder) turnResponse {
	t.Helper()
	var resp turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPostMessageAnonymousIsNotPersisted(t *testing.T) {
	f := newFixture(t, testutil.Turn{Chunks: []string{"Hi", " there"}})

	rec := f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"hello"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTurn(t, rec)
	assert.Equal(t, "c1", resp.ChatID)
	assert.Equal(t, display.KindAssistant, resp.Descriptor.Kind)
	assert.Equal(t, "Hi there", resp.Descriptor.Text)

	_, err := f.persist.GetChat(context.Background(), "c1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPostMessageAuthenticatedPersistsAndServesUIState(t *testing.T) {
	f := newFixture(t, testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("call-1", "showPropertyDetails",
			`{"id":"P123","price":450000,"description":"Flat with a view"}`)},
	})

	rec := f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"show me property P123"}`, "token-u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeTurn(t, rec)
	assert.Equal(t, display.KindPropertyCard, resp.Descriptor.Kind)

	saved, err := f.persist.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "U1", saved.UserID)
	assert.Len(t, saved.Messages, 3)

	rec = f.do(t, http.MethodGet, "/api/chats/c1", "", "token-u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chat chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, "show me property P123", chat.Title)
	assert.Equal(t, "/chat/c1", chat.Path)
	require.Len(t, chat.Descriptors, 2)
	assert.Equal(t, display.KindUser, chat.Descriptors[0].Kind)
	assert.Equal(t, resp.Descriptor, chat.Descriptors[1])

	// UI state is only served to its owner
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/chats/c1", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/chats/c1", "", "token-u2").Code)
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"mine now"}`, "token-u2").Code)
}

func TestRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"hello"}`, "nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostMessageValidation(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"   "}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/chats/c1/messages", `not json`, "").Code)
	assert.Empty(t, f.provider.Histories())
}

func TestPostMessageUnknownTool(t *testing.T) {
	f := newFixture(t, testutil.Turn{
		ToolCalls: []model.ToolCall{testutil.ToolCall("x", "wireMoney", `{}`)},
	})

	rec := f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"pay"}`, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeTurn(t, rec)
	assert.Equal(t, display.KindError, resp.Descriptor.Kind)
	assert.Equal(t, display.GenericErrorText, resp.Descriptor.Text)
	assert.NotContains(t, rec.Body.String(), "wireMoney")
}

func TestPostMessageEventStream(t *testing.T) {
	f := newFixture(t, testutil.Turn{Chunks: []string{"Prices ", "rose."}})

	rec := f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"news?"}`, "", "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: delta\n"))
	assert.Contains(t, body, `"delta":"Prices "`)
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"state":"idle"`)
	assert.Less(t, strings.Index(body, "event: delta"), strings.Index(body, "event: done"))
}

func TestPostInquiry(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chats/c1/inquiries", `{"propertyId":"P1"}`, "token-u1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeTurn(t, rec)
	assert.Equal(t, display.KindInquiryConfirmation, resp.Descriptor.Kind)
	require.NotNil(t, resp.Descriptor.Confirmation)
	assert.Equal(t, "U1", resp.Descriptor.Confirmation.UserID)

	inquiries, err := f.persist.ListInquiries(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, inquiries, 1)
	assert.Equal(t, "P1", inquiries[0].PropertyID)

	saved, err := f.persist.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, saved.Messages, 4)
	assert.Equal(t, model.RoleSystem, saved.Messages[2].Role)
	assert.Equal(t, tools.SubmissionNotice("P1", "U1"), saved.Messages[3].Content)

	// anonymous with no user id
	rec = f.do(t, http.MethodPost, "/api/chats/c2/inquiries", `{"propertyId":"P1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostInquiryRejectsForeignUserID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chats/c1/inquiries", `{"propertyId":"P1","userId":"U2"}`, "token-u1")
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	inquiries, err := f.persist.ListInquiries(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, inquiries)

	rec = f.do(t, http.MethodPost, "/api/chats/c1/inquiries", `{"propertyId":"P1","userId":"U1"}`, "token-u1")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestDeleteChatWaitsForTurnInFlight(t *testing.T) {
	f := newFixture(t, testutil.Turn{Chunks: []string{"Hello."}})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chats/c1/messages", `{"content":"hi"}`, "token-u1").Code)

	// a turn holds the chat while the delete arrives
	ctx := auth.WithSession(context.Background(), auth.Session{UserID: "U1"})
	h, err := f.store.Acquire(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, h.Append(model.NewTextMessage(model.RoleUser, "one more")))

	done := make(chan int, 1)
	go func() {
		done <- f.do(t, http.MethodDelete, "/api/chats/c1", "", "token-u1").Code
	}()

	select {
	case code := <-done:
		t.Fatalf("delete finished with %d while the turn was running", code)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, h.Commit(ctx))
	h.Release()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusNoContent, code)
	case <-time.After(time.Second):
		t.Fatal("delete never ran")
	}

	_, err = f.persist.GetChat(context.Background(), "c1")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "turn commit resurrected the deleted chat")
}

func TestDeleteAnonymousChatInMemory(t *testing.T) {
	f := newFixture(t, testutil.Turn{Chunks: []string{"Hello."}})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chats/c9/messages", `{"content":"hi"}`, "").Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/chats/c9", "", "token-u1").Code)
	_, ok := f.store.Snapshot("c9")
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/chats/c9", "", "token-u1").Code)
}

func TestListSearchAndDeleteChats(t *testing.T) {
	f := newFixture(t,
		testutil.Turn{Chunks: []string{"Sure."}},
		testutil.Turn{Chunks: []string{"Okay."}},
	)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chats/a/messages", `{"content":"Show me trending properties"}`, "token-u1").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chats/b/messages", `{"content":"Any housing events?"}`, "token-u2").Code)

	rec := f.do(t, http.MethodGet, "/api/chats", "", "token-u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var chats []storage.ChatSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, "a", chats[0].ID)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/chats", "", "").Code)

	rec = f.do(t, http.MethodGet, "/api/search?q=trending", "", "token-u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []storage.MessageMatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].ChatID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/search", "", "token-u1").Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/chats/a", "", "token-u2").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/chats/a", "", "token-u1").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/chats/a", "", "token-u1").Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	f.provider.PingFunc = func(ctx context.Context) error { return errors.New("connection refused") }
	rec = f.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMCPToolHandler(t *testing.T) {
	def, ok := tools.Lookup(string(tools.ShowPropertyDetails))
	require.True(t, ok)
	handler := toolHandler(def)

	var req mcptypes.CallToolRequest
	req.Params.Name = string(def.Name)
	req.Params.Arguments = map[string]any{"id": "P5", "price": 99000, "description": "Studio"}

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcptypes.TextContent)
	require.True(t, ok)

	var p tools.Property
	require.NoError(t, json.Unmarshal([]byte(text.Text), &p))
	assert.Equal(t, tools.Property{ID: "P5", Price: 99000, Description: "Studio"}, p)

	req.Params.Arguments = map[string]any{"id": "P5"}
	res, err = handler(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
