package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"horizon/auth"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/display"
	"horizon/storage"
)

// maxBodyBytes bounds request bodies; chat messages are short.
const maxBodyBytes = 64 << 10

type messageRequest struct {
	Content string `json:"content"`
}

type inquiryRequest struct {
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
}

type turnResponse struct {
	ChatID     string             `json:"chatId"`
	Descriptor display.Descriptor `json:"descriptor"`
}

// chatResponse is the UI state of a chat: its metadata and the descriptors
// derived from its log.
type chatResponse struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId,omitempty"`
	Title       string               `json:"title"`
	Path        string               `json:"path"`
	CreatedAt   time.Time            `json:"createdAt"`
	Descriptors []display.Descriptor `json:"descriptors"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		log.WithError(err).Debug("error parsing request body")
		failureResponse(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) (*conversation.Handle, bool) {
	h, err := s.opts.Store.Acquire(r.Context(), r.PathValue("id"))
	if err != nil {
		if r.Context().Err() == nil {
			failureResponse(w, statusFor(err), err.Error())
		}
		return nil, false
	}
	return h, true
}

// postMessage runs one turn. Clients asking for text/event-stream receive
// every turn event as it happens; others get the final descriptor as JSON.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		failureResponse(w, http.StatusBadRequest, dispatch.ErrEmptyMessage.Error())
		return
	}

	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamTurn(w, r, h, req.Content)
		return
	}

	desc, err := s.opts.Dispatcher.Submit(r.Context(), h, req.Content, nil)
	if r.Context().Err() != nil {
		return
	}
	code := http.StatusOK
	if err != nil {
		log.WithError(err).WithField("chat_id", h.ChatID()).Warn("turn failed")
		if desc.Kind == "" {
			failureResponse(w, statusFor(err), err.Error())
			return
		}
		code = statusFor(err)
	}
	respondWithJSON(code, w, turnResponse{ChatID: h.ChatID(), Descriptor: desc})
}

func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, h *conversation.Handle, content string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		failureResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(name string, data interface{}) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.WithError(err).Error("unable to encode event")
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
		flusher.Flush()
	}

	_, err := s.opts.Dispatcher.Submit(r.Context(), h, content, func(e dispatch.Event) {
		send(string(e.Type), e)
	})
	if err != nil && r.Context().Err() == nil {
		log.WithError(err).WithField("chat_id", h.ChatID()).Warn("streamed turn failed")
		send("error", map[string]interface{}{"code": statusFor(err), "message": display.GenericErrorText})
	}
}

func (s *Server) postInquiry(w http.ResponseWriter, r *http.Request) {
	var req inquiryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if session, ok := auth.FromContext(r.Context()); ok {
		if req.UserID != "" && req.UserID != session.UserID {
			failureResponse(w, http.StatusForbidden, "userId does not match the authenticated user")
			return
		}
		req.UserID = session.UserID
	}

	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	desc, err := s.opts.Dispatcher.ConfirmInquiry(r.Context(), h, req.PropertyID, req.UserID, nil)
	if r.Context().Err() != nil {
		return
	}
	if err != nil {
		log.WithError(err).WithField("chat_id", h.ChatID()).Warn("inquiry failed")
		if desc.Kind == "" {
			failureResponse(w, statusFor(err), err.Error())
			return
		}
		respondWithJSON(statusFor(err), w, turnResponse{ChatID: h.ChatID(), Descriptor: desc})
		return
	}
	respondWithJSON(http.StatusCreated, w, turnResponse{ChatID: h.ChatID(), Descriptor: desc})
}

// getChat serves a chat's UI state. Only authenticated users get UI state.
func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}

	conv, err := s.opts.Store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		failureResponse(w, statusFor(err), err.Error())
		return
	}

	respondWithJSON(http.StatusOK, w, chatResponse{
		ID:          conv.ChatID,
		UserID:      conv.UserID,
		Title:       storage.ChatTitle(conv.Messages),
		Path:        storage.ChatPath(conv.ChatID),
		CreatedAt:   conv.CreatedAt,
		Descriptors: display.Derive(conv),
	})
}

// deleteChat waits for any turn in flight on the chat, then removes it from
// memory and persistence.
func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	chatID := r.PathValue("id")

	if err := s.opts.Store.Delete(r.Context(), chatID); err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.WithError(err).WithField("chat_id", chatID).Debug("error deleting chat")
		failureResponse(w, statusFor(err), err.Error())
		return
	}

	log.WithField("chat_id", chatID).Info("chat deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	chats := []storage.ChatSummary{}
	if s.opts.Persist != nil {
		listed, err := s.opts.Persist.ListChats(r.Context(), session.UserID)
		if err != nil {
			log.WithError(err).Error("error listing chats")
			failureResponse(w, http.StatusInternalServerError, "Failed to list chats")
			return
		}
		chats = append(chats, listed...)
	}
	if q := r.URL.Query().Get("q"); q != "" {
		chats = storage.FilterChats(chats, q)
	}
	respondWithJSON(http.StatusOK, w, chats)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		failureResponse(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	matches := []storage.MessageMatch{}
	if s.opts.Persist != nil {
		found, err := storage.SearchMessages(r.Context(), s.opts.Persist, session.UserID, q)
		if err != nil {
			log.WithError(err).Error("error searching chats")
			failureResponse(w, http.StatusInternalServerError, "Failed to search chats")
			return
		}
		matches = append(matches, found...)
	}
	respondWithJSON(http.StatusOK, w, matches)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	provider := s.opts.Dispatcher.Provider()
	if err := provider.Ping(ctx); err != nil {
		log.WithError(err).Warn("model provider unreachable")
		respondWithJSON(http.StatusServiceUnavailable, w, map[string]interface{}{
			"status":  "unavailable",
			"message": err.Error(),
		})
		return
	}
	respondWithJSON(http.StatusOK, w, map[string]interface{}{
		"status": "ok",
		"model":  provider.GetModel(),
	})
}
