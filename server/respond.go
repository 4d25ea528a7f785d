package server

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"horizon/auth"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/storage"
)

func respondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		log.WithError(err).Error("unable to render json")
	}
}

func failureResponse(w http.ResponseWriter, code int, message string) {
	respondWithJSON(code, w, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrEmptyMessage), errors.Is(err, dispatch.ErrInvalidInquiry):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, conversation.ErrChatMismatch):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrUnknownTool), errors.Is(err, dispatch.ErrEmptyResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
