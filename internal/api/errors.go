package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/pathway/internal/docstore"
	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/profile"
	"github.com/kalambet/pathway/internal/quiz"
	"github.com/kalambet/pathway/internal/session"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error onto an HTTP error response.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, profile.ErrNotOpen):
		httpError(w, http.StatusUnauthorized, "authentication_error", "sign in to continue")
	case errors.Is(err, quiz.ErrUnknownQuestion), errors.Is(err, quiz.ErrUnknownOption):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, profile.ErrPersistence):
		msg := "could not save your changes, please try again"
		if errors.Is(err, docstore.ErrCircuitOpen) {
			msg = "storage is temporarily unavailable, please try again shortly"
		}
		httpError(w, http.StatusBadGateway, "persistence_error", "%s", msg)
	case identity.Code(err) == identity.CodeEmailAlreadyInUse:
		httpError(w, http.StatusConflict, "conflict", "%s", identity.FriendlyMessage(err))
	case identity.Code(err) == identity.CodeWeakPassword, identity.Code(err) == identity.CodeInvalidEmail:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", identity.FriendlyMessage(err))
	case identity.Code(err) != "":
		httpError(w, http.StatusUnauthorized, "authentication_error", "%s", identity.FriendlyMessage(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, profile.ErrNotLoaded):
		httpError(w, http.StatusServiceUnavailable, "api_error", "profile is still loading, please try again")
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}
