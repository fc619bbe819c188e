package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/furniro/apiserver/internal/services"
	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/types"
	"go.uber.org/zap"
)

const maxJSONBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user"

// MessageResponse is the body of every error and of most acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// userFromContext returns the caller resolved by the admin guard.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// actor names the caller in audit log lines. It is empty when the admin
// API is open.
func actor(r *http.Request) zap.Field {
	user, _ := userFromContext(r.Context())
	return zap.String("actor", user.Email)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeServiceError maps a service error to its status code. Storage
// failures are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFound string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Database error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 1 {
		return 0, errors.New("invalid news id")
	}
	return id, nil
}
