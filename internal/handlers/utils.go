package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aqylal/apiserver/internal/services"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func identityFromContext(ctx context.Context) (services.Actor, error) {
	actor, ok := ctx.Value(contextIdentityKey).(services.Actor)
	if !ok || actor.ID < 1 {
		return services.Actor{}, errors.New("missing identity")
	}
	return actor, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
