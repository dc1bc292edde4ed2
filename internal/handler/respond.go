package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/pixelplan/internal/ctxkeys"
	"github.com/templui/pixelplan/internal/service"
)

const maxJSONBody = 1 << 20

// envelope is the shape of every JSON response.
type envelope struct {
	Error   string `json:"error"`
	Payload any    `json:"payload"`
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(env)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	writeEnvelope(w, status, envelope{Payload: payload})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{Error: message})
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, service.ErrValidation):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPermission):
		writeErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDecode):
		writeErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrEmailAlreadyExists):
		writeErrorMessage(w, http.StatusConflict, service.ErrEmailAlreadyExists.Error())
	case errors.As(err, &maxBytes):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit))
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", ctxkeys.RequestID(r.Context()),
			"user_id", ctxkeys.UserID(r.Context()),
			"error", err,
		)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return &service.ValidationError{Field: "body", Reason: err.Error()}
	}
	if dec.More() {
		return &service.ValidationError{Field: "body", Reason: "unexpected data after JSON object"}
	}
	return nil
}

// streamContent copies stored bytes to the client.
func streamContent(w http.ResponseWriter, rc io.ReadCloser, contentType, cacheControl string) {
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	_, err := io.Copy(w, rc)
	if err != nil {
		slog.Warn("content stream interrupted", "error", err)
	}
}
