package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/auth"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

// writeError maps err through the shared taxonomy. Server-side failures are logged and
// answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error()}

	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		body = errorBody{Error: verr.Message, Field: verr.Field}
	case status == http.StatusForbidden:
		body.Error = apperr.ErrForbidden.Error()
	case status == http.StatusNotFound:
		body.Error = apperr.ErrNotFound.Error()
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		s.metrics.Errors.WithLabelValues("http").Inc()
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("body", "is required")
		}
		return apperr.Invalid("body", fmt.Sprintf("invalid json: %v", err))
	}
	return nil
}

func principal(r *http.Request) access.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
