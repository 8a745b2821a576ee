package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"dcsourcing/internal/opt"
	"dcsourcing/internal/sourcing"
	"dcsourcing/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors onto problem responses; anything unknown is a 500
// titled with the failed action.
func writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, opt.ErrInvalidInstance):
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid Instance", err.Error(), r.URL.Path)
	case errors.As(err, &verr), errors.Is(err, errInvalidPayload):
		writeProblem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error(), r.URL.Path)
	case errors.Is(err, sourcing.ErrRunInProgress), errors.Is(err, sourcing.ErrLockLost):
		writeProblem(w, http.StatusConflict, "Run In Progress", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, action+" failed", err.Error(), r.URL.Path)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// queryLimit reads ?limit=, defaulting to 100 and capped at 1000.
func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", v)
	}
	if n > 1000 {
		n = 1000
	}
	return n, nil
}
