package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/automation"
	"github.com/ukydev/fleet-automation/internal/db"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, status int, data any, message string) {
	respondJSON(w, status, Response{Success: true, Data: data, Message: message})
}

func respondFail(w http.ResponseWriter, status int, message string, errs ...string) {
	respondJSON(w, status, Response{Message: message, Errors: errs})
}

// writeError maps engine errors to HTTP statuses. Anything that is not a
// ValidationError is reported as a generic 500.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	if v, ok := automation.IsValidation(err); ok {
		status := http.StatusBadRequest
		switch {
		case errors.Is(v, db.ErrConflict):
			status = http.StatusConflict
		case errors.Is(v, db.ErrNotFound):
			status = http.StatusNotFound
		}
		message := "Validation failed"
		if len(v.Errors) == 1 {
			message = v.Errors[0]
		}
		respondFail(w, status, message, v.Errors...)
		return
	}
	log.WithError(err).Error("request failed")
	respondFail(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, key string) (*bool, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &b, true
}
