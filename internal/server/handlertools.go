package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tasknlp/internal/analyze"
	"tasknlp/internal/classify"
	"tasknlp/internal/ner"
)

var errBadRequest = errors.New("bad request")

// APIError is the body of every non-2xx response.
type APIError struct {
	Error string `json:"error"`
}

// EncodeJSON writes data as a JSON response with the given status.
func EncodeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a JSON request body into data. Body size errors are
// passed through unwrapped so statusFor can tell them apart.
func DecodeJSON(r *http.Request, data interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, analyze.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, ner.ErrTaggerUnavailable), errors.Is(err, classify.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes err as an APIError and returns the status used.
func RenderError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(err)
	} else {
		log.Debug(err)
	}
	if encErr := EncodeJSON(w, status, APIError{Error: err.Error()}); encErr != nil {
		log.Warnf("write error response: %v", encErr)
	}
	return status
}
