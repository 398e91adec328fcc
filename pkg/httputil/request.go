package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

var (
	// ErrEmptyBody is returned when a JSON body is required but absent
	ErrEmptyBody = errors.New("request body is required")
	// ErrBodyTooLarge is returned when the body exceeds the MaxBytesMiddleware limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// ParseJSON decodes a single JSON value from the request body into dest
func ParseJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		case errors.As(err, &tooLarge):
			return ErrBodyTooLarge
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after the request body")
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	return writeParseError(w, ParseJSON(r, dest))
}

// ParseOptionalJSONOrError is ParseJSONOrError for endpoints whose body may be omitted
func ParseOptionalJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := ParseJSON(r, dest)
	if errors.Is(err, ErrEmptyBody) {
		return true
	}
	return writeParseError(w, err)
}

func writeParseError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	status := http.StatusBadRequest
	if errors.Is(err, ErrBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	WriteAPIError(w, status, APIError{
		Error:   "Invalid request body",
		Message: err.Error(),
	})
	return false
}

// ParsePathStringOrError extracts a route variable and writes 400 when it is missing
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := mux.Vars(r)[key]
	if val == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return val, true
}
