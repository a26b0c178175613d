package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrValidation marks a malformed or empty request. It is returned before
	// any call to the model runtime is attempted.
	ErrValidation = errors.New("invalid request")

	ErrProbeTimeout     = errors.New("health probe timed out")
	ErrProbeUnreachable = errors.New("health probe failed")

	// ErrGatewayUnavailable covers transport failures and non-2xx replies from
	// the model runtime (or from the gateway, when seen by a client).
	ErrGatewayUnavailable = errors.New("model runtime unavailable")
	// ErrGatewayTimeout is a runtime call that ran out of time.
	ErrGatewayTimeout = errors.New("model runtime timed out")
	// ErrUpstreamMalformed means a reply arrived but could not be decoded into
	// the expected shape.
	ErrUpstreamMalformed = errors.New("malformed upstream response")
)

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an error from the taxonomy above to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamMalformed):
		return http.StatusBadGateway
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes err with the status chosen by StatusFor.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSONError(w, StatusFor(err), err.Error())
}

// DecodeMessage extracts the message field from a JSON error body written by
// WriteJSONError. It returns "" when the body has another shape.
func DecodeMessage(body []byte) string {
	var je jsonError
	if err := json.Unmarshal(body, &je); err != nil {
		return ""
	}
	return je.Message
}
