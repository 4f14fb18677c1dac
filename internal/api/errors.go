package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/session"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable values for Error.Code.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeValidation  = "validation_error"
	ErrCodeNotFound    = "not_found"
	ErrCodeUnavailable = "unavailable"
	ErrCodeBadGateway  = "bad_gateway"
	ErrCodeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(body) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeSessionError translates errors from session.Subscribe, Unsubscribe
// and Publish:
//
//	bad topic or QoS       400 validation_error
//	session not connected  503 unavailable
//	broker rejected it     502 bad_gateway
//	anything else          500 internal_error
func writeSessionError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, ErrCodeInternal

	var transportErr *session.TransportError
	switch {
	case errors.Is(err, mqtt.ErrInvalidTopic) || errors.Is(err, mqtt.ErrInvalidQoS):
		status, code = http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, session.ErrNotConnected):
		status, code = http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.As(err, &transportErr):
		status, code = http.StatusBadGateway, ErrCodeBadGateway
	}
	writeError(w, status, code, err.Error())
}
