package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps 2xx payloads under "data"
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// errorCodes maps a status to the machine-readable "error" field
var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "rate_limit_exceeded",
	http.StatusInternalServerError: "internal_error",
	http.StatusBadGateway:          "bad_gateway",
	http.StatusServiceUnavailable:  "service_unavailable",
	http.StatusGatewayTimeout:      "gateway_timeout",
}

// ErrorCode returns the "error" field written for status. Unmapped statuses are internal errors.
func ErrorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	return "internal_error"
}

// WriteJSON writes data as JSON with the given status. A nil body writes headers only.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes 200 with data under "data"
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes 201 with data under "data"
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteAccepted writes 202 for work that is not finished yet, such as a pending quorum
func WriteAccepted(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusAccepted, SuccessResponse{Data: data})
}

// WriteError writes an ErrorResponse whose "error" field follows status
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   ErrorCode(status),
		Message: message,
		Details: details,
	})
}

func writeErrorOr(w http.ResponseWriter, status int, message, fallback string, details map[string]interface{}) error {
	if message == "" {
		message = fallback
	}
	return WriteError(w, status, message, details)
}

// WriteBadRequest writes 400
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteUnauthorized writes 401
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return writeErrorOr(w, http.StatusUnauthorized, message, "Authentication required", nil)
}

// WriteForbidden writes 403
func WriteForbidden(w http.ResponseWriter, message string) error {
	return writeErrorOr(w, http.StatusForbidden, message, "Access forbidden", nil)
}

// WriteNotFound writes 404
func WriteNotFound(w http.ResponseWriter, message string) error {
	return writeErrorOr(w, http.StatusNotFound, message, "Resource not found", nil)
}

// WriteConflict writes 409
func WriteConflict(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusConflict, message, details)
}

// WriteTooManyRequests writes 429. Rail guard blocks and ingress throttling both use it.
func WriteTooManyRequests(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeErrorOr(w, http.StatusTooManyRequests, message, "Rate limit exceeded", details)
}

// WriteInternalServerError writes 500
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return writeErrorOr(w, http.StatusInternalServerError, message, "Internal server error", nil)
}
