package errors

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes. The API layer maps these to transport
// status codes; clients key user-facing messages off the code, never the text.
const (
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeDeviceNotFound       = "DEVICE_NOT_FOUND"
	CodeDeviceConflict       = "DEVICE_CONFLICT"
	CodeInvalidWindow        = "INVALID_WINDOW"
	CodeInvalidIngressConfig = "INVALID_INGRESS_CONFIG"
	CodeInvalidMQTTConfig    = "INVALID_MQTT_CONFIG"
	CodeMQTTUnavailable      = "MQTT_UNAVAILABLE"
	CodeBadRequest           = "BAD_REQUEST"
	CodeInternalError        = "INTERNAL_ERROR"
)

type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func BadRequest(code, message string) *AppError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func NotFound(code, message string) *AppError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *AppError {
	return New(http.StatusConflict, code, message)
}

// Internal wraps an unexpected fault without leaking its details to callers.
func Internal(err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternalError,
		Message: "unexpected server error",
		Err:     err,
	}
}

type envelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func Write(w http.ResponseWriter, err *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, ErrorCode: err.Code, Message: err.Message})
}
