package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode ErrorCode              `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Handler writes error responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError maps err to a status and error code and writes the response.
// Details of a QueueError are rendered into the envelope.
func (h *Handler) HandleError(w http.ResponseWriter, requestID string, err error) {
	var details map[string]interface{}
	var qe *QueueError
	if stderrors.As(err, &qe) {
		details = qe.Details
	} else {
		h.logger.Error("unclassified error", zap.Error(err), zap.String("request_id", requestID))
	}

	code := GetCode(err)
	if code == CodeQueueFull {
		w.Header().Set("Retry-After", "1")
	}
	h.write(w, HTTPStatus(err), code, err.Error(), details, requestID)
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.write(w, statusCode, errorCode, message, nil, requestID)
}

func (h *Handler) write(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, details map[string]interface{}, requestID string) {
	fields := []zap.Field{
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	if statusCode >= http.StatusInternalServerError && errorCode != CodeQueueFull {
		h.logger.Error("HTTP error response", fields...)
	} else {
		h.logger.Debug("HTTP error response", fields...)
	}

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, CodeInvalidRequest, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Retry-After", "1")
	h.WriteErrorResponse(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", requestID)
}
