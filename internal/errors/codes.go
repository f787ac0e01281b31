package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies the outcome of a queue operation
type ErrorCode string

const (
	// Success
	CodeOK ErrorCode = "OK"

	// Validation failures
	CodeNegativeID         ErrorCode = "NEGATIVE_ID"
	CodeInvalidEnqueueTime ErrorCode = "INVALID_ENQUEUE_TIME"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"

	// Conflict, capacity and lookup failures
	CodeIDAlreadyExists ErrorCode = "ID_ALREADY_EXISTS"
	CodeQueueFull       ErrorCode = "QUEUE_FULL"
	CodeTaskNotFound    ErrorCode = "TASK_NOT_FOUND"
	CodeQueueEmpty      ErrorCode = "QUEUE_EMPTY"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Internal inconsistency between the identity and rank indices
	CodeRankedTaskAlreadyExists ErrorCode = "RANKED_TASK_ALREADY_EXISTS"
	CodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// QueueError is a structured error carrying an outcome code and context
type QueueError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *QueueError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *QueueError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the outcome to an HTTP status code
func (e *QueueError) HTTPStatus() int {
	switch e.Code {
	case CodeOK:
		return http.StatusOK
	case CodeNegativeID, CodeInvalidEnqueueTime, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeIDAlreadyExists:
		return http.StatusConflict
	case CodeTaskNotFound, CodeQueueEmpty:
		return http.StatusNotFound
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewQueueError creates a new QueueError
func NewQueueError(code ErrorCode, message string, cause error) *QueueError {
	return &QueueError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *QueueError) WithDetail(key string, value interface{}) *QueueError {
	e.Details[key] = value
	return e
}

// Convenience constructors for the queue outcomes

func NegativeID(id int64) *QueueError {
	return NewQueueError(CodeNegativeID, fmt.Sprintf("task id must be positive, got %d", id), nil).
		WithDetail("id", id)
}

func InvalidEnqueueTime(enqueueTime, now int64) *QueueError {
	return NewQueueError(CodeInvalidEnqueueTime,
		fmt.Sprintf("enqueue time %d must be positive and not after current time %d", enqueueTime, now), nil).
		WithDetail("enqueue_time", enqueueTime).
		WithDetail("now", now)
}

func InvalidRequest(message string, cause error) *QueueError {
	return NewQueueError(CodeInvalidRequest, message, cause)
}

func IDAlreadyExists(id int64) *QueueError {
	return NewQueueError(CodeIDAlreadyExists, fmt.Sprintf("task %d is already queued", id), nil).
		WithDetail("id", id)
}

func RankedTaskAlreadyExists(id int64, cause error) *QueueError {
	return NewQueueError(CodeRankedTaskAlreadyExists,
		fmt.Sprintf("an equal ranked entry already exists for task %d", id), cause).
		WithDetail("id", id)
}

func QueueFull(size, limit int) *QueueError {
	return NewQueueError(CodeQueueFull, fmt.Sprintf("queue full: %d/%d", size, limit), nil).
		WithDetail("size", size).
		WithDetail("limit", limit)
}

func TaskNotFound(id int64) *QueueError {
	return NewQueueError(CodeTaskNotFound, fmt.Sprintf("task %d not found", id), nil).
		WithDetail("id", id)
}

func QueueEmpty() *QueueError {
	return NewQueueError(CodeQueueEmpty, "queue is empty", nil)
}

func InternalError(message string, cause error) *QueueError {
	return NewQueueError(CodeInternal, message, cause)
}

// GetCode extracts the outcome code from an error; nil maps to CodeOK
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var qe *QueueError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return CodeInternal
}

// HTTPStatus maps any error to an HTTP status code
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var qe *QueueError
	if stderrors.As(err, &qe) {
		return qe.HTTPStatus()
	}
	return http.StatusInternalServerError
}
