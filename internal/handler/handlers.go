// Package handler provides HTTP request handlers for the task queue.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	apierrors "github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/model"
)

// Queue is the set of queue operations served over HTTP.
type Queue interface {
	Admit(id, enqueueTime int64) error
	Poll() (*model.Task, error)
	Delete(id int64) error
	Position(id int64) (int, error)
	ListOrdered() []*model.Task
	ExpectedWaitTime() time.Duration
	Len() int
	Now() time.Time
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	queue        Queue
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(queue Queue, errorHandler *apierrors.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{
		queue:        queue,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// AdmitTask handles POST /v1/tasks requests.
func (h *Handlers) AdmitTask(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDOf(r)

	id, enqueueTime, err := decodeAdmitRequest(w, r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	if err := h.queue.Admit(id, enqueueTime); err != nil {
		h.errorHandler.HandleError(w, requestIDOf(r), err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, AdmitResponse{Status: "ok", ID: id})
}

// PollTask handles POST /v1/tasks/poll requests.
func (h *Handlers) PollTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.queue.Poll()
	if err != nil {
		h.errorHandler.HandleError(w, requestIDOf(r), err)
		return
	}

	h.logger.Debug("Task dequeued", zap.Int64("id", task.ID), zap.Stringer("class", task.Class))
	h.writeJSONResponse(w, http.StatusOK, newTaskView(task, h.queue.Now()))
}

// ListTasks handles GET /v1/tasks requests.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.queue.ListOrdered()
	h.writeJSONResponse(w, http.StatusOK, ListResponse{
		Tasks: newTaskViews(tasks, h.queue.Now()),
		Count: len(tasks),
	})
}

// GetPosition handles GET /v1/tasks/{id}/position requests.
func (h *Handlers) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestIDOf(r))
		return
	}

	pos, err := h.queue.Position(id)
	if err != nil {
		h.errorHandler.HandleError(w, requestIDOf(r), err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, PositionResponse{ID: id, Position: pos})
}

// DeleteTask handles DELETE /v1/tasks/{id} requests.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestIDOf(r))
		return
	}

	if err := h.queue.Delete(id); err != nil {
		h.errorHandler.HandleError(w, requestIDOf(r), err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// GetWaitTime handles GET /v1/stats/wait-time requests.
func (h *Handlers) GetWaitTime(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, WaitTimeResponse{
		ExpectedWaitTimeSeconds: int64(h.queue.ExpectedWaitTime() / time.Second),
		Size:                    h.queue.Len(),
	})
}

// LegacyNewTask handles POST /newtask. Every admission failure is a 400.
func (h *Handlers) LegacyNewTask(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDOf(r)

	id, enqueueTime, err := decodeAdmitRequest(w, r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	if err := h.queue.Admit(id, enqueueTime); err != nil {
		h.logger.Info("Failed to add new task", zap.Int64("id", id), zap.Error(err))
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest, apierrors.GetCode(err), err.Error(), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// LegacyListIDs handles GET /listIds.
func (h *Handlers) LegacyListIDs(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, newTaskViews(h.queue.ListOrdered(), h.queue.Now()))
}

// LegacyPosition handles GET /position/{id}.
func (h *Handlers) LegacyPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestIDOf(r))
		return
	}

	pos, err := h.queue.Position(id)
	if err != nil {
		h.errorHandler.HandleError(w, requestIDOf(r), err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, PositionResponse{Position: pos})
}

// Hello handles GET /hello.
func (h *Handlers) Hello(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("myName")
	if name == "" {
		name = "World"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Hello %s!", name)
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
