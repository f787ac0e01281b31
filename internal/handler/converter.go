package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/devrev/taskqueue/internal/algorithm"
	"github.com/devrev/taskqueue/internal/middleware"
	"github.com/devrev/taskqueue/internal/model"
)

// maxBodyBytes bounds admission request bodies
const maxBodyBytes = 4 << 10

// AdmitRequest is the body of an admission. Both fields are required.
type AdmitRequest struct {
	ID          *int64 `json:"id"`
	EnqueueTime *int64 `json:"enqueueTime"`
}

// AdmitResponse acknowledges an admission.
type AdmitResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// TaskView is the wire form of a resident or dequeued task.
type TaskView struct {
	ID             int64           `json:"id"`
	EnqueueTime    int64           `json:"enqueueTime"`
	TaskClass      model.TaskClass `json:"taskClass"`
	SecondsWaiting int64           `json:"secondsWaiting"`
	Rank           float64         `json:"rank"`
}

// ListResponse is the rank-ordered list of resident tasks.
type ListResponse struct {
	Tasks []TaskView `json:"tasks"`
	Count int        `json:"count"`
}

// PositionResponse reports where a task sits in rank order.
type PositionResponse struct {
	ID       int64 `json:"id,omitempty"`
	Position int   `json:"position"`
}

// WaitTimeResponse reports the mean age of resident tasks.
type WaitTimeResponse struct {
	ExpectedWaitTimeSeconds int64 `json:"expectedWaitTimeSeconds"`
	Size                    int   `json:"size"`
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// decodeAdmitRequest parses and checks an admission body.
func decodeAdmitRequest(w http.ResponseWriter, r *http.Request) (id, enqueueTime int64, err error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read request body: %w", err)
	}

	var req AdmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, 0, fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.ID == nil {
		return 0, 0, fmt.Errorf("id is required")
	}
	if req.EnqueueTime == nil {
		return 0, 0, fmt.Errorf("enqueueTime is required")
	}
	return *req.ID, *req.EnqueueTime, nil
}

// pathID extracts the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}

func newTaskView(t *model.Task, now time.Time) TaskView {
	return TaskView{
		ID:             t.ID,
		EnqueueTime:    t.EnqueueTime,
		TaskClass:      t.Class,
		SecondsWaiting: t.SecondsWaiting(now),
		Rank:           algorithm.TaskRank(t, now),
	}
}

func newTaskViews(tasks []*model.Task, now time.Time) []TaskView {
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = newTaskView(t, now)
	}
	return views
}

func requestIDOf(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}
