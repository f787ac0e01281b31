package model

import (
	"cmp"
	"fmt"
	"time"
)

// TaskClass is the category of a task, derived from its ID
type TaskClass int

const (
	TaskClassNormal TaskClass = iota
	TaskClassPriority
	TaskClassVIP
	TaskClassManagementOverride

	// NumTaskClasses is the number of distinct classes
	NumTaskClasses = 4
)

var taskClassNames = [NumTaskClasses]string{
	TaskClassNormal:             "NORMAL",
	TaskClassPriority:           "PRIORITY",
	TaskClassVIP:                "VIP",
	TaskClassManagementOverride: "MANAGEMENT_OVERRIDE",
}

func (c TaskClass) String() string {
	if c < 0 || int(c) >= NumTaskClasses {
		return fmt.Sprintf("TaskClass(%d)", int(c))
	}
	return taskClassNames[c]
}

// MarshalText encodes the class by name
func (c TaskClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name as produced by MarshalText
func (c *TaskClass) UnmarshalText(text []byte) error {
	for i, name := range taskClassNames {
		if name == string(text) {
			*c = TaskClass(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task class %q", text)
}

// ClassOf derives the class of a task ID. Divisible by 15 is a management
// override, by 5 a VIP, by 3 a priority task; everything else is normal.
func ClassOf(id int64) TaskClass {
	switch {
	case id%15 == 0:
		return TaskClassManagementOverride
	case id%5 == 0:
		return TaskClassVIP
	case id%3 == 0:
		return TaskClassPriority
	default:
		return TaskClassNormal
	}
}

// Task is a queued task. It is shared by the identity index and exactly one
// rank index, so it must not be mutated while resident.
type Task struct {
	ID          int64
	EnqueueTime int64 // unix seconds
	Class       TaskClass
}

// NewTask builds a task and derives its class
func NewTask(id, enqueueTime int64) *Task {
	return &Task{
		ID:          id,
		EnqueueTime: enqueueTime,
		Class:       ClassOf(id),
	}
}

// SecondsWaiting returns whole seconds elapsed since enqueue, never negative
func (t *Task) SecondsWaiting(now time.Time) int64 {
	waited := now.Unix() - t.EnqueueTime
	if waited < 0 {
		return 0
	}
	return waited
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%d, enqueueTime=%d, class=%s}", t.ID, t.EnqueueTime, t.Class)
}

// CompareByID orders tasks by identifier
func CompareByID(a, b *Task) int {
	return cmp.Compare(a.ID, b.ID)
}

// CompareByAge orders tasks so that the oldest task is the greatest: an
// earlier enqueue time compares greater, and on equal enqueue times the
// smaller ID compares greater. Two tasks compare equal only when both fields
// match.
func CompareByAge(a, b *Task) int {
	if c := cmp.Compare(b.EnqueueTime, a.EnqueueTime); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
