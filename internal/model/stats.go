package model

import "time"

// QueueStats is a point-in-time summary of the queue
type QueueStats struct {
	Size             int
	MaxSize          int
	ExpectedWaitTime time.Duration
	ByClass          [NumTaskClasses]int
}

// Full reports whether no further task can be admitted
func (s QueueStats) Full() bool {
	return s.Size >= s.MaxSize
}
