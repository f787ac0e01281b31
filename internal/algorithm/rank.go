package algorithm

import (
	"math"
	"time"

	"github.com/devrev/taskqueue/internal/model"
)

const (
	// PriorityRankFloor is the minimum rank of a PRIORITY task
	PriorityRankFloor = 3.0
	// VIPRankFloor is the minimum rank of a VIP task
	VIPRankFloor = 4.0
	// NoCandidateRank marks an absent candidate; every real rank is above it.
	NoCandidateRank = -1.0
)

// Precedence lists the non-override classes in tie-break order: on equal
// rank the class listed first wins.
var Precedence = [...]model.TaskClass{
	model.TaskClassVIP,
	model.TaskClassPriority,
	model.TaskClassNormal,
}

// Rank computes the urgency of a task of the given class that has waited
// secondsWaiting seconds. For PRIORITY and VIP the rank is non-decreasing in
// the wait time, so within one class the oldest task is the highest ranked.
//
// MANAGEMENT_OVERRIDE tasks outrank every other class regardless of this
// value; for them Rank reports the wait time, which only orders overrides
// among themselves.
func Rank(class model.TaskClass, secondsWaiting int64) float64 {
	s := float64(max(secondsWaiting, 0))
	switch class {
	case model.TaskClassVIP:
		return math.Max(VIPRankFloor, 2*xlogx(s))
	case model.TaskClassPriority:
		return math.Max(PriorityRankFloor, xlogx(s))
	default:
		return s
	}
}

// TaskRank evaluates Rank for t at the given instant
func TaskRank(t *model.Task, now time.Time) float64 {
	return Rank(t.Class, t.SecondsWaiting(now))
}

// xlogx returns s*ln(s), taking the limit 0 at s == 0 instead of NaN.
func xlogx(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s * math.Log(s)
}

// Candidates holds the highest-ranked resident of each class, nil when the
// class is empty. It is indexed by model.TaskClass.
type Candidates [model.NumTaskClasses]*model.Task

// Select picks the class whose candidate has the greatest rank at now,
// ignoring MANAGEMENT_OVERRIDE. Equal ranks are resolved by Precedence. It
// returns false if no non-override candidate is present.
func Select(c Candidates, now time.Time) (model.TaskClass, bool) {
	best := NoCandidateRank
	winner := model.TaskClassNormal
	found := false
	for _, class := range Precedence {
		t := c[class]
		if t == nil {
			continue
		}
		if r := TaskRank(t, now); r > best {
			best = r
			winner = class
			found = true
		}
	}
	return winner, found
}
