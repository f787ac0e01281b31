package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/taskqueue/internal/algorithm"
	"github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/model"
	"github.com/devrev/taskqueue/internal/storage/rbtree"
	"github.com/devrev/taskqueue/internal/validation"
)

// DefaultMaxSize is the resident-task capacity used when none is configured
const DefaultMaxSize = 1000

// lockOrder is the order in which rank index locks are taken, after the
// identity lock.
var lockOrder = [model.NumTaskClasses]model.TaskClass{
	model.TaskClassManagementOverride,
	model.TaskClassVIP,
	model.TaskClassPriority,
	model.TaskClassNormal,
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	MaxSize int
	Clock   func() time.Time
}

// Recorder observes queue outcomes. Calls are made after locks are released.
type Recorder interface {
	RecordAdmission(code errors.ErrorCode, class model.TaskClass)
	RecordPoll(class model.TaskClass, found bool)
	RecordDelete(code errors.ErrorCode)
	RecordInconsistency(op string)
	SetOccupancy(byClass [model.NumTaskClasses]int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmission(errors.ErrorCode, model.TaskClass) {}
func (nopRecorder) RecordPoll(model.TaskClass, bool)                  {}
func (nopRecorder) RecordDelete(errors.ErrorCode)                     {}
func (nopRecorder) RecordInconsistency(string)                        {}
func (nopRecorder) SetOccupancy([model.NumTaskClasses]int)            {}

type rankIndex struct {
	mu   sync.RWMutex
	tree *rbtree.Tree[*model.Task]
}

// QueueService is the priority queue coordinator. It owns the identity
// index, one rank index per class and the size/sumEnqueueTime aggregates.
//
// Locks are always taken identity first, then rank indices in lockOrder.
// The aggregates are guarded by the identity lock.
type QueueService struct {
	config    *QueueConfig
	validator *validation.Validator
	recorder  Recorder
	logger    *zap.Logger

	idMu sync.RWMutex
	ids  *rbtree.Tree[*model.Task]

	ranked [model.NumTaskClasses]rankIndex

	size           int
	sumEnqueueTime int64
}

// NewQueueService creates a new queue service. A nil recorder disables
// outcome recording.
func NewQueueService(cfg *QueueConfig, recorder Recorder, logger *zap.Logger) *QueueService {
	c := QueueConfig{MaxSize: DefaultMaxSize, Clock: time.Now}
	if cfg != nil {
		if cfg.MaxSize > 0 {
			c.MaxSize = cfg.MaxSize
		}
		if cfg.Clock != nil {
			c.Clock = cfg.Clock
		}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	s := &QueueService{
		config:    &c,
		validator: validation.NewValidator(c.Clock),
		recorder:  recorder,
		logger:    logger,
		ids:       rbtree.New(model.CompareByID),
	}
	for i := range s.ranked {
		s.ranked[i].tree = rbtree.New(model.CompareByAge)
	}
	return s
}

// Admit validates and enqueues a task
func (s *QueueService) Admit(id, enqueueTime int64) error {
	class := model.ClassOf(id)
	err := s.admit(id, enqueueTime)
	code := errors.GetCode(err)
	s.recorder.RecordAdmission(code, class)
	switch code {
	case errors.CodeOK:
		s.recorder.SetOccupancy(s.occupancy())
	case errors.CodeRankedTaskAlreadyExists:
	default:
		s.logger.Info("Task admission rejected",
			zap.Int64("id", id),
			zap.Int64("enqueue_time", enqueueTime),
			zap.String("code", string(code)))
	}
	return err
}

func (s *QueueService) admit(id, enqueueTime int64) error {
	if err := s.validator.ValidateAdmission(id, enqueueTime); err != nil {
		return err
	}

	task := model.NewTask(id, enqueueTime)

	s.idMu.Lock()
	defer s.idMu.Unlock()

	if s.ids.Contains(task) {
		return errors.IDAlreadyExists(id)
	}
	if s.size >= s.config.MaxSize {
		return errors.QueueFull(s.size, s.config.MaxSize)
	}

	if err := s.ids.Insert(task); err != nil {
		return errors.InternalError("identity index insert failed", err)
	}

	idx := &s.ranked[task.Class]
	idx.mu.Lock()
	err := idx.tree.Insert(task)
	idx.mu.Unlock()
	if err != nil {
		s.ids.Delete(task)
		s.logger.Error("Rank index already holds an entry for a new task id",
			zap.Int64("id", id),
			zap.Int64("enqueue_time", enqueueTime),
			zap.Stringer("class", task.Class),
			zap.Error(err))
		s.recorder.RecordInconsistency("admit")
		return errors.RankedTaskAlreadyExists(id, err)
	}

	s.size++
	s.sumEnqueueTime += enqueueTime

	s.logger.Debug("Task admitted",
		zap.Int64("id", id),
		zap.Stringer("class", task.Class),
		zap.Int("size", s.size))
	return nil
}

// Poll removes and returns the most urgent task
func (s *QueueService) Poll() (*model.Task, error) {
	task := s.poll()
	if task == nil {
		s.recorder.RecordPoll(0, false)
		return nil, errors.QueueEmpty()
	}
	s.recorder.RecordPoll(task.Class, true)
	s.recorder.SetOccupancy(s.occupancy())
	return task, nil
}

func (s *QueueService) poll() *model.Task {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.lockRanked()
	defer s.unlockRanked()

	if task, ok := s.ranked[model.TaskClassManagementOverride].tree.PollMax(); ok {
		s.removeIdentity(task, "poll")
		return task
	}

	var candidates algorithm.Candidates
	for _, class := range algorithm.Precedence {
		if t, ok := s.ranked[class].tree.Max(); ok {
			candidates[class] = t
		}
	}
	class, ok := algorithm.Select(candidates, s.config.Clock())
	if !ok {
		return nil
	}

	task, _ := s.ranked[class].tree.PollMax()
	s.removeIdentity(task, "poll")
	return task
}

// Delete removes a task by id
func (s *QueueService) Delete(id int64) error {
	err := s.delete(id)
	s.recorder.RecordDelete(errors.GetCode(err))
	if err == nil {
		s.recorder.SetOccupancy(s.occupancy())
	}
	return err
}

func (s *QueueService) delete(id int64) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	task, ok := s.ids.Find(&model.Task{ID: id})
	if !ok {
		return errors.TaskNotFound(id)
	}

	idx := &s.ranked[task.Class]
	idx.mu.Lock()
	removed := idx.tree.Delete(task)
	idx.mu.Unlock()
	if !removed {
		s.logger.Error("Task missing from its rank index",
			zap.Int64("id", id),
			zap.Stringer("class", task.Class))
		s.recorder.RecordInconsistency("delete")
	}

	s.removeIdentity(task, "delete")
	return nil
}

// Position returns the zero-based offset of id in rank order, or -1 and a
// not-found error if the task is not resident.
func (s *QueueService) Position(id int64) (int, error) {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	s.rlockRanked()
	defer s.runlockRanked()

	if !s.ids.Contains(&model.Task{ID: id}) {
		return -1, errors.TaskNotFound(id)
	}

	for i, t := range s.orderedLocked(s.config.Clock()) {
		if t.ID == id {
			return i, nil
		}
	}

	s.logger.Error("Task missing from its rank index", zap.Int64("id", id))
	s.recorder.RecordInconsistency("position")
	return -1, errors.TaskNotFound(id)
}

// ListOrdered returns every resident task from highest to lowest rank
func (s *QueueService) ListOrdered() []*model.Task {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	s.rlockRanked()
	defer s.runlockRanked()

	return s.orderedLocked(s.config.Clock())
}

// ExpectedWaitTime returns the mean age of resident tasks in whole seconds
func (s *QueueService) ExpectedWaitTime() time.Duration {
	s.idMu.RLock()
	defer s.idMu.RUnlock()

	return s.expectedWaitLocked(s.config.Clock())
}

// Len returns the number of resident tasks
func (s *QueueService) Len() int {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.size
}

// Now returns the service clock's current time
func (s *QueueService) Now() time.Time {
	return s.config.Clock()
}

// Snapshot returns a consistent summary of the queue
func (s *QueueService) Snapshot() model.QueueStats {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	s.rlockRanked()
	defer s.runlockRanked()

	stats := model.QueueStats{
		Size:             s.size,
		MaxSize:          s.config.MaxSize,
		ExpectedWaitTime: s.expectedWaitLocked(s.config.Clock()),
	}
	for i := range s.ranked {
		stats.ByClass[i] = s.ranked[i].tree.Len()
	}
	return stats
}

func (s *QueueService) occupancy() [model.NumTaskClasses]int {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	s.rlockRanked()
	defer s.runlockRanked()

	var byClass [model.NumTaskClasses]int
	for i := range s.ranked {
		byClass[i] = s.ranked[i].tree.Len()
	}
	return byClass
}

// orderedLocked merges the rank indices. Overrides come first, oldest
// first; the other classes are merged by evaluating the rank of each list
// head at now. Callers hold every lock.
func (s *QueueService) orderedLocked(now time.Time) []*model.Task {
	out := make([]*model.Task, 0, s.ids.Len())
	out = append(out, descending(s.ranked[model.TaskClassManagementOverride].tree)...)

	var lists [model.NumTaskClasses][]*model.Task
	for _, class := range algorithm.Precedence {
		lists[class] = descending(s.ranked[class].tree)
	}

	for {
		var heads algorithm.Candidates
		for _, class := range algorithm.Precedence {
			if len(lists[class]) > 0 {
				heads[class] = lists[class][0]
			}
		}
		class, ok := algorithm.Select(heads, now)
		if !ok {
			return out
		}
		out = append(out, heads[class])
		lists[class] = lists[class][1:]
	}
}

func (s *QueueService) expectedWaitLocked(now time.Time) time.Duration {
	if s.size == 0 {
		return 0
	}
	mean := s.sumEnqueueTime / int64(s.size)
	wait := now.Unix() - mean
	if wait < 0 {
		return 0
	}
	return time.Duration(wait) * time.Second
}

// removeIdentity drops task from the identity index and releases its share
// of the aggregates. Callers hold the identity write lock.
func (s *QueueService) removeIdentity(task *model.Task, op string) {
	if !s.ids.Delete(task) {
		s.logger.Error("Task missing from identity index",
			zap.String("op", op),
			zap.Int64("id", task.ID))
		s.recorder.RecordInconsistency(op)
	}

	s.size--
	s.sumEnqueueTime -= task.EnqueueTime
	if s.size < 0 {
		s.logger.Error("Queue size went negative, clamping", zap.String("op", op), zap.Int("size", s.size))
		s.size = 0
	}
	if s.sumEnqueueTime < 0 {
		s.logger.Error("Enqueue time sum went negative, clamping",
			zap.String("op", op),
			zap.Int64("sum_enqueue_time", s.sumEnqueueTime))
		s.sumEnqueueTime = 0
	}
}

func (s *QueueService) lockRanked() {
	for _, class := range lockOrder {
		s.ranked[class].mu.Lock()
	}
}

func (s *QueueService) unlockRanked() {
	for i := len(lockOrder) - 1; i >= 0; i-- {
		s.ranked[lockOrder[i]].mu.Unlock()
	}
}

func (s *QueueService) rlockRanked() {
	for _, class := range lockOrder {
		s.ranked[class].mu.RLock()
	}
}

func (s *QueueService) runlockRanked() {
	for i := len(lockOrder) - 1; i >= 0; i-- {
		s.ranked[lockOrder[i]].mu.RUnlock()
	}
}

func descending(t *rbtree.Tree[*model.Task]) []*model.Task {
	asc := t.Ascending()
	for i, j := 0, len(asc)-1; i < j; i, j = i+1, j-1 {
		asc[i], asc[j] = asc[j], asc[i]
	}
	return asc
}
