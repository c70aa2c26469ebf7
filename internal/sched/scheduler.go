// Package sched is a process-local deferred-callback facility: one-shot
// callbacks fired once a target wall-clock instant has passed.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Callback runs on the scheduler's firing goroutine. Errors are logged and
// never stop later-queued work.
type Callback func(ctx context.Context) error

type task struct {
	at   time.Time
	name string
	fn   Callback
}

// Scheduler keeps pending tasks ordered by instant and arms exactly one
// native timer, pointed at the earliest one. Firing drains every already-due
// task in order before re-arming, so timer jitter cannot skip a task.
type Scheduler struct {
	mu    sync.Mutex
	runMu sync.Mutex
	tasks []task
	timer *time.Timer
	now   func() time.Time
}

func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// ScheduleAt registers fn to run once at. An instant already in the past
// fires on the next timer tick, effectively immediately.
func (s *Scheduler) ScheduleAt(at time.Time, name string, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := task{at: at, name: name, fn: fn}
	idx := len(s.tasks)
	for i, existing := range s.tasks {
		if at.Before(existing.at) {
			idx = i
			break
		}
	}
	s.tasks = append(s.tasks, task{})
	copy(s.tasks[idx+1:], s.tasks[idx:])
	s.tasks[idx] = t
	s.rearmLocked()
}

// ScheduleIn is sugar for ScheduleAt(now+d, ...).
func (s *Scheduler) ScheduleIn(d time.Duration, name string, fn Callback) {
	s.ScheduleAt(s.now().Add(d), name, fn)
}

// Clear cancels every pending task and releases the timer. The scheduler
// stays usable afterwards.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports the number of tasks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) rearmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.tasks) == 0 {
		return
	}
	d := s.tasks[0].at.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.fire)
}

func (s *Scheduler) fire() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[0].at.After(s.now()) {
			s.rearmLocked()
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		runTask(t)
	}
}

func runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", t.name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	if err := t.fn(context.Background()); err != nil {
		log.Error().Str("task", t.name).Err(err).Msg("scheduled task failed")
	}
}
