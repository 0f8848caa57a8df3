package ygggo_dbconn

import (
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"gopkg.in/tomb.v2"
)

// Scheduler runs named recurring tasks.
type Scheduler interface {
	// Schedule runs fn at first and then every interval. Scheduling a name
	// that is already registered replaces the earlier task.
	Schedule(name string, first time.Time, interval time.Duration, fn func(now time.Time))
	// Cancel stops the named task and waits for it to finish.
	Cancel(name string)
}

// TaskScheduler is a Scheduler running one goroutine per task.
type TaskScheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*tomb.Tomb
	stopped bool
	wg      sync.WaitGroup
}

// NewTaskScheduler returns a scheduler timed by clk.
func NewTaskScheduler(clk clock.Clock, logger *slog.Logger) *TaskScheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = defaultLogger
	}
	return &TaskScheduler{
		clock:  clk,
		logger: logger,
		tasks:  make(map[string]*tomb.Tomb),
	}
}

// Schedule implements Scheduler. A replaced task is killed without waiting:
// it may be inside fn, and fn may be blocked on a lock held by the caller.
// It never fires again once replaced.
func (s *TaskScheduler) Schedule(name string, first time.Time, interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		s.logger.Error("refusing to schedule task with non-positive interval",
			slog.String("task", name),
			slog.Duration("interval", interval),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("refusing to schedule task on stopped scheduler",
			slog.String("task", name),
		)
		return
	}
	if old, ok := s.tasks[name]; ok {
		old.Kill(nil)
	}
	t := new(tomb.Tomb)
	s.tasks[name] = t

	s.wg.Add(1)
	t.Go(func() error {
		defer s.wg.Done()
		return s.run(t, first, interval, fn)
	})

	s.logger.Debug("task scheduled",
		slog.String("task", name),
		slog.Time("first", first),
		slog.Duration("interval", interval),
	)
}

// Cancel implements Scheduler.
func (s *TaskScheduler) Cancel(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()

	if ok {
		t.Kill(nil)
		_ = t.Wait()
	}
}

// Stop cancels every task, including replaced ones still winding down, and
// waits for all of them. The scheduler accepts no tasks afterwards.
func (s *TaskScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for name, t := range s.tasks {
		t.Kill(nil)
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *TaskScheduler) run(t *tomb.Tomb, first time.Time, interval time.Duration, fn func(time.Time)) error {
	timer := s.clock.NewTimer(first.Sub(s.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-t.Dying():
			return tomb.ErrDying
		case now := <-timer.Chan():
			select {
			case <-t.Dying():
				return tomb.ErrDying
			default:
			}
			fn(now)
			timer.Reset(interval)
		}
	}
}
