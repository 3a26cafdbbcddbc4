// Package loop implements the cooperative, single-threaded task queue that
// drives sources and sinks. Exactly one task runs at a time; suspension happens
// only between tasks, so ordering is fully determined by scheduling order.
package loop

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Task is one unit of scheduled work. A non-nil error is fatal to the loop.
type Task func() error

// Loop is a FIFO task queue with an explicit driver. It is not safe for
// concurrent use; every caller must run on the goroutine that calls Run.
type Loop struct {
	queue  []Task
	head   int
	ticks  uint64
	logger *zap.Logger
}

// New constructs an idle Loop.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{logger: logger}
}

// Schedule appends task to the back of the queue. Nil tasks are ignored.
func (l *Loop) Schedule(task Task) {
	if task == nil {
		return
	}
	l.queue = append(l.queue, task)
}

// Pending reports how many tasks are waiting to run.
func (l *Loop) Pending() int {
	return len(l.queue) - l.head
}

// Ticks reports how many tasks have run so far.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// Tick runs the task at the front of the queue. It reports false when the
// queue was empty.
func (l *Loop) Tick() (bool, error) {
	if l.head >= len(l.queue) {
		l.queue = l.queue[:0]
		l.head = 0
		return false, nil
	}
	task := l.queue[l.head]
	l.queue[l.head] = nil
	l.head++
	l.ticks++
	if err := task(); err != nil {
		return true, err
	}
	return true, nil
}

// Run ticks until the queue is idle, ctx is done, or a task fails. Tasks
// scheduled while running are picked up in the same call.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("loop interrupted after %d ticks: %w", l.ticks, err)
		}
		ran, err := l.Tick()
		if err != nil {
			l.logger.Warn("task failed; stopping loop", zap.Uint64("tick", l.ticks), zap.Error(err))
			return err
		}
		if !ran {
			return nil
		}
	}
}
