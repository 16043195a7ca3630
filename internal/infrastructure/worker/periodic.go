package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic job. It returns how many records it touched.
type Task func(ctx context.Context) (int, error)

// PeriodicConfig holds scheduling settings for a periodic worker
type PeriodicConfig struct {
	Interval time.Duration
	// Timeout bounds a single run. Zero means no bound besides shutdown.
	Timeout time.Duration
	// RunOnStart runs the task once immediately instead of waiting a full interval
	RunOnStart bool
}

// Status is a snapshot of a worker's run statistics
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Processed int       `json:"processed"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// PeriodicWorker runs a task on a ticker until stopped
type PeriodicWorker struct {
	name   string
	config PeriodicConfig
	task   Task
	logger *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	failures  int
	processed int
	lastRun   time.Time
	lastError error
}

// NewPeriodicWorker creates a worker that calls task every config.Interval
func NewPeriodicWorker(name string, config PeriodicConfig, task Task, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		name:   name,
		config: config,
		task:   task,
		logger: logger.With(zap.String("worker", name)),
	}
}

// Start begins the polling loop
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if w.config.Interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", w.name)
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("%s already running", w.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	done := w.done
	w.mu.Unlock()

	w.logger.Info("Periodic worker started", zap.Duration("interval", w.config.Interval))

	go w.pollLoop(loopCtx, done)
	return nil
}

// Stop cancels the loop and waits for a run in progress to return
func (w *PeriodicWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	s := w.Status()
	w.logger.Info("Periodic worker stopped",
		zap.Int("runs", s.Runs),
		zap.Int("failures", s.Failures),
		zap.Int("processed", s.Processed))
	return nil
}

// Name returns the worker name for identification
func (w *PeriodicWorker) Name() string {
	return w.name
}

// Status returns the current run statistics
func (w *PeriodicWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		Name:      w.name,
		Running:   w.isRunning,
		Runs:      w.runs,
		Failures:  w.failures,
		Processed: w.processed,
		LastRun:   w.lastRun,
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

// RunOnce runs the task synchronously and records the outcome
func (w *PeriodicWorker) RunOnce(ctx context.Context) (int, error) {
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	n, err := w.task(ctx)

	w.mu.Lock()
	w.runs++
	w.lastRun = time.Now()
	w.processed += n
	if err != nil {
		w.failures++
		w.lastError = err
	} else {
		w.lastError = nil
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Periodic task failed", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("Periodic task completed", zap.Int("processed", n))
	}
	return n, err
}

func (w *PeriodicWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if w.config.RunOnStart {
		_, _ = w.RunOnce(ctx)
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}
