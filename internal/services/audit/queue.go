package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/events"
)

// QueueConfig controls queue concurrency and retry behavior
type QueueConfig struct {
	MaxConcurrent int
	MaxRetries    int
	RetryBackoff  time.Duration
	TaskTimeout   time.Duration
	ProgressEvery time.Duration
	DispatchRate  float64 // dispatches per second, 0 = unlimited
}

// Runner performs one audit attempt for a task. A nil error means the
// returned result is the terminal outcome for the URL (including skips and
// HTTP errors). A non-nil error is classified by the retry policy.
type Runner func(ctx context.Context, task *models.URLTask) (*models.PageResult, error)

// Queue dispatches URL tasks to a bounded worker set with retry, backoff,
// backpressure, and cancellation. Dispatch order is FIFO; retried tasks
// re-enter at the tail.
type Queue struct {
	cfg     QueueConfig
	logger  arbor.ILogger
	bus     *events.Service
	retry   *RetryPolicy
	monitor *Monitor
	runner  Runner
	limiter *rate.Limiter

	mu             sync.Mutex
	cond           *sync.Cond
	tasks          map[string]*models.URLTask
	ready          []*models.URLTask
	pendingRetries int
	inFlight       int
	cancelled      bool
	aborted        bool
	results        []*models.PageResult
	skipped        []string
	durTotal       time.Duration
	durCount       int

	emptyOnce sync.Once
}

// NewQueue creates a work queue. The monitor may be nil to disable
// backpressure.
func NewQueue(cfg QueueConfig, runner Runner, bus *events.Service, monitor *Monitor, logger arbor.ILogger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 2 * time.Second
	}

	retry := NewRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		retry.InitialBackoff = cfg.RetryBackoff
	}

	var limiter *rate.Limiter
	if cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}

	q := &Queue{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		retry:   retry,
		monitor: monitor,
		runner:  runner,
		limiter: limiter,
		tasks:   make(map[string]*models.URLTask),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds URLs as pending tasks, deduplicating by URL
func (q *Queue) Enqueue(urls []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, url := range urls {
		if url == "" {
			continue
		}
		if _, exists := q.tasks[url]; exists {
			continue
		}
		task := &models.URLTask{
			URL:        url,
			State:      models.TaskStatePending,
			EnqueuedAt: time.Now(),
		}
		q.tasks[url] = task
		q.ready = append(q.ready, task)
	}

	q.cond.Broadcast()
}

// Run processes every enqueued task and blocks until the queue drains or
// the context is cancelled. Per-URL failures become records; the returned
// error is non-nil only for engine-level aborts.
func (q *Queue) Run(ctx context.Context) ([]*models.PageResult, []string, error) {
	if q.monitor != nil {
		q.monitor.Start()
		defer q.monitor.Stop()
	}

	// Cancellation watcher: stop dispatch and drain pending tasks
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.Cancel()
		case <-watchDone:
		}
	}()

	// Progress ticker
	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(q.cfg.ProgressEvery)
		defer ticker.Stop()
		for {
			select {
			case <-progressDone:
				return
			case <-ticker.C:
				q.publishProgress()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.MaxConcurrent; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.workerLoop(ctx, workerID)
		}(i)
	}
	wg.Wait()

	close(watchDone)
	close(progressDone)

	q.drainPending()
	q.publishProgress()

	q.emptyOnce.Do(func() {
		q.bus.Publish(models.Event{
			Type:      models.EventQueueEmpty,
			Timestamp: time.Now(),
			Payload:   models.ProgressPayload{Stats: q.Stats()},
		})
	})

	q.mu.Lock()
	results := q.results
	skipped := q.skipped
	aborted := q.aborted
	q.mu.Unlock()

	if aborted {
		return results, skipped, fmt.Errorf("run aborted: %w", ErrResourceExhausted)
	}
	return results, skipped, nil
}

// workerLoop pulls and executes tasks until the queue drains
func (q *Queue) workerLoop(ctx context.Context, workerID int) {
	q.logger.Debug().Int("worker_id", workerID).Msg("Queue worker started")
	defer q.logger.Debug().Int("worker_id", workerID).Msg("Queue worker exiting")

	for {
		task := q.next()
		if task == nil {
			return
		}

		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				q.requeueFront(task)
				return
			}
		}

		q.execute(ctx, task)
	}
}

// next blocks until a task is dispatchable, returning nil once the queue is
// drained or cancelled
func (q *Queue) next() *models.URLTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.cancelled {
			return nil
		}

		if len(q.ready) > 0 {
			if q.monitor != nil && q.monitor.Paused() {
				q.waitLocked(100 * time.Millisecond)
				continue
			}
			task := q.ready[0]
			q.ready = q.ready[1:]
			q.inFlight++
			return task
		}

		if q.inFlight == 0 && q.pendingRetries == 0 {
			return nil
		}

		q.waitLocked(250 * time.Millisecond)
	}
}

// waitLocked waits on the condition with a timed wake so state changes made
// without a broadcast (monitor resume, cancellation) are still observed
func (q *Queue) waitLocked(timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() { q.cond.Broadcast() })
	q.cond.Wait()
	timer.Stop()
}

// requeueFront puts an undispatched task back at the head
func (q *Queue) requeueFront(task *models.URLTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.ready = append([]*models.URLTask{task}, q.ready...)
	q.cond.Broadcast()
}

// execute runs one attempt and routes the outcome
func (q *Queue) execute(ctx context.Context, task *models.URLTask) {
	q.mu.Lock()
	task.Attempts++
	attempt := task.Attempts
	task.State = models.TaskStateInFlight
	now := time.Now()
	task.StartedAt = &now
	q.mu.Unlock()

	q.bus.Publish(models.Event{
		Type:      models.EventURLStarted,
		Timestamp: time.Now(),
		Payload:   models.URLStartedPayload{URL: task.URL, Attempt: attempt},
	})

	runCtx := ctx
	var cancel context.CancelFunc
	if q.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
	}
	result, err := q.runner(runCtx, task)
	if cancel != nil {
		cancel()
	}

	elapsed := time.Since(now)

	switch {
	case err == nil:
		q.completeTask(task, result, attempt, elapsed)

	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil:
		q.cancelTask(task, attempt)

	case q.retry.ShouldRetry(attempt, err):
		q.scheduleRetry(task, err, attempt)

	default:
		q.failTask(task, err, attempt, elapsed)
	}
}

// completeTask records a terminal result from a successful attempt
func (q *Queue) completeTask(task *models.URLTask, result *models.PageResult, attempt int, elapsed time.Duration) {
	q.mu.Lock()
	task.State = models.TaskStateCompleted
	now := time.Now()
	task.FinishedAt = &now
	q.inFlight--

	if result == nil {
		result = newResult(task.URL, models.PageStatusFailed)
	}
	if result.DurationMs == 0 {
		result.DurationMs = elapsed.Milliseconds()
	}
	result.Attempts = attempt

	q.results = append(q.results, result)
	if result.Status == models.PageStatusSkippedRedirect {
		q.skipped = append(q.skipped, task.URL)
	}
	q.durTotal += elapsed
	q.durCount++
	q.cond.Broadcast()
	q.mu.Unlock()

	q.bus.Publish(models.Event{
		Type:      models.EventURLCompleted,
		Timestamp: time.Now(),
		Payload:   models.URLCompletedPayload{Result: result},
	})
}

// cancelTask records an attempt interrupted by run cancellation
func (q *Queue) cancelTask(task *models.URLTask, attempt int) {
	q.mu.Lock()
	task.State = models.TaskStateCancelled
	now := time.Now()
	task.FinishedAt = &now
	q.inFlight--
	result := NewCancelled(task.URL)
	result.Attempts = attempt
	q.results = append(q.results, result)
	q.cond.Broadcast()
	q.mu.Unlock()

	q.bus.Publish(models.Event{
		Type:      models.EventURLFailed,
		Timestamp: time.Now(),
		Payload:   models.URLFailedPayload{URL: task.URL, Error: "cancelled", Attempt: attempt, Terminal: true},
	})
}

// scheduleRetry re-enqueues a task at the tail after backoff
func (q *Queue) scheduleRetry(task *models.URLTask, err error, attempt int) {
	backoff := q.retry.CalculateBackoff(attempt)

	q.mu.Lock()
	task.State = models.TaskStateRetrying
	task.LastError = err.Error()
	q.inFlight--
	q.pendingRetries++
	q.mu.Unlock()

	q.logger.Debug().
		Str("url", task.URL).
		Int("attempt", attempt).
		Dur("backoff", backoff).
		Err(err).
		Msg("Retrying after backoff")

	q.bus.Publish(models.Event{
		Type:      models.EventURLFailed,
		Timestamp: time.Now(),
		Payload:   models.URLFailedPayload{URL: task.URL, Error: err.Error(), Attempt: attempt, Terminal: false},
	})

	time.AfterFunc(backoff, func() {
		q.mu.Lock()
		q.pendingRetries--
		// drainPending may have settled the task if the run was cancelled
		// while the backoff was pending
		if task.State == models.TaskStateRetrying {
			if q.cancelled {
				task.State = models.TaskStateCancelled
				result := NewCancelled(task.URL)
				result.Attempts = attempt
				q.results = append(q.results, result)
			} else {
				task.State = models.TaskStatePending
				q.ready = append(q.ready, task)
			}
		}
		q.cond.Broadcast()
		q.mu.Unlock()
	})
}

// failTask records a terminal failure
func (q *Queue) failTask(task *models.URLTask, err error, attempt int, elapsed time.Duration) {
	q.mu.Lock()
	task.State = models.TaskStateFailed
	task.LastError = err.Error()
	now := time.Now()
	task.FinishedAt = &now
	q.inFlight--

	var result *models.PageResult
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		result = NewHTTPError(task.URL, statusErr.StatusCode)
	} else {
		result = NewCrash(task.URL, err, attempt)
	}
	result.DurationMs = elapsed.Milliseconds()
	result.Attempts = attempt
	q.results = append(q.results, result)
	q.durTotal += elapsed
	q.durCount++
	q.cond.Broadcast()
	q.mu.Unlock()

	q.bus.Publish(models.Event{
		Type:      models.EventURLFailed,
		Timestamp: time.Now(),
		Payload:   models.URLFailedPayload{URL: task.URL, Error: err.Error(), Attempt: attempt, Terminal: true},
	})
}

// Cancel stops dispatch. In-flight attempts run to completion; pending
// tasks are marked cancelled when Run drains.
func (q *Queue) Cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Abort cancels the run because of resource exhaustion. Pending tasks
// become failed records.
func (q *Queue) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.cancelled = true
	for _, task := range q.ready {
		task.State = models.TaskStateFailed
		task.LastError = ErrResourceExhausted.Error()
		result := NewCrash(task.URL, ErrResourceExhausted, task.Attempts)
		q.results = append(q.results, result)
	}
	q.ready = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}

// drainPending settles tasks that never got a terminal outcome: queued
// tasks and retries still waiting out their backoff
func (q *Queue) drainPending() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.ready {
		task.State = models.TaskStateCancelled
		result := NewCancelled(task.URL)
		result.Attempts = task.Attempts
		q.results = append(q.results, result)
	}
	q.ready = nil

	for _, task := range q.tasks {
		if task.State == models.TaskStateRetrying {
			task.State = models.TaskStateCancelled
			result := NewCancelled(task.URL)
			result.Attempts = task.Attempts
			q.results = append(q.results, result)
		}
	}
}

// Stats returns a point-in-time progress snapshot
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := models.QueueStats{
		Total:    len(q.tasks),
		InFlight: q.inFlight,
	}

	for _, task := range q.tasks {
		switch task.State {
		case models.TaskStatePending:
			stats.Pending++
		case models.TaskStateRetrying:
			stats.Retrying++
		case models.TaskStateCompleted:
			stats.Completed++
		case models.TaskStateFailed, models.TaskStateCancelled:
			stats.Failed++
		}
	}

	done := stats.Completed + stats.Failed
	if stats.Total > 0 {
		stats.ProgressPercent = float64(done) / float64(stats.Total) * 100
	}
	if q.durCount > 0 {
		avg := q.durTotal / time.Duration(q.durCount)
		stats.AverageDurationMs = avg.Milliseconds()
		remaining := stats.Total - done
		if q.cfg.MaxConcurrent > 0 {
			stats.EstimatedRemainingMs = int64(remaining) * avg.Milliseconds() / int64(q.cfg.MaxConcurrent)
		}
	}
	stats.ActiveWorkers = q.inFlight

	if q.monitor != nil {
		stats.MemoryUsageMB, stats.CPUPercent, stats.Paused = q.monitor.Snapshot()
	}

	return stats
}

// publishProgress emits a progress event with current stats
func (q *Queue) publishProgress() {
	q.bus.Publish(models.Event{
		Type:      models.EventProgress,
		Timestamp: time.Now(),
		Payload:   models.ProgressPayload{Stats: q.Stats()},
	})
}
