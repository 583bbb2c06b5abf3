package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auditmysite/internal/models"
	"github.com/ternarybob/auditmysite/internal/services/events"
)

// eventRecorder collects bus events for assertion. Handlers run in worker
// goroutines, so access is locked.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) attach(bus *events.Service) {
	bus.SubscribeAll(func(event models.Event) {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

// forURL returns the lifecycle event types observed for one URL, in order
func (r *eventRecorder) forURL(url string) []models.EventType {
	var seq []models.EventType
	for _, ev := range r.all() {
		switch p := ev.Payload.(type) {
		case models.URLStartedPayload:
			if p.URL == url {
				seq = append(seq, ev.Type)
			}
		case models.URLCompletedPayload:
			if p.Result != nil && p.Result.URL == url {
				seq = append(seq, ev.Type)
			}
		case models.URLFailedPayload:
			if p.URL == url {
				seq = append(seq, ev.Type)
			}
		}
	}
	return seq
}

func (r *eventRecorder) count(t models.EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func okRunner(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
	r := newResult(task.URL, models.PageStatusPassed)
	r.Accessibility = &models.AccessibilitySection{Score: 100}
	return r, nil
}

func testQueue(cfg QueueConfig, runner Runner) (*Queue, *eventRecorder, *events.Service) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	rec := &eventRecorder{}
	rec.attach(bus)
	q := NewQueue(cfg, runner, bus, nil, logger)
	return q, rec, bus
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.com/page-%d", i)
	}
	return out
}

func TestQueue_HappyPath(t *testing.T) {
	q, rec, _ := testQueue(QueueConfig{MaxConcurrent: 2, ProgressEvery: 50 * time.Millisecond}, okRunner)
	q.Enqueue(urls(5))

	results, skipped, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Empty(t, skipped)

	for _, r := range results {
		assert.Equal(t, models.PageStatusPassed, r.Status)
		assert.Equal(t, 1, r.Attempts)
	}

	for _, url := range urls(5) {
		assert.Equal(t, []models.EventType{models.EventURLStarted, models.EventURLCompleted}, rec.forURL(url))
	}

	assert.Equal(t, 1, rec.count(models.EventQueueEmpty))
}

func TestQueue_DedupesURLs(t *testing.T) {
	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 1}, okRunner)
	q.Enqueue([]string{"https://example.com/a", "https://example.com/a", "https://example.com/b"})

	results, _, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueue_FIFOFirstAttempts(t *testing.T) {
	var mu sync.Mutex
	var order []string
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		mu.Lock()
		order = append(order, task.URL)
		mu.Unlock()
		return okRunner(ctx, task)
	}

	// Single worker makes dispatch order observable
	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 1}, runner)
	input := urls(6)
	q.Enqueue(input)

	_, _, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, input, order)
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return okRunner(ctx, task)
	}

	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 3}, runner)
	q.Enqueue(urls(12))

	_, _, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 3)
	assert.GreaterOrEqual(t, peak, 2, "workers should actually run concurrently")
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return nil, fmt.Errorf("load: %w", ErrNavigation)
		}
		return okRunner(ctx, task)
	}

	q, rec, _ := testQueue(QueueConfig{
		MaxConcurrent: 1,
		MaxRetries:    2,
		RetryBackoff:  10 * time.Millisecond,
	}, runner)
	q.Enqueue([]string{"https://example.com/flaky"})

	results, _, err := q.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.PageStatusPassed, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)

	// started failed started failed started completed
	assert.Equal(t, []models.EventType{
		models.EventURLStarted, models.EventURLFailed,
		models.EventURLStarted, models.EventURLFailed,
		models.EventURLStarted, models.EventURLCompleted,
	}, rec.forURL("https://example.com/flaky"))

	// The intermediate failures are non-terminal
	terminal := 0
	for _, ev := range rec.all() {
		if p, ok := ev.Payload.(models.URLFailedPayload); ok && p.Terminal {
			terminal++
		}
	}
	assert.Zero(t, terminal)
}

func TestQueue_ExhaustedRetriesCrash(t *testing.T) {
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		return nil, fmt.Errorf("tab gone: %w", ErrBrowserCrash)
	}

	q, rec, _ := testQueue(QueueConfig{
		MaxConcurrent: 1,
		MaxRetries:    1,
		RetryBackoff:  10 * time.Millisecond,
	}, runner)
	q.Enqueue([]string{"https://example.com/broken"})

	results, _, err := q.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.PageStatusCrashed, results[0].Status)
	assert.Equal(t, 2, results[0].Attempts)
	assert.Contains(t, results[0].Error, "tab gone")

	seq := rec.forURL("https://example.com/broken")
	assert.Equal(t, []models.EventType{
		models.EventURLStarted, models.EventURLFailed,
		models.EventURLStarted, models.EventURLFailed,
	}, seq)
}

func TestQueue_HTTPErrorIsTerminal(t *testing.T) {
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		return nil, &HTTPStatusError{StatusCode: 404, URL: task.URL}
	}

	q, rec, _ := testQueue(QueueConfig{MaxConcurrent: 1, MaxRetries: 3}, runner)
	q.Enqueue([]string{"https://example.com/missing"})

	results, _, err := q.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.PageStatusHTTPError, results[0].Status)
	assert.Equal(t, 404, results[0].StatusCode)
	// No retries for a 404
	assert.Equal(t, 1, results[0].Attempts)
	assert.Len(t, rec.forURL("https://example.com/missing"), 2)
}

func TestQueue_RedirectSkipCountsAsSkipped(t *testing.T) {
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		if task.URL == "https://example.com/old" {
			return NewRedirectSkip(task.URL, models.RedirectInfo{
				IsRedirect:   true,
				StatusCode:   301,
				OriginalURL:  task.URL,
				FinalURL:     "https://example.com/new",
				URLChanged:   true,
				RedirectType: "http",
			}), nil
		}
		return okRunner(ctx, task)
	}

	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 2}, runner)
	q.Enqueue([]string{"https://example.com/old", "https://example.com/kept"})

	results, skipped, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"https://example.com/old"}, skipped)

	var skip *models.PageResult
	for _, r := range results {
		if r.URL == "https://example.com/old" {
			skip = r
		}
	}
	require.NotNil(t, skip)
	assert.Equal(t, models.PageStatusSkippedRedirect, skip.Status)
	assert.Empty(t, skip.Error)
}

func TestQueue_Cancellation(t *testing.T) {
	started := make(chan struct{}, 16)
	release := make(chan struct{})
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		started <- struct{}{}
		select {
		case <-release:
			return okRunner(ctx, task)
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}

	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 2}, runner)
	q.Enqueue(urls(10))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var results []*models.PageResult
	go func() {
		results, _, _ = q.Run(ctx)
		close(done)
	}()

	// Wait for the first two tasks to be in flight, then cancel
	<-started
	<-started
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain after cancellation")
	}

	// Every URL got exactly one record
	assert.Len(t, results, 10)

	cancelled := 0
	for _, r := range results {
		if r.Status == models.PageStatusCancelled {
			cancelled++
		}
	}
	// At least the 8 never-dispatched tasks are cancelled
	assert.GreaterOrEqual(t, cancelled, 8)
}

func TestQueue_QueueEmptyExactlyOnce(t *testing.T) {
	q, rec, _ := testQueue(QueueConfig{MaxConcurrent: 4}, okRunner)
	q.Enqueue(urls(8))

	_, _, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(models.EventQueueEmpty))
}

func TestQueue_ProgressEvents(t *testing.T) {
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		time.Sleep(30 * time.Millisecond)
		return okRunner(ctx, task)
	}

	q, rec, _ := testQueue(QueueConfig{MaxConcurrent: 1, ProgressEvery: 20 * time.Millisecond}, runner)
	q.Enqueue(urls(4))

	_, _, err := q.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.count(models.EventProgress), 2)

	// Final stats account for every task
	stats := q.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.Completed)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.InFlight)
	assert.Equal(t, float64(100), stats.ProgressPercent)
}

func TestQueue_Abort(t *testing.T) {
	block := make(chan struct{})
	runner := func(ctx context.Context, task *models.URLTask) (*models.PageResult, error) {
		<-block
		return okRunner(ctx, task)
	}

	q, _, _ := testQueue(QueueConfig{MaxConcurrent: 1}, runner)
	q.Enqueue(urls(5))

	done := make(chan struct{})
	var results []*models.PageResult
	var runErr error
	go func() {
		results, _, runErr = q.Run(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	q.Abort()
	close(block)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain after abort")
	}

	assert.ErrorIs(t, runErr, ErrResourceExhausted)
	assert.Len(t, results, 5)

	failed := 0
	for _, r := range results {
		if r.Status == models.PageStatusCrashed {
			failed++
		}
	}
	assert.GreaterOrEqual(t, failed, 4, "pending tasks become resource failures")
}

func TestQueue_BackpressurePausesDispatch(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	rec := &eventRecorder{}
	rec.attach(bus)

	var memMu sync.Mutex
	memMB := 500.0 // above the soft ceiling

	monitor := NewMonitor(MonitorConfig{
		SoftMemoryMB: 100,
		Interval:     10 * time.Millisecond,
	}, logger, nil, nil)
	monitor.readMemory = func() float64 {
		memMu.Lock()
		defer memMu.Unlock()
		return memMB
	}
	monitor.readCPUTime = func() (time.Duration, error) { return 0, nil }

	q := NewQueue(QueueConfig{MaxConcurrent: 2}, okRunner, bus, monitor, logger)
	q.Enqueue(urls(3))

	done := make(chan struct{})
	go func() {
		q.Run(context.Background())
		close(done)
	}()

	// While over the ceiling nothing is dispatched
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, rec.count(models.EventURLStarted))

	// Recovery resumes dispatch and the queue drains
	memMu.Lock()
	memMB = 10
	memMu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not resume after backpressure cleared")
	}
	assert.Equal(t, 3, rec.count(models.EventURLStarted))
}
