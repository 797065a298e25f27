package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signsmith/internal/imagegen"
	"signsmith/internal/metrics"
)

// FullError is returned by Submit when the queue is at capacity. Callers
// should back off and resubmit; the queue never retries on their behalf.
type FullError struct {
	Size int
	Max  int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("queue is full (%d/%d)", e.Size, e.Max)
}

// ProcessFunc executes one job. It receives a copy of the job and a progress
// reporter bound to the job's id. Errors mark the job failed without stopping
// the worker.
type ProcessFunc func(job Job, progress func(step, total int)) (map[string]any, error)

// Queue is a bounded FIFO of generation jobs drained by a single worker
// goroutine. Capacity bounds pending items only: the job currently being
// processed has already left the channel. Admission, registry insert and
// enqueue happen under one mutex, so a registered job always holds a queue
// slot and a full queue rejects before any record is created.
type Queue struct {
	maxSize     int
	stopTimeout time.Duration
	process     ProcessFunc
	logger      zerolog.Logger

	ch chan *Job

	mu             sync.Mutex
	jobs           map[string]*Job
	current        string
	running        bool
	stopCh         chan struct{}
	done           chan struct{}
	totalProcessed int
}

// StatusView is the queue-level snapshot reported to clients.
type StatusView struct {
	Running        bool   `json:"running"`
	QueueSize      int    `json:"queue_size"`
	MaxSize        int    `json:"max_size"`
	CurrentItem    string `json:"current_item,omitempty"`
	TotalProcessed int    `json:"total_processed"`
}

// New constructs a stopped queue. Call Start to launch the worker.
func New(maxSize int, stopTimeout time.Duration, process ProcessFunc, logger zerolog.Logger) (*Queue, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("queue: max size must be at least 1, got %d", maxSize)
	}
	if process == nil {
		return nil, fmt.Errorf("queue: process func is required")
	}
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &Queue{
		maxSize:     maxSize,
		stopTimeout: stopTimeout,
		process:     process,
		logger:      logger,
		ch:          make(chan *Job, maxSize),
		jobs:        make(map[string]*Job),
	}, nil
}

// Start launches the worker goroutine. Idempotent. If a previous Stop timed
// out with a generation still in flight, the new worker waits for that loop
// to exit before taking its first job, so at most one job is ever processing.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	prev := q.done
	q.stopCh = make(chan struct{})
	q.done = make(chan struct{})
	stopCh, done := q.stopCh, q.done
	go func() {
		if prev != nil {
			select {
			case <-prev:
			case <-stopCh:
				close(done)
				return
			}
		}
		q.workerLoop(stopCh, done)
	}()
	q.logger.Info().Int("max_size", q.maxSize).Msg("queue: worker started")
}

// Stop signals the worker and waits up to the configured stop timeout for it
// to exit. If a generation is still in flight when the timeout elapses, Stop
// returns anyway; the job finishes into the registry later.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.logger.Info().Msg("queue: worker stopped")
	case <-time.After(q.stopTimeout):
		q.logger.Warn().Dur("timeout", q.stopTimeout).Msg("queue: worker still busy, not waiting")
	}
}

// Submit enqueues a new pending job built from the request. It never blocks:
// a full queue fails immediately with *FullError.
func (q *Queue) Submit(req imagegen.GenerateRequest) (Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := len(q.ch)
	if size >= q.maxSize {
		return Snapshot{}, &FullError{Size: size, Max: q.maxSize}
	}

	job := &Job{
		ID:         uuid.NewString(),
		Request:    req,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		TotalSteps: req.Steps,
	}
	q.jobs[job.ID] = job
	// Cannot block: submitters serialize on q.mu and the capacity check
	// passed, while the worker only ever drains.
	q.ch <- job

	metrics.SetQueueDepth(len(q.ch), q.maxSize)
	q.logger.Debug().Str("item_id", job.ID).Msg("queue: item submitted")
	return job.snapshot(), nil
}

// Get returns a snapshot of the job, or false if the id is unknown.
func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// Result returns the job's result payload, or false when the job is unknown
// or has not completed.
func (q *Queue) Result(id string) (map[string]any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Result == nil {
		return nil, false
	}
	return job.Result, true
}

// Cancel marks a still-pending job cancelled. Jobs that have started cannot
// be interrupted.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		return false
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	return true
}

// SetProgress updates a job's progress counters. Safe to call from the
// generation progress callback while the worker holds the job.
func (q *Queue) SetProgress(id string, step, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[id]; ok {
		job.Progress = step
		job.TotalSteps = total
	}
}

// RemoveOlderThan deletes terminal jobs whose completion is older than age
// and reports how many were removed.
func (q *Queue) RemoveOlderThan(age time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := time.Now().Add(-age)
	removed := 0
	for id, job := range q.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// Status reports the queue snapshot used by /queue and /health.
func (q *Queue) Status() StatusView {
	q.mu.Lock()
	defer q.mu.Unlock()
	return StatusView{
		Running:        q.running,
		QueueSize:      len(q.ch),
		MaxSize:        q.maxSize,
		CurrentItem:    q.current,
		TotalProcessed: q.totalProcessed,
	}
}

func (q *Queue) workerLoop(stopCh, done chan struct{}) {
	defer close(done)
	for {
		// Stop takes priority over buffered jobs: once signalled, no new
		// job may start even if the channel still holds work.
		select {
		case <-stopCh:
			return
		default:
		}
		select {
		case <-stopCh:
			return
		case job := <-q.ch:
			q.runJob(job)
		}
	}
}

func (q *Queue) runJob(job *Job) {
	q.mu.Lock()
	if job.Status != StatusPending {
		// Cancelled while queued.
		q.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	q.current = job.ID
	snapshot := *job
	metrics.SetQueueDepth(len(q.ch), q.maxSize)
	q.mu.Unlock()

	q.logger.Info().Str("item_id", job.ID).Msg("queue: processing item")

	result, err := q.invoke(snapshot)

	q.mu.Lock()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
	}
	end := time.Now()
	job.CompletedAt = &end
	q.current = ""
	q.totalProcessed++
	q.mu.Unlock()

	if err != nil {
		q.logger.Error().Err(err).Str("item_id", job.ID).Msg("queue: item failed")
	} else {
		q.logger.Info().Str("item_id", job.ID).Dur("took", end.Sub(now)).Msg("queue: item completed")
	}
}

// invoke is the isolation boundary around the processing callback: a failing
// or panicking job must never take the worker down with it.
func (q *Queue) invoke(job Job) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panic: %v", r)
		}
	}()
	progress := func(step, total int) {
		q.SetProgress(job.ID, step, total)
	}
	return q.process(job, progress)
}
