package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signsmith/internal/imagegen"
)

func testRequest() imagegen.GenerateRequest {
	return imagegen.GenerateRequest{Prompt: "storefront sign", Width: 512, Height: 512, Steps: 10, GuidanceScale: 7.5}
}

// gate lets a test hold the worker inside the processing callback.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) process(job Job, progress func(step, total int)) (map[string]any, error) {
	g.entered <- job.ID
	<-g.release
	return map[string]any{"id": job.ID}, nil
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, time.Second, func(Job, func(int, int)) (map[string]any, error) { return nil, nil }, zerolog.Nop()); err == nil {
		t.Fatal("New() accepted max size 0")
	}
	if _, err := New(1, time.Second, nil, zerolog.Nop()); err == nil {
		t.Fatal("New() accepted nil process func")
	}
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	g := newGate()
	q, err := New(1, time.Second, g.process, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	q.Start()
	defer func() {
		close(g.release)
		q.Stop()
	}()

	first, err := q.Submit(testRequest())
	if err != nil {
		t.Fatalf("first Submit() error: %v", err)
	}

	// Wait for the worker to pull the first job so the slot frees up.
	select {
	case id := <-g.entered:
		if id != first.ID {
			t.Fatalf("worker picked up %s, want %s", id, first.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started first job")
	}

	// With max_size=1 and one job processing, one more fits as pending.
	if _, err := q.Submit(testRequest()); err != nil {
		t.Fatalf("second Submit() error: %v", err)
	}

	// Third must be rejected with a FullError carrying the sizes.
	_, err = q.Submit(testRequest())
	var full *FullError
	if !errors.As(err, &full) {
		t.Fatalf("third Submit() error = %v, want *FullError", err)
	}
	if full.Size != 1 || full.Max != 1 {
		t.Fatalf("FullError = %d/%d, want 1/1", full.Size, full.Max)
	}
}

func TestFullRejectionCreatesNoRecord(t *testing.T) {
	g := newGate()
	q, _ := New(1, time.Second, g.process, zerolog.Nop())
	q.Start()
	defer func() {
		close(g.release)
		q.Stop()
	}()

	first, _ := q.Submit(testRequest())
	<-g.entered
	q.Submit(testRequest())
	if _, err := q.Submit(testRequest()); err == nil {
		t.Fatal("expected full queue rejection")
	}

	q.mu.Lock()
	n := len(q.jobs)
	q.mu.Unlock()
	if n != 2 {
		t.Fatalf("registry holds %d jobs after rejection, want 2", n)
	}
	if _, ok := q.Get(first.ID); !ok {
		t.Fatalf("accepted job %s missing from registry", first.ID)
	}
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	started := make(chan struct{}, 8)

	q, _ := New(8, time.Second, func(job Job, progress func(int, int)) (map[string]any, error) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		started <- struct{}{}
		return nil, nil
	}, zerolog.Nop())

	var want []string
	for i := 0; i < 4; i++ {
		snap, err := q.Submit(testRequest())
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		want = append(want, snap.ID)
	}

	q.Start()
	defer q.Stop()
	for i := 0; i < 4; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d never ran", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("run order %v, want %v", order, want)
		}
	}
}

func TestFailureDoesNotStopWorker(t *testing.T) {
	calls := make(chan string, 4)
	q, _ := New(4, time.Second, func(job Job, progress func(int, int)) (map[string]any, error) {
		calls <- job.ID
		if job.Request.Prompt == "boom" {
			return nil, errors.New("model exploded")
		}
		return map[string]any{"ok": true}, nil
	}, zerolog.Nop())
	q.Start()
	defer q.Stop()

	bad, _ := q.Submit(imagegen.GenerateRequest{Prompt: "boom", Steps: 5})
	good, _ := q.Submit(testRequest())

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stalled")
		}
	}

	waitTerminal := func(id string) Snapshot {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if snap, ok := q.Get(id); ok && snap.Status.Terminal() {
				return snap
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("job %s never reached a terminal state", id)
		return Snapshot{}
	}

	if snap := waitTerminal(bad.ID); snap.Status != StatusFailed || snap.Error == "" {
		t.Fatalf("failed job snapshot = %+v", snap)
	}
	if snap := waitTerminal(good.ID); snap.Status != StatusCompleted {
		t.Fatalf("good job status = %s, want completed", snap.Status)
	}
}

func TestPanicIsIsolated(t *testing.T) {
	q, _ := New(2, time.Second, func(job Job, progress func(int, int)) (map[string]any, error) {
		if job.Request.Prompt == "panic" {
			panic("cuda out of memory")
		}
		return map[string]any{}, nil
	}, zerolog.Nop())
	q.Start()
	defer q.Stop()

	bad, _ := q.Submit(imagegen.GenerateRequest{Prompt: "panic", Steps: 5})
	good, _ := q.Submit(testRequest())

	deadline := time.Now().Add(2 * time.Second)
	for {
		badSnap, _ := q.Get(bad.ID)
		goodSnap, _ := q.Get(good.ID)
		if badSnap.Status.Terminal() && goodSnap.Status.Terminal() {
			if badSnap.Status != StatusFailed {
				t.Fatalf("panicking job status = %s, want failed", badSnap.Status)
			}
			if goodSnap.Status != StatusCompleted {
				t.Fatalf("following job status = %s, want completed", goodSnap.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs not terminal: %s / %s", badSnap.Status, goodSnap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResultOnlyAfterCompletion(t *testing.T) {
	g := newGate()
	q, _ := New(2, time.Second, g.process, zerolog.Nop())
	q.Start()
	defer q.Stop()

	snap, _ := q.Submit(testRequest())
	<-g.entered

	if _, ok := q.Result(snap.ID); ok {
		t.Fatal("Result() returned payload for a processing job")
	}
	close(g.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if res, ok := q.Result(snap.ID); ok {
			if res["id"] != snap.ID {
				t.Fatalf("result payload = %v", res)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("result never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	g := newGate()
	q, _ := New(2, time.Second, g.process, zerolog.Nop())
	q.Start()
	defer func() {
		close(g.release)
		q.Stop()
	}()

	running, _ := q.Submit(testRequest())
	<-g.entered
	pending, _ := q.Submit(testRequest())

	if q.Cancel(running.ID) {
		t.Fatal("Cancel() interrupted a processing job")
	}
	if !q.Cancel(pending.ID) {
		t.Fatal("Cancel() refused a pending job")
	}
	snap, _ := q.Get(pending.ID)
	if snap.Status != StatusCancelled {
		t.Fatalf("cancelled job status = %s", snap.Status)
	}
	if q.Cancel("nope") {
		t.Fatal("Cancel() succeeded for an unknown id")
	}
}

func TestProgressUpdates(t *testing.T) {
	done := make(chan struct{})
	q, _ := New(2, time.Second, func(job Job, progress func(int, int)) (map[string]any, error) {
		progress(3, 10)
		close(done)
		return map[string]any{}, nil
	}, zerolog.Nop())
	q.Start()
	defer q.Stop()

	snap, _ := q.Submit(testRequest())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	deadline := time.Now().Add(time.Second)
	for {
		got, _ := q.Get(snap.ID)
		if got.Progress == 3 && got.TotalSteps == 10 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress = %d/%d, want 3/10", got.Progress, got.TotalSteps)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemoveOlderThan(t *testing.T) {
	q, _ := New(2, time.Second, func(Job, func(int, int)) (map[string]any, error) { return nil, nil }, zerolog.Nop())

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	q.jobs["old"] = &Job{ID: "old", Status: StatusCompleted, CompletedAt: &old}
	q.jobs["recent"] = &Job{ID: "recent", Status: StatusCompleted, CompletedAt: &recent}
	q.jobs["stuck"] = &Job{ID: "stuck", Status: StatusProcessing}

	if removed := q.RemoveOlderThan(time.Hour); removed != 1 {
		t.Fatalf("RemoveOlderThan() = %d, want 1", removed)
	}
	if _, ok := q.Get("old"); ok {
		t.Fatal("old terminal job survived cleanup")
	}
	if _, ok := q.Get("recent"); !ok {
		t.Fatal("recent job was removed")
	}
	if _, ok := q.Get("stuck"); !ok {
		t.Fatal("non-terminal job was removed")
	}
}

func TestStopReturnsWithinTimeout(t *testing.T) {
	g := newGate()
	q, _ := New(1, 200*time.Millisecond, g.process, zerolog.Nop())
	q.Start()

	q.Submit(testRequest())
	<-g.entered

	start := time.Now()
	q.Stop()
	if took := time.Since(start); took > time.Second {
		t.Fatalf("Stop() blocked for %s with a 200ms timeout", took)
	}
	close(g.release)
}

// stepGate releases exactly one held job per send, unlike gate's broadcast.
type stepGate struct {
	entered chan string
	release chan struct{}
}

func newStepGate() *stepGate {
	return &stepGate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *stepGate) process(job Job, progress func(step, total int)) (map[string]any, error) {
	g.entered <- job.ID
	<-g.release
	return map[string]any{"id": job.ID}, nil
}

func TestNoNewJobStartsAfterStop(t *testing.T) {
	g := newGate()
	q, _ := New(5, 200*time.Millisecond, g.process, zerolog.Nop())
	q.Start()

	first, _ := q.Submit(testRequest())
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started first job")
	}

	var queued []string
	for i := 0; i < 4; i++ {
		snap, err := q.Submit(testRequest())
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		queued = append(queued, snap.ID)
	}

	// Stop returns on timeout with the first job still in flight and four
	// jobs buffered.
	q.Stop()

	close(g.release)

	// Join the stopped worker, then verify it exited without draining the
	// buffer.
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never exited after its job finished")
	}

	if snap, _ := q.Get(first.ID); snap.Status != StatusCompleted {
		t.Fatalf("in-flight job status = %s, want completed", snap.Status)
	}
	for _, id := range queued {
		snap, ok := q.Get(id)
		if !ok || snap.Status != StatusPending {
			t.Fatalf("queued job %s status = %s after stop, want pending", id, snap.Status)
		}
	}
	if st := q.Status(); st.TotalProcessed != 1 {
		t.Fatalf("total processed = %d after stop, want 1", st.TotalProcessed)
	}
}

func TestRestartWaitsForOrphanedWorker(t *testing.T) {
	g := newStepGate()
	q, _ := New(2, 100*time.Millisecond, g.process, zerolog.Nop())
	q.Start()

	first, _ := q.Submit(testRequest())
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started first job")
	}

	// Stop times out while the first job is in flight; restart and submit
	// another job.
	q.Stop()
	q.Start()
	second, _ := q.Submit(testRequest())

	// The new worker must not touch the second job while the orphaned loop
	// is still inside its generation.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		a, _ := q.Get(first.ID)
		b, _ := q.Get(second.ID)
		if a.Status == StatusProcessing && b.Status == StatusProcessing {
			t.Fatal("two jobs processing simultaneously")
		}
		if b.Status != StatusPending {
			t.Fatalf("second job status = %s while first still running", b.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Let the first job finish; the orphaned loop exits and the new worker
	// picks up the second job.
	g.release <- struct{}{}
	select {
	case id := <-g.entered:
		if id != second.ID {
			t.Fatalf("worker picked up %s, want %s", id, second.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second job never started after restart")
	}
	if snap, _ := q.Get(first.ID); snap.Status != StatusCompleted {
		t.Fatalf("first job status = %s, want completed", snap.Status)
	}

	g.release <- struct{}{}
	deadline = time.Now().Add(2 * time.Second)
	for {
		if snap, _ := q.Get(second.ID); snap.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second job never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	q.Stop()
}

func TestStatusCounters(t *testing.T) {
	q, _ := New(4, time.Second, func(Job, func(int, int)) (map[string]any, error) { return nil, nil }, zerolog.Nop())

	st := q.Status()
	if st.Running {
		t.Fatal("queue reports running before Start")
	}
	if st.MaxSize != 4 {
		t.Fatalf("max size = %d, want 4", st.MaxSize)
	}

	q.Start()
	defer q.Stop()
	snap, _ := q.Submit(testRequest())

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := q.Get(snap.ID)
		if got.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(time.Second)
	for {
		st = q.Status()
		if st.TotalProcessed == 1 && st.CurrentItem == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
