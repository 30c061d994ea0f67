package elevator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noDelay(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// stepper lets a test move the car one floor at a time.
type stepper struct {
	steps chan struct{}
	free  chan struct{}
}

func newStepper() *stepper {
	return &stepper{steps: make(chan struct{}), free: make(chan struct{})}
}

func (s *stepper) Sleep(ctx context.Context, _ time.Duration) error {
	select {
	case <-s.steps:
		return nil
	case <-s.free:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// step returns once the car has started waiting for the next floor.
func (s *stepper) step(t *testing.T) {
	t.Helper()
	select {
	case s.steps <- struct{}{}:
	case <-time.After(testTimeout):
		t.Fatal("car never waited for the next floor")
	}
}

func (s *stepper) release() {
	close(s.free)
}

func newTestElevator(t *testing.T, cfg Config) *Elevator {
	t.Helper()
	if cfg.Sleep == nil {
		cfg.Sleep = noDelay
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 1 << 15
	}
	cfg.Logger = quietLogger()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create elevator: %v", err)
	}
	return e
}

func start(t *testing.T, e *Elevator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
}

// collectUntilServed reads every event until n requests have been served.
func collectUntilServed(t *testing.T, e *Elevator, n int) []Event {
	t.Helper()
	var events []Event
	served := 0
	timeout := time.After(testTimeout)
	for served < n {
		select {
		case ev := <-e.Events():
			events = append(events, ev)
			if ev.Type == EventServed {
				served++
			}
		case <-timeout:
			t.Fatalf("Expected %d served requests, got %d", n, served)
		}
	}
	return events
}

// waitServed returns the first n served requests in order.
func waitServed(t *testing.T, e *Elevator, n int) []Request {
	t.Helper()
	return payloads(collectUntilServed(t, e, n), EventServed)
}

func payloads(events []Event, typ EventType) []Request {
	var out []Request
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev.Payload.(Request))
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{TravelTime: -time.Second, Logger: quietLogger()}); err == nil {
		t.Error("Expected error for negative travel time, got nil")
	}
	if _, err := New(Config{EventBuffer: -1, Logger: quietLogger()}); err == nil {
		t.Error("Expected error for negative event buffer, got nil")
	}

	e, err := New(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Expected defaults to be valid, got %v", err)
	}
	if cap(e.eventCh) != defaultEventBuffer {
		t.Errorf("Expected default event buffer %d, got %d", defaultEventBuffer, cap(e.eventCh))
	}
}

func TestElevator_SubmitIdleToMoving(t *testing.T) {
	e := newTestElevator(t, Config{})

	req := e.Submit(0, 5)
	if req.Direction != DirUp {
		t.Errorf("Expected direction Up, got %s", req.Direction)
	}
	if e.State() != StateMoving {
		t.Errorf("Expected state Moving, got %s", e.State())
	}
	if e.Direction() != DirUp {
		t.Errorf("Expected direction Up, got %s", e.Direction())
	}

	snap := e.Snapshot()
	if len(snap.CurrentJobs) != 1 || snap.CurrentJobs[0].ID != req.ID {
		t.Errorf("Expected the request in current jobs, got %v", snap.CurrentJobs)
	}
}

func TestElevator_ServesInSweepOrder(t *testing.T) {
	e := newTestElevator(t, Config{})
	for _, dst := range []int{5, 3, 8, 1} {
		e.Submit(0, dst)
	}
	start(t, e)

	served := waitServed(t, e, 4)
	if got := destinations(served); !equalInts(got, []int{1, 3, 5, 8}) {
		t.Errorf("Expected service order [1 3 5 8], got %v", got)
	}

	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
	if e.Floor() != 8 {
		t.Errorf("Expected car parked at 8, got %d", e.Floor())
	}
}

func TestElevator_SweepReversal(t *testing.T) {
	e := newTestElevator(t, Config{})
	e.Submit(0, 5)
	e.Submit(9, 2) // deferred, opposite direction
	e.Submit(8, 4) // deferred, opposite direction

	snap := e.Snapshot()
	if got := destinations(snap.DownPendingJobs); !equalInts(got, []int{2, 4}) {
		t.Fatalf("Expected down pending [2 4], got %v", got)
	}

	start(t, e)

	events := collectUntilServed(t, e, 3)
	if got := destinations(payloads(events, EventServed)); !equalInts(got, []int{5, 4, 2}) {
		t.Errorf("Expected service order [5 4 2], got %v", got)
	}
	var turns []Direction
	for _, ev := range events {
		if ev.Type == EventDirectionChange {
			turns = append(turns, ev.Payload.(Direction))
		}
	}
	if len(turns) != 1 || turns[0] != DirDown {
		t.Errorf("Expected a single turn Down, got %v", turns)
	}
	if got := payloads(events, EventPickup); len(got) != 3 {
		t.Errorf("Expected one pickup per request, got %v", got)
	}

	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
	if e.Direction() != DirDown {
		t.Errorf("Expected last sweep Down, got %s", e.Direction())
	}
}

func TestElevator_FoldInMidFlight(t *testing.T) {
	st := newStepper()
	var mu sync.Mutex
	var floors []int
	e := newTestElevator(t, Config{
		Sleep: st.Sleep,
		OnFloor: func(floor int) {
			mu.Lock()
			floors = append(floors, floor)
			mu.Unlock()
		},
	})
	far := e.Submit(0, 10)
	start(t, e)

	st.step(t)
	st.step(t)
	near := e.Submit(3, 6)
	st.release()

	events := collectUntilServed(t, e, 2)
	served := payloads(events, EventServed)
	if served[0].ID != near.ID || served[1].ID != far.ID {
		t.Errorf("Expected 6 served before 10, got %v", destinations(served))
	}

	// The reordered request keeps its passenger: no second pickup, no turn back.
	pickups := 0
	for _, r := range payloads(events, EventPickup) {
		if r.ID == far.ID {
			pickups++
		}
	}
	if pickups != 1 {
		t.Errorf("Expected far request picked up once, got %d", pickups)
	}

	mu.Lock()
	defer mu.Unlock()
	if !equalInts(floors, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("Expected a monotonic climb to 10, got %v", floors)
	}
}

func TestElevator_OnFloor(t *testing.T) {
	var mu sync.Mutex
	var floors []int
	e := newTestElevator(t, Config{
		InitialFloor: 2,
		OnFloor: func(floor int) {
			mu.Lock()
			floors = append(floors, floor)
			mu.Unlock()
		},
	})
	e.Submit(4, 1)
	start(t, e)
	waitServed(t, e, 1)

	mu.Lock()
	defer mu.Unlock()
	if !equalInts(floors, []int{3, 4, 3, 2, 1}) {
		t.Errorf("Expected floors [3 4 3 2 1], got %v", floors)
	}
}

func TestElevator_StopsWhenCancelled(t *testing.T) {
	// Scenario 1: suspended with nothing to do
	e := newTestElevator(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	cancel()
	select {
	case <-e.Done():
	case <-time.After(testTimeout):
		t.Fatal("Dispatch loop did not stop after cancel")
	}

	// Scenario 2: in the middle of a trip
	st := newStepper()
	e = newTestElevator(t, Config{Sleep: st.Sleep})
	ctx, cancel = context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	e.Submit(0, 5)
	st.step(t)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Dispatch loop did not stop mid-trip")
	}
}

func TestElevator_StartTwice(t *testing.T) {
	e := newTestElevator(t, Config{})
	start(t, e)

	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted from Start, got %v", err)
	}
	if err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted from Run, got %v", err)
	}
}

func TestElevator_NoLostRequests(t *testing.T) {
	e := newTestElevator(t, Config{})
	start(t, e)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				e.Submit((w*7+i*3)%15, (w*5+i*11)%15)
			}
		}(w)
	}
	wg.Wait()

	served := waitServed(t, e, workers*perWorker)
	seen := make(map[string]bool, len(served))
	for _, r := range served {
		if seen[r.ID.String()] {
			t.Fatalf("Request %s served twice", r)
		}
		seen[r.ID.String()] = true
	}

	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
	snap := e.Snapshot()
	if len(snap.CurrentJobs)+len(snap.UpPendingJobs)+len(snap.DownPendingJobs) != 0 {
		t.Errorf("Expected empty queues after draining, got %+v", snap)
	}
}

// Duplicate destinations are kept by default and collapsed on request.
func TestElevator_DuplicateDestinations(t *testing.T) {
	e := newTestElevator(t, Config{})
	first := e.Submit(0, 5)
	second := e.Submit(1, 5)
	start(t, e)

	served := waitServed(t, e, 2)
	if served[0].ID != first.ID || served[1].ID != second.ID {
		t.Errorf("Expected both requests served in arrival order, got %v", served)
	}

	e = newTestElevator(t, Config{CollapseDuplicates: true})
	e.Submit(0, 5)
	if p := e.AddJob(NewRequest(1, 5)); p != PlacedDropped {
		t.Errorf("Expected duplicate dropped, got %s", p)
	}
	start(t, e)
	waitServed(t, e, 1)
	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
}

func TestElevator_PlanMatchesService(t *testing.T) {
	e := newTestElevator(t, Config{})
	e.Submit(0, 7)
	e.Submit(0, 3)
	e.Submit(9, 2)
	e.Submit(8, 5)

	plan, err := e.Plan()
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	start(t, e)

	served := waitServed(t, e, len(plan))
	if !equalInts(destinations(served), destinations(plan)) {
		t.Errorf("Expected service order %v, got %v", destinations(plan), destinations(served))
	}
}

func TestElevator_DroppedEvents(t *testing.T) {
	e := newTestElevator(t, Config{EventBuffer: 1})
	for i := 1; i <= 5; i++ {
		e.Submit(0, i)
	}
	if e.DroppedEventCount() == 0 {
		t.Error("Expected dropped events with a saturated channel")
	}
	if snap := e.Snapshot(); snap.DroppedEvents != e.DroppedEventCount() {
		t.Errorf("Expected snapshot to report %d dropped events, got %d", e.DroppedEventCount(), snap.DroppedEvents)
	}
}
