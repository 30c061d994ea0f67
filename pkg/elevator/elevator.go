// Package elevator implements a concurrent dispatch simulator for a single elevator car.
// 이 패키지는 단일 엘리베이터 카의 스레드 안전(Thread-safe)한 배차 시뮬레이터를 구현합니다.
// SCAN 방식의 스윕 순서로 요청을 처리하고, 반대 방향 요청은 대기 큐에 보관합니다.
package elevator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyStarted is returned when the dispatch loop is started twice.
var ErrAlreadyStarted = errors.New("elevator: dispatch loop already started")

const defaultEventBuffer = 1000

// EventType represents the category of an elevator event.
// EventType는 엘리베이터 이벤트의 카테고리를 나타냅니다.
type EventType string

const (
	EventFloorChange     EventType = "FloorChange"
	EventDirectionChange EventType = "DirectionChange"
	EventStateChange     EventType = "StateChange"
	EventJobAdmitted     EventType = "JobAdmitted"
	EventPickup          EventType = "Pickup"
	EventServed          EventType = "Served"
	EventReordered       EventType = "Reordered"
)

// Event carries the state change information.
// Event는 시스템 내에서 발생한 상태 변화 정보를 담고 있습니다.
type Event struct {
	Type      EventType
	Payload   interface{}
	Timestamp time.Time
}

// StateChangePayload carries detail for operating state events.
type StateChangePayload struct {
	From OperatingState
	To   OperatingState
}

// AdmittedPayload carries detail for admission events.
// AdmittedPayload는 요청 승인 이벤트의 세부 정보를 담고 있습니다.
type AdmittedPayload struct {
	Request   Request
	Placement Placement
}

// ReorderedPayload names the job put back and the floor where it happened.
type ReorderedPayload struct {
	Deferred Request
	Floor    int
}

// SleepFunc stands in for the time it takes to travel one floor.
// It must return early with an error once ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds immutable configuration parameters.
// Config는 시스템 시작 시 설정되며, 런타임 중에 변경되지 않습니다.
type Config struct {
	ID                 string
	InitialFloor       int           // 초기 층
	TravelTime         time.Duration // 한 층 이동 시간
	EventBuffer        int           // 이벤트 채널 버퍼 크기
	CollapseDuplicates bool          // 동일 목적 층 요청을 하나로 합침

	// Sleep simulates travel between floors. Defaults to a timer.
	Sleep SleepFunc

	// OnFloor is called once per floor reached, outside the lock.
	OnFloor func(floor int)

	Logger *slog.Logger
}

// Elevator is the dispatch engine.
// Elevator의 모든 상태 변경은 Mutex로 보호되며, 변경 사항은 Event 채널로 전파됩니다.
type Elevator struct {
	mu     sync.Mutex
	cond   *sync.Cond // 작업 대기/재개 (mu와 함께 사용)
	Config Config

	// --- State (가변 상태) ---
	sched *Scheduler

	// --- Loop Control ---
	started bool
	done    chan struct{}

	// --- Observability ---
	logger            *slog.Logger
	eventCh           chan Event // 외부 통신용 이벤트 채널
	droppedEventCount uint64     // 버퍼 오버플로우로 버려진 이벤트 수
}

// New initializes a new Elevator instance with strict validation.
// 잘못된 설정이 감지되면 즉시 에러를 반환합니다 (Fail Fast).
func New(config Config) (*Elevator, error) {
	if config.TravelTime < 0 {
		return nil, fmt.Errorf("invalid config: TravelTime (%s) is negative", config.TravelTime)
	}
	if config.EventBuffer < 0 {
		return nil, fmt.Errorf("invalid config: EventBuffer (%d) is negative", config.EventBuffer)
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = defaultEventBuffer
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Elevator{
		Config:  config,
		done:    make(chan struct{}),
		eventCh: make(chan Event, config.EventBuffer),
		logger:  logger.With("id", config.ID),
	}
	e.cond = sync.NewCond(&e.mu)
	e.sched = NewScheduler(SchedulerConfig{
		InitialFloor:       config.InitialFloor,
		CollapseDuplicates: config.CollapseDuplicates,
		OnStateChange: func(from, to OperatingState) {
			// Transitions only fire from Admit and AdvanceSweep, both under e.mu.
			e.logger.Info("Operating state changed", "from", from, "to", to)
			e.publishEvent(EventStateChange, StateChangePayload{From: from, To: to})
		},
	})

	e.logger.Info("Elevator initialized",
		"init_floor", config.InitialFloor,
		"travel_time", config.TravelTime,
		"collapse_duplicates", config.CollapseDuplicates,
	)

	return e, nil
}

// Floor returns the current floor safely.
// Floor은 현재 층을 안전하게 반환합니다.
func (e *Elevator) Floor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Floor
}

// Direction returns the current sweep direction safely.
// Direction은 현재 스윕 방향을 안전하게 반환합니다.
func (e *Elevator) Direction() Direction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Direction
}

// State returns the current operating state safely.
func (e *Elevator) State() OperatingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.State()
}

// DroppedEventCount returns diagnostic metric for channel health.
// DroppedEventCount는 버퍼 오버플로우로 버려진 이벤트 수를 안전하게 반환합니다.
func (e *Elevator) DroppedEventCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.droppedEventCount
}

// Events returns the read-only channel for state change notifications.
// Events는 상태 변경 알림을 위한 읽기 전용 채널을 반환합니다.
func (e *Elevator) Events() <-chan Event {
	return e.eventCh
}

// Done is closed once the dispatch loop has returned.
func (e *Elevator) Done() <-chan struct{} {
	return e.done
}

// publishEvent sends an event to the channel without blocking logic.
// 채널이 가득 차면 이벤트를 버리고 메트릭을 증가시킵니다. e.mu를 잡은 상태에서 호출합니다.
func (e *Elevator) publishEvent(eventType EventType, payload interface{}) {
	event := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	select {
	case e.eventCh <- event:
	default:
		e.droppedEventCount++
		// Log rarely to avoid disk I/O flooding
		if e.droppedEventCount%100 == 1 {
			e.logger.Error("Event Channel Saturated", "dropped", e.droppedEventCount, "type", eventType)
		}
	}
}

// syncDirection publishes a direction event if prev differs from the current one.
func (e *Elevator) syncDirection(prev Direction) {
	if e.sched.Direction != prev {
		e.publishEvent(EventDirectionChange, e.sched.Direction)
	}
}

// Submit builds a request and admits it. It never fails.
// Submit은 요청을 생성하고 승인합니다.
func (e *Elevator) Submit(source, destination int) Request {
	req := NewRequest(source, destination)
	e.AddJob(req)
	return req
}

// AddJob admits a request and wakes the dispatch loop.
// AddJob은 요청을 작업 큐에 넣고 배차 루프를 깨웁니다.
func (e *Elevator) AddJob(req Request) Placement {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.sched.Direction
	placement := e.sched.Admit(req)
	e.syncDirection(prev)

	if placement == PlacedDropped {
		e.logger.Warn("Request collapsed into existing destination", "request", req)
	} else {
		e.logger.Info("Request admitted", "request", req, "placement", placement, "floor", e.sched.Floor)
	}
	e.publishEvent(EventJobAdmitted, AdmittedPayload{Request: req, Placement: placement})

	e.cond.Broadcast()
	return placement
}

// Start runs the dispatch loop in the background and returns immediately.
// Start는 배차 루프를 백그라운드에서 실행합니다. ctx가 취소되면 루프가 종료됩니다.
func (e *Elevator) Start(ctx context.Context) error {
	if err := e.claim(); err != nil {
		return err
	}
	go func() {
		if err := e.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Dispatch loop error", "error", err)
		}
	}()
	return nil
}

// Run executes the dispatch loop until ctx is cancelled and then returns ctx.Err().
// Run은 배차 루프를 실행합니다. 취소는 정상 종료로 간주됩니다.
func (e *Elevator) Run(ctx context.Context) error {
	if err := e.claim(); err != nil {
		return err
	}
	return e.run(ctx)
}

func (e *Elevator) claim() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true
	return nil
}

func (e *Elevator) run(ctx context.Context) error {
	defer close(e.done)
	e.logger.Info("Dispatch loop started")

	// Wake the loop if it is parked on the condition when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	for {
		e.mu.Lock()
		for !e.sched.HasWork() && ctx.Err() == nil {
			e.logger.Debug("💤 Waiting for jobs", "floor", e.sched.Floor)
			e.cond.Wait()
		}
		if err := ctx.Err(); err != nil {
			e.mu.Unlock()
			e.logger.Info("Dispatch loop stopping (context cancelled)")
			return err
		}
		j, _ := e.sched.Next()
		e.mu.Unlock()

		if err := e.process(ctx, j); err != nil {
			e.logger.Info("Dispatch loop stopping (context cancelled)", "lost_request", j.Request)
			return err
		}

		e.mu.Lock()
		prev := e.sched.Direction
		outcome := e.sched.AdvanceSweep()
		e.syncDirection(prev)
		if outcome != SweepContinues {
			e.logger.Info("🧭 Sweep finished", "outcome", outcome, "direction", e.sched.Direction, "floor", e.sched.Floor)
		}
		e.mu.Unlock()
	}
}

// process carries one job from its source to its destination.
// A reorder puts the job back into the sweep and ends processing early.
func (e *Elevator) process(ctx context.Context, j Job) error {
	e.logger.Debug("🚅 Serving request", "request", j.Request)

	// A job put back by a fold-in already has its passenger aboard.
	if !j.PickedUp {
		if _, err := e.travel(ctx, j.Source, nil); err != nil {
			return err
		}
		e.mu.Lock()
		e.publishEvent(EventPickup, j.Request)
		e.mu.Unlock()
		j.PickedUp = true
	}

	reordered, err := e.travel(ctx, j.Destination, &j)
	if err != nil || reordered {
		return err
	}

	e.mu.Lock()
	e.logger.Info("Request served", "request", j.Request, "floor", e.sched.Floor)
	e.publishEvent(EventServed, j.Request)
	e.mu.Unlock()
	return nil
}

// travel steps the car one floor at a time until it reaches target.
// With cur set, the fold-in check runs after every intermediate floor and
// a reorder stops the traversal.
func (e *Elevator) travel(ctx context.Context, target int, cur *Job) (bool, error) {
	for {
		e.mu.Lock()
		floor := e.sched.Floor
		e.mu.Unlock()

		if floor == target {
			return false, nil
		}

		next := floor + 1
		if target < floor {
			next = floor - 1
		}

		if err := e.Config.Sleep(ctx, e.Config.TravelTime); err != nil {
			return false, err
		}

		e.mu.Lock()
		e.sched.Floor = next
		e.publishEvent(EventFloorChange, next)
		reordered, requeued := false, false
		if cur != nil && next != target {
			reordered, requeued = e.sched.FoldIn(*cur)
		}
		if reordered {
			e.logger.Info("Request reordered behind a closer one", "request", cur.Request, "floor", next)
			e.publishEvent(EventReordered, ReorderedPayload{Deferred: cur.Request, Floor: next})
			if !requeued {
				e.logger.Warn("Reordered request collapsed into existing destination", "request", cur.Request)
			}
		} else {
			e.logger.Debug("Reached floor", "floor", next)
		}
		e.mu.Unlock()

		if e.Config.OnFloor != nil {
			e.Config.OnFloor(next)
		}
		if reordered {
			return true, nil
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
