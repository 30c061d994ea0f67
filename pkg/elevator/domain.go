package elevator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/tiendc/go-deepcopy"
)

// --- Domain Entities & Value Objects ---

// Direction indicates the vertical movement vector.
// Direction은 수직 이동 벡터를 나타냅니다.
type Direction string

const (
	DirUp   Direction = "Up"
	DirDown Direction = "Down"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirUp {
		return DirDown
	}
	return DirUp
}

// OperatingState tells whether a sweep is active.
// OperatingState는 운행(스윕) 진행 여부를 나타냅니다.
type OperatingState string

const (
	StateIdle   OperatingState = "Idle"
	StateMoving OperatingState = "Moving"
)

// State machine events.
const (
	eventStart = "start" // Idle -> Moving
	eventPark  = "park"  // Moving -> Idle
)

// Request is one trip from Source to Destination.
// Request는 출발 층에서 목적 층까지의 한 번의 이동 요청입니다.
// It is a value: copy it freely, never mutate it.
type Request struct {
	ID          uuid.UUID
	Source      int
	Destination int
	Direction   Direction
}

// NewRequest builds a request and freezes its direction.
// Equal floors fall through to DirDown.
func NewRequest(source, destination int) Request {
	dir := DirDown
	if destination > source {
		dir = DirUp
	}
	return Request{
		ID:          uuid.New(),
		Source:      source,
		Destination: destination,
		Direction:   dir,
	}
}

func (r Request) String() string {
	return fmt.Sprintf("%d->%d (%s)", r.Source, r.Destination, r.Direction)
}

// Placement reports where admission put a request.
// Placement는 요청이 어느 작업 큐에 배치되었는지 나타냅니다.
type Placement int

const (
	PlacedCurrent     Placement = iota // 현재 스윕에 합류
	PlacedUpPending                    // 상향 대기 큐
	PlacedDownPending                  // 하향 대기 큐
	PlacedDropped                      // 동일 목적 층 중복으로 버려짐
)

func (p Placement) String() string {
	return [...]string{"Current", "UpPending", "DownPending", "Dropped"}[p]
}

// SweepOutcome is what happened at the end of a served job.
type SweepOutcome int

const (
	SweepContinues SweepOutcome = iota // current jobs remain
	SweepReversed                      // opposite pending queue loaded, direction flipped
	SweepRestarted                     // same-direction pending queue loaded
	SweepParked                        // nothing left, car is idle
)

func (o SweepOutcome) String() string {
	return [...]string{"Continues", "Reversed", "Restarted", "Parked"}[o]
}

// SchedulerConfig holds static configuration for the scheduling logic.
// SchedulerConfig는 스케줄링 로직을 위한 정적 설정입니다.
type SchedulerConfig struct {
	InitialFloor int

	// CollapseDuplicates makes every queue behave as a set keyed on the
	// destination floor only: a second request for a destination already
	// queued is dropped. Off by default, ties are broken by arrival order.
	CollapseDuplicates bool

	// OnStateChange runs inside every Idle/Moving transition.
	OnStateChange func(from, to OperatingState)
}

// Scheduler contains purely the scheduling logic for one car.
// Scheduler는 한 대의 엘리베이터에 대한 순수 스케줄링 로직을 포함합니다.
// No mutex, No channel, No time. The caller serializes access.
type Scheduler struct {
	Floor     int
	Direction Direction

	state       *fsm.FSM
	current     *jobQueue // 현재 스윕에서 처리 중인 작업
	upPending   *jobQueue // 다음 상향 스윕을 기다리는 작업
	downPending *jobQueue // 다음 하향 스윕을 기다리는 작업
	seq         uint64
}

// NewScheduler creates an idle scheduler heading up.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		Floor:       cfg.InitialFloor,
		Direction:   DirUp,
		current:     newJobQueue(cfg.CollapseDuplicates),
		upPending:   newJobQueue(cfg.CollapseDuplicates),
		downPending: newJobQueue(cfg.CollapseDuplicates),
	}

	callbacks := fsm.Callbacks{}
	if cfg.OnStateChange != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			cfg.OnStateChange(OperatingState(e.Src), OperatingState(e.Dst))
		}
	}

	s.state = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateIdle)}, Dst: string(StateMoving)},
			{Name: eventPark, Src: []string{string(StateMoving)}, Dst: string(StateIdle)},
		},
		callbacks,
	)
	return s
}

// State returns the current operating state.
func (s *Scheduler) State() OperatingState {
	return OperatingState(s.state.Current())
}

func (s *Scheduler) transition(event string) {
	if !s.state.Can(event) {
		return
	}
	// Both events have a single source state, Can already rules out every error.
	_ = s.state.Event(context.Background(), event)
}

// Admit places a request into the current sweep or a pending queue.
// Admit은 요청을 현재 스윕 또는 대기 큐에 배치합니다. 항상 성공합니다.
func (s *Scheduler) Admit(req Request) Placement {
	s.seq++
	j := Job{Request: req, Seq: s.seq}

	if s.State() == StateIdle {
		s.transition(eventStart)
		s.Direction = req.Direction
		return s.place(s.current, PlacedCurrent, j)
	}

	if req.Direction != s.Direction {
		return s.deferJob(j)
	}

	switch {
	case s.Direction == DirUp && req.Destination < s.Floor:
		return s.place(s.upPending, PlacedUpPending, j)
	case s.Direction == DirDown && req.Destination > s.Floor:
		return s.place(s.downPending, PlacedDownPending, j)
	default:
		return s.place(s.current, PlacedCurrent, j)
	}
}

// deferJob files a job under the pending queue of its own direction.
func (s *Scheduler) deferJob(j Job) Placement {
	if j.Direction == DirUp {
		return s.place(s.upPending, PlacedUpPending, j)
	}
	return s.place(s.downPending, PlacedDownPending, j)
}

func (s *Scheduler) place(q *jobQueue, p Placement, j Job) Placement {
	if !q.insert(j) {
		return PlacedDropped
	}
	return p
}

// HasWork reports whether the current sweep has jobs left.
func (s *Scheduler) HasWork() bool {
	return s.current.len() > 0
}

// Next removes the most favorable job of the sweep:
// lowest destination heading up, highest heading down.
func (s *Scheduler) Next() (Job, bool) {
	if s.Direction == DirUp {
		return s.current.popFirst()
	}
	return s.current.popLast()
}

// FoldIn checks, mid-traversal, whether a queued job should be served
// before cur. If so cur goes back into the sweep and reordered is true.
// requeued is false when a collapsing queue already held cur's destination
// and cur was dropped on the way back in.
// FoldIn은 이동 중에 더 유리한 작업이 있는지 확인합니다.
func (s *Scheduler) FoldIn(cur Job) (reordered, requeued bool) {
	if s.current.len() == 0 {
		return false, false
	}

	if s.Direction == DirUp {
		first, _ := s.current.peekFirst()
		if first.Destination < cur.Destination {
			return true, s.current.insert(cur)
		}
		return false, false
	}

	last, _ := s.current.peekLast()
	if last.Destination > cur.Destination {
		return true, s.current.insert(cur)
	}
	return false, false
}

// AdvanceSweep runs after a job is done. Once the sweep is exhausted it
// loads the opposite pending queue, then the same-direction one, and
// parks the car when both are empty.
// AdvanceSweep은 작업 완료 후 다음 스윕을 준비합니다.
func (s *Scheduler) AdvanceSweep() SweepOutcome {
	if s.current.len() > 0 {
		return SweepContinues
	}

	opposite, same := s.downPending, s.upPending
	if s.Direction == DirDown {
		opposite, same = s.upPending, s.downPending
	}

	switch {
	case opposite.len() > 0:
		opposite.drainInto(s.current)
		s.Direction = s.Direction.Opposite()
		return SweepReversed
	case same.len() > 0:
		same.drainInto(s.current)
		return SweepRestarted
	default:
		s.transition(eventPark)
		return SweepParked
	}
}

// CurrentJobs returns the active sweep in destination order.
func (s *Scheduler) CurrentJobs() []Request { return s.current.requests() }

// UpPendingJobs returns deferred up requests in destination order.
func (s *Scheduler) UpPendingJobs() []Request { return s.upPending.requests() }

// DownPendingJobs returns deferred down requests in destination order.
func (s *Scheduler) DownPendingJobs() []Request { return s.downPending.requests() }

// sweepState is the plain-data part of a Scheduler used for dry runs.
type sweepState struct {
	Direction   Direction
	Current     []Job
	UpPending   []Job
	DownPending []Job
}

// Plan predicts the order in which the queued requests will be served if
// nothing else is admitted. The job already being served is not included.
// Plan은 추가 요청이 없다고 가정했을 때의 처리 순서를 예측합니다.
func (s *Scheduler) Plan() ([]Request, error) {
	live := sweepState{
		Direction:   s.Direction,
		Current:     s.current.jobs,
		UpPending:   s.upPending.jobs,
		DownPending: s.downPending.jobs,
	}

	var sim sweepState
	if err := deepcopy.Copy(&sim, &live); err != nil {
		return nil, fmt.Errorf("copy sweep state: %w", err)
	}

	var order []Request
	for {
		for len(sim.Current) > 0 {
			if sim.Direction == DirUp {
				order = append(order, sim.Current[0].Request)
				sim.Current = sim.Current[1:]
			} else {
				last := len(sim.Current) - 1
				order = append(order, sim.Current[last].Request)
				sim.Current = sim.Current[:last]
			}
		}

		opposite, same := &sim.DownPending, &sim.UpPending
		if sim.Direction == DirDown {
			opposite, same = &sim.UpPending, &sim.DownPending
		}
		switch {
		case len(*opposite) > 0:
			sim.Current, *opposite = *opposite, nil
			sim.Direction = sim.Direction.Opposite()
		case len(*same) > 0:
			sim.Current, *same = *same, nil
		default:
			return order, nil
		}
	}
}
