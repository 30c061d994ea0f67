package elevator

// Snapshot is a point-in-time copy of the controller state.
// Snapshot은 컨트롤러 상태의 특정 시점 복사본입니다.
type Snapshot struct {
	Floor           int
	Direction       Direction
	State           OperatingState
	CurrentJobs     []Request
	UpPendingJobs   []Request
	DownPendingJobs []Request
	DroppedEvents   uint64
}

// Snapshot returns a complete snapshot of the elevator status.
// Snapshot은 엘리베이터의 전체 상태 스냅샷을 반환합니다.
func (e *Elevator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Floor:           e.sched.Floor,
		Direction:       e.sched.Direction,
		State:           e.sched.State(),
		CurrentJobs:     e.sched.CurrentJobs(),
		UpPendingJobs:   e.sched.UpPendingJobs(),
		DownPendingJobs: e.sched.DownPendingJobs(),
		DroppedEvents:   e.droppedEventCount,
	}
}

// Plan returns the predicted service order of every queued request,
// assuming nothing else is admitted.
func (e *Elevator) Plan() ([]Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, err := e.sched.Plan()
	if err != nil {
		e.logger.Error("Failed to plan sweep", "error", err)
		return nil, err
	}
	return plan, nil
}
