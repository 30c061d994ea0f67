package elevator

import (
	"slices"
	"sort"
)

// Job is an admitted request tagged with its admission sequence number.
// Job은 승인 순번이 붙은 요청입니다.
type Job struct {
	Request
	Seq      uint64
	PickedUp bool // 승객 탑승 완료, 재배치 후에도 출발 층으로 돌아가지 않음
}

func (j Job) less(o Job) bool {
	if j.Destination != o.Destination {
		return j.Destination < o.Destination
	}
	return j.Seq < o.Seq
}

// jobQueue keeps jobs sorted by (destination, seq).
// With collapse set, the key is the destination alone and an insert
// onto an existing destination is rejected.
type jobQueue struct {
	jobs     []Job
	collapse bool
}

func newJobQueue(collapse bool) *jobQueue {
	return &jobQueue{collapse: collapse}
}

func (q *jobQueue) len() int {
	return len(q.jobs)
}

// insert adds j in order. It returns false if j was collapsed away.
func (q *jobQueue) insert(j Job) bool {
	if q.collapse {
		i := sort.Search(len(q.jobs), func(i int) bool {
			return q.jobs[i].Destination >= j.Destination
		})
		if i < len(q.jobs) && q.jobs[i].Destination == j.Destination {
			return false
		}
	}

	i := sort.Search(len(q.jobs), func(i int) bool {
		return !q.jobs[i].less(j)
	})
	q.jobs = slices.Insert(q.jobs, i, j)
	return true
}

func (q *jobQueue) peekFirst() (Job, bool) {
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	return q.jobs[0], true
}

func (q *jobQueue) peekLast() (Job, bool) {
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	return q.jobs[len(q.jobs)-1], true
}

func (q *jobQueue) popFirst() (Job, bool) {
	j, ok := q.peekFirst()
	if ok {
		q.jobs = slices.Delete(q.jobs, 0, 1)
	}
	return j, ok
}

func (q *jobQueue) popLast() (Job, bool) {
	j, ok := q.peekLast()
	if ok {
		q.jobs = q.jobs[:len(q.jobs)-1]
	}
	return j, ok
}

// drainInto moves every job into dst and leaves q empty.
// The two queues never share storage afterwards.
func (q *jobQueue) drainInto(dst *jobQueue) {
	for _, j := range q.jobs {
		dst.insert(j)
	}
	q.jobs = nil
}

// requests returns an ordered copy of the queued requests.
func (q *jobQueue) requests() []Request {
	out := make([]Request, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Request)
	}
	return out
}
