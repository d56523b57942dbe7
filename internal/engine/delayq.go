package engine

import (
	"container/heap"
	"time"

	"github.com/benbjohnson/clock"
)

// delayQueue is the explicit delayed-task queue behind tier delays and
// retry backoff. One clock timer is kept armed for the earliest due
// task; the loop runs due tasks in (due, push-order) sequence, which
// keeps tier ordering deterministic under a mock clock.
type delayQueue struct {
	clk   clock.Clock
	timer *clock.Timer
	tasks taskHeap
	seq   uint64
}

type task struct {
	due time.Time
	seq uint64
	run func()
}

func newDelayQueue(clk clock.Clock) *delayQueue {
	t := clk.Timer(time.Hour)
	t.Stop()
	return &delayQueue{clk: clk, timer: t}
}

// C is the loop's wakeup channel.
func (q *delayQueue) C() <-chan time.Time { return q.timer.C }

func (q *delayQueue) push(due time.Time, run func()) {
	q.seq++
	heap.Push(&q.tasks, task{due: due, seq: q.seq, run: run})
	q.rearm()
}

// runDue executes every task whose due time has passed. Tasks may push
// new tasks (retries); those are honoured in the same call when already
// due.
func (q *delayQueue) runDue() {
	now := q.clk.Now()
	for len(q.tasks) > 0 && !q.tasks[0].due.After(now) {
		t := heap.Pop(&q.tasks).(task)
		t.run()
		now = q.clk.Now()
	}
	q.rearm()
}

func (q *delayQueue) rearm() {
	if len(q.tasks) == 0 {
		q.timer.Stop()
		return
	}
	d := q.tasks[0].due.Sub(q.clk.Now())
	if d < 0 {
		d = 0
	}
	q.timer.Reset(d)
}

func (q *delayQueue) stop() {
	q.timer.Stop()
	q.tasks = nil
}

func (q *delayQueue) pendingTasks() int { return len(q.tasks) }

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
