package dirsize

import "errors"

// errQueueFull is returned by push when the queue is at capacity. The
// coordinator checks the pool's free-worker count before submitting, so under
// correct use this is not hit, but the condition is handled rather than
// assumed impossible.
var errQueueFull = errors.New("job queue full")

// queueCapacity is the fixed size of the pool's job inbox.
const queueCapacity = 64

// jobQueue is a fixed-capacity circular buffer of jobs. It has no internal
// locking; the worker pool's mutex guards every access.
type jobQueue struct {
	jobs  [queueCapacity]*job
	head  int
	count int
}

// push appends j, failing with errQueueFull when at capacity.
func (q *jobQueue) push(j *job) error {
	if q.count == queueCapacity {
		return errQueueFull
	}

	q.jobs[(q.head+q.count)%queueCapacity] = j
	q.count++

	return nil
}

// pop removes and returns the oldest job, or ok=false when empty.
func (q *jobQueue) pop() (*job, bool) {
	if q.count == 0 {
		return nil, false
	}

	j := q.jobs[q.head]
	q.jobs[q.head] = nil
	q.head = (q.head + 1) % queueCapacity
	q.count--

	return j, true
}

// len reports the number of queued jobs.
func (q *jobQueue) len() int {
	return q.count
}
