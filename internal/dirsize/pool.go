package dirsize

import "sync"

// job is a short-lived handoff record for one subtree. The path slice is
// borrowed from the coordinator's path buffer; the claiming worker must copy
// it out and close done before the coordinator may touch the buffer again.
// Each job is consumed exactly once by exactly one worker.
type job struct {
	path []byte
	done chan struct{}
}

// dispatcher is the engine's view of the worker pool. Tests substitute a stub
// to force every directory onto the local pending path.
type dispatcher interface {
	submit(j *job) error
	freeWorkers() int
	join()
}

// pool is a fixed set of worker goroutines consuming subtree-scan jobs from a
// bounded queue. The mutex guards the queue, the active counter, and the
// closed flag; workers idle on the condition variable.
type pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	wg     sync.WaitGroup
	queue  jobQueue
	size   int
	active int
	closed bool
	scan   func(path string) error
	log    logger
}

func newPool(size int, scan func(path string) error, log logger) *pool {
	p := &pool{size: size, scan: scan, log: log}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for id := 0; id < size; id++ {
		go p.worker(id)
	}

	return p
}

// submit queues j and wakes one idle worker. The caller must not reuse the
// memory behind j.path until j.done is closed; the pool does not copy it.
func (p *pool) submit(j *job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.queue.push(j); err != nil {
		return err
	}

	p.cond.Signal()

	return nil
}

// freeWorkers reports how many workers are not currently scanning. The value
// is advisory: another submission may claim the last free worker before the
// caller acts on it, so a full queue must be treated as a recoverable
// fallback, not an invariant violation.
func (p *pool) freeWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.size - p.active
}

// join stops the pool and waits for every worker to exit. Call exactly once,
// after all submissions have completed.
func (p *pool) join() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *pool) worker(id int) {
	defer p.wg.Done()

	p.mu.Lock()

	for {
		if p.closed {
			p.mu.Unlock()

			return
		}

		j, ok := p.queue.pop()
		if !ok {
			p.cond.Wait()

			continue
		}

		p.active++
		p.mu.Unlock()

		// Copy the borrowed path, then release the producer. Its view
		// into the buffer is invalid from here on.
		path := string(j.path)
		close(j.done)

		err := p.scan(path)

		p.mu.Lock()

		if err != nil {
			// The worker stays marked active so freeWorkers never
			// advertises a thread that is no longer serving jobs.
			// The subtree's contribution is lost; the total is an
			// under-count, logged rather than hidden.
			p.mu.Unlock()
			p.log.warnf("worker %d stopped, subtree dropped: %v", id, err)

			return
		}

		p.active--
	}
}
