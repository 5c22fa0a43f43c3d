package conv

import (
	"runtime"
	"sync"
)

// Pool is a bounded set of worker slots for fork/join work. It is created
// once, shared by reference, and shut down with Close.
//
// Fork never blocks: when every slot is busy, or the pool is closed, the
// forked function runs inline on the caller. A forking task therefore only
// ever waits at its own Join, which rules out pool-exhaustion deadlocks in
// recursive splits.
type Pool struct {
	slots chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given number of concurrent workers.
// workers <= 0 selects runtime.GOMAXPROCS(0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{slots: make(chan struct{}, workers)}
}

// Workers returns the number of concurrent worker slots.
func (p *Pool) Workers() int {
	return cap(p.slots)
}

// Task is the handle of a forked function.
type Task struct {
	done     chan struct{}
	panicVal any
}

// Join waits for the task to finish. A panic raised by the task is
// re-raised on the joining goroutine with the original value.
func (t *Task) Join() {
	<-t.done
	if t.panicVal != nil {
		panic(t.panicVal)
	}
}

// Fork schedules fn for concurrent execution if a worker slot is free and
// runs it inline otherwise.
func (p *Pool) Fork(fn func()) *Task {
	t := &Task{done: make(chan struct{})}

	p.mu.RLock()
	if !p.closed {
		select {
		case p.slots <- struct{}{}:
			p.wg.Add(1)
			p.mu.RUnlock()
			go func() {
				defer func() {
					<-p.slots
					p.wg.Done()
				}()
				t.run(fn)
			}()
			return t
		default:
		}
	}
	p.mu.RUnlock()

	t.run(fn)
	return t
}

func (t *Task) run(fn func()) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.panicVal = r
		}
	}()
	fn()
}

// Close stops the pool from starting new goroutines and waits for the
// in-flight ones. Later Forks run inline. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
