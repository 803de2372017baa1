package workers

import "sync"

// latch releases waiters once CountDown has been called count times.
type latch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

func newLatch(count int) *latch {
	l := &latch{count: count, done: make(chan struct{})}
	if count <= 0 {
		close(l.done)
	}
	return l
}

// CountDown decrements the count. Calls past zero are ignored.
func (l *latch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}

	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// Wait blocks until the count reaches zero.
func (l *latch) Wait() {
	<-l.done
}
