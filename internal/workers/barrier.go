package workers

import "sync"

// barrier blocks each party in Await until parties goroutines have arrived, then
// releases them together and resets for the next generation.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await returns the arrival index; the last party to arrive gets 0.
func (b *barrier) Await() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.waiting++
	arrival := b.parties - b.waiting

	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return arrival
	}

	for gen == b.generation {
		b.cond.Wait()
	}

	return arrival
}
