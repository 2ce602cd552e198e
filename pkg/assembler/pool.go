package assembler

import "sync"

// encodePool bounds concurrent encode work. Image loading and PDF writing
// are blocking CPU/disk work; running them on their own bounded slots
// keeps a busy encode queue from starving pending downloads and vice
// versa.
type encodePool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newEncodePool(n int) *encodePool {
	if n < 1 {
		n = 1
	}
	return &encodePool{
		slots: make(chan struct{}, n),
	}
}

// submit runs fn on a pool slot, blocking until a slot is free. Returns
// false if the pool is already closed.
func (p *encodePool) submit(fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.slots <- struct{}{}
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn()
	}()
	return true
}

// close marks the pool closed and blocks until pending work drains.
func (p *encodePool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
