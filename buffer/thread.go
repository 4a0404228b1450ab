package buffer

import "dataserver/threadid"

// Thread locks pages on behalf of one reader. A Thread must not be used by two goroutines at the same time.
type Thread struct {
	pool *Pool
	id   threadid.ID
}

// NewThread returns a handle with a fresh thread id. The thread is registered by its first LockPage.
func (p *Pool) NewThread() *Thread {
	return p.Thread(threadid.New())
}

// Thread returns a handle for an existing thread id.
func (p *Pool) Thread(id threadid.ID) *Thread {
	return &Thread{pool: p, id: id}
}

func (t *Thread) ID() threadid.ID {
	return t.id
}

func (t *Thread) LockPage(page PageIndex) (*PageRef, error) {
	return t.pool.LockPage(t.id, page, PinShared)
}

func (t *Thread) LockPageFixed(page PageIndex) (*PageRef, error) {
	return t.pool.LockPage(t.id, page, PinFixed)
}

func (t *Thread) UnlockPage(page PageIndex) bool {
	return t.pool.UnlockPage(t.id, page)
}

// Unlock releases every block held by the thread.
func (t *Thread) Unlock() int {
	return t.pool.UnlockThread(t.id, false)
}

// Close releases every block held by the thread and removes it from the pool's registry.
func (t *Thread) Close() int {
	return t.pool.UnlockThread(t.id, true)
}
