package buffer

import "dataserver/threadid"

// PageRef is a page locked by a thread. Its bytes stay valid and in place until the thread unlocks the page's block.
type PageRef struct {
	pool  *Pool
	tid   threadid.ID
	page  PageIndex
	data  []byte
	fixed bool
}

func (r *PageRef) Page() PageIndex {
	return r.page
}

// Data returns the page bytes. The caller must not modify them.
func (r *PageRef) Data() []byte {
	return r.data
}

// Fixed reports whether the page stays resident until the pool is closed.
func (r *PageRef) Fixed() bool {
	return r.fixed
}

// Release unlocks the page's block for the owning thread. Releasing a fixed page or releasing twice does nothing.
func (r *PageRef) Release() {
	if r.data == nil {
		return
	}
	r.data = nil
	if !r.fixed {
		r.pool.UnlockPage(r.tid, r.page)
	}
}
