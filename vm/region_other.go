//go:build !linux && !darwin

package vm

// heapRegion backs each committed arena with its own Go slice. Decommit drops the slice and leaves the memory to the
// garbage collector.
type heapRegion struct {
	arenaSize int
}

func reserveRegion(_, arenaSize int) (region, error) {
	return &heapRegion{arenaSize: arenaSize}, nil
}

func (r *heapRegion) commit(int) ([]byte, error) {
	return make([]byte, r.arenaSize), nil
}

func (r *heapRegion) decommit(int, []byte) error {
	return nil
}

func (r *heapRegion) release() error {
	return nil
}
