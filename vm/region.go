package vm

// region is the OS boundary of the allocator. It owns the reserved address space and makes arena sized ranges of it
// usable or unusable.
type region interface {
	// commit makes arena i readable and writable and returns its memory.
	commit(i int) ([]byte, error)

	// decommit returns the physical memory of arena i to the OS. mem must be the slice returned by commit.
	decommit(i int, mem []byte) error

	// release gives the whole reservation back.
	release() error
}
