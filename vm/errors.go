package vm

import "errors"

var (
	// ErrReservationFailed indicates that the OS refused to reserve, commit or decommit virtual memory.
	ErrReservationFailed = errors.New("vm: reservation failed")

	// ErrExhausted indicates that every block of the reservation is allocated.
	ErrExhausted = errors.New("vm: no free block in reservation")

	// ErrBadBlock indicates a block id that does not refer to an allocated block.
	ErrBadBlock = errors.New("vm: bad block id")

	// ErrBadGeometry indicates page, block or arena sizes that do not satisfy the allocator's invariants.
	ErrBadGeometry = errors.New("vm: bad geometry")

	// ErrInvariant is returned by Validate when arena bookkeeping is inconsistent.
	ErrInvariant = errors.New("vm: invariant violation")
)
