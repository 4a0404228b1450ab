package buffer

import "errors"

var (
	// ErrNoPageAvailable is returned by LockPage when every resident block is pinned and the memory budget does not
	// allow another one. It is not fatal; the caller may retry after other threads unlock their pages.
	ErrNoPageAvailable = errors.New("buffer: no page available")

	// ErrFileRead wraps the error of a failed read from the database file.
	ErrFileRead = errors.New("buffer: file read failed")

	ErrClosed         = errors.New("buffer: pool is closed")
	ErrPageOutOfRange = errors.New("buffer: page out of range")
	ErrBadOptions     = errors.New("buffer: bad options")
	ErrInvariant      = errors.New("buffer: invariant violation")
)
