package common

import "time"

const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
	TB = 1 << 40
)

const (
	// DefaultPageSize is the size of one page of the database file.
	DefaultPageSize = 8 * KB

	// DefaultBlockPages is the number of sibling pages kept together in one block. A block is the unit of commit and
	// eviction of the buffer pool.
	DefaultBlockPages = 8

	// DefaultArenaBlocks is the number of blocks in one arena. It can not exceed 16 since arena occupancy is kept in a
	// 16 bit mask.
	DefaultArenaBlocks = 16

	// DefaultExtentSize is the file range covered by one bit of a thread's extent bitmap.
	DefaultExtentSize = MB

	// MaxThreads is the number of reader threads the pool can track at the same time. Pin masks are uint64.
	MaxThreads = 64

	DefaultMaintenancePeriod = time.Second * 10
	DefaultDefragPeriod      = time.Minute
)
