package buffer

const (
	statHits          = "hits"
	statMisses        = "misses"
	statWaits         = "waits"
	statReads         = "reads"
	statReadBytes     = "read_bytes"
	statReadErrors    = "read_errors"
	statEvictions     = "evictions"
	statNoPage        = "no_page"
	statThreadLimit   = "thread_limit"
	statUnlocked      = "unlocked"
	statFreed         = "freed"
	statMoves         = "moves"
	statDefragRounds  = "defrag_rounds"
	statRounds        = "maintenance_rounds"
	statSkippedRounds = "skipped_rounds"
)

// Stats is a snapshot of the pool state.
type Stats struct {
	PageCount int
	Threads   int

	Locked   int
	Unlocked int
	Free     int
	Fixed    int

	UsedSize      int64
	UnusedSize    int64
	CommittedSize int64
	ArenaBreak    int
	MixedArenas   int
	FreeArenas    int

	// Counters holds event counts since the pool was created, keyed by names like "hits" or "reads".
	Counters map[string]uint64
}

// Stats walks every list; it is meant for monitoring, not for hot paths.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		PageCount: p.pageCount,
		Counters:  p.stats.Snapshot(),
	}
	if p.closed {
		return s
	}

	s.Threads = p.threads.Len()
	s.Locked = p.locked.Len()
	s.Unlocked = p.unlocked.Len()
	s.Free = p.free.Len()
	s.Fixed = p.fixed.Len()
	s.UsedSize = p.alloc.UsedSize()
	s.UnusedSize = p.alloc.UnusedSize()
	s.CommittedSize = p.alloc.CommittedSize()
	s.ArenaBreak = p.alloc.ArenaBreak()
	s.MixedArenas = p.alloc.MixedArenas()
	s.FreeArenas = p.alloc.FreeArenas()
	return s
}
