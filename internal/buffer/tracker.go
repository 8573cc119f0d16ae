package buffer

import (
	"sync"

	"github.com/crio-db/crio/internal/pageid"
)

// SequentialThreshold is the number of consecutive increasing-offset
// fetches (within the same file) that triggers a prefetch hint.
const SequentialThreshold = 3

// PrefetchLookahead is how many pages ahead a triggered prefetch hint
// covers.
const PrefetchLookahead = 8

// AccessTracker watches the sequence of FetchPage calls per file and
// recognizes sequential scans, so the buffer pool can issue read-ahead
// hints instead of taking one page fault per page of a table scan.
type AccessTracker struct {
	threshold int
	lookahead int

	mu    sync.Mutex
	state map[uint8]*fileAccessState
}

type fileAccessState struct {
	lastOffset  uint32
	hasLast     bool
	consecutive int
}

// NewAccessTracker returns a tracker using the given threshold/lookahead.
// Zero values fall back to the package defaults.
func NewAccessTracker(threshold, lookahead int) *AccessTracker {
	if threshold <= 0 {
		threshold = SequentialThreshold
	}
	if lookahead <= 0 {
		lookahead = PrefetchLookahead
	}
	return &AccessTracker{
		threshold: threshold,
		lookahead: lookahead,
		state:     make(map[uint8]*fileAccessState),
	}
}

// Observe records a fetch of id and returns the set of page ids to
// prefetch, or nil if no prefetch should be triggered by this access.
// Prefetch hints name PageIDs, not frames: it's up to the caller to decide
// whether/how to land them in evictable frames.
func (t *AccessTracker) Observe(id pageid.PageID) []pageid.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[id.FileID()]
	if !ok {
		st = &fileAccessState{}
		t.state[id.FileID()] = st
	}

	offset := id.Offset()
	sequential := st.hasLast && offset == st.lastOffset+1
	if sequential {
		st.consecutive++
	} else {
		st.consecutive = 1
	}
	st.lastOffset = offset
	st.hasLast = true

	if st.consecutive < t.threshold {
		return nil
	}

	hints := make([]pageid.PageID, 0, t.lookahead)
	for i := 1; i <= t.lookahead; i++ {
		next, err := pageid.New(id.FileID(), offset+uint32(i))
		if err != nil {
			break // ran off the end of the file's address space
		}
		hints = append(hints, next)
	}
	return hints
}

// Reset clears tracked state for a file, used when a caller seeks
// non-sequentially on purpose (e.g. an index lookup) and wants to avoid
// a stale run count biasing the next scan detection.
func (t *AccessTracker) Reset(fileID uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, fileID)
}
