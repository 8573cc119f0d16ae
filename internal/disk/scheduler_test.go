package disk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

func TestSchedulerWriteThenRead(t *testing.T) {
	fs := NewMemFileSet()
	mgr := NewManager(fs)
	sched := NewScheduler(mgr)
	defer sched.Shutdown()

	id, err := mgr.AllocatePage()
	require.NoError(t, err)

	page := make([]byte, common.PageSize)
	page[10] = 0x9

	require.NoError(t, sched.ScheduleWrite(id, page))

	out := make([]byte, common.PageSize)
	require.NoError(t, sched.ScheduleRead(id, out))
	require.Equal(t, page, out)
}

func TestSchedulerServesConcurrentCallers(t *testing.T) {
	fs := NewMemFileSet()
	mgr := NewManager(fs)
	sched := NewScheduler(mgr)
	defer sched.Shutdown()

	const n = 32
	ids := make([]pageid.PageID, n)
	for i := 0; i < n; i++ {
		id, err := mgr.AllocatePage()
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := make([]byte, common.PageSize)
			page[0] = byte(i)
			errs[i] = sched.ScheduleWrite(ids[i], page)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestSchedulerRejectsRequestsAfterShutdown(t *testing.T) {
	fs := NewMemFileSet()
	mgr := NewManager(fs)
	sched := NewScheduler(mgr)

	id, err := mgr.AllocatePage()
	require.NoError(t, err)

	page := make([]byte, common.PageSize)
	require.NoError(t, sched.ScheduleWrite(id, page))

	sched.Shutdown()

	err = sched.ScheduleWrite(id, page)
	require.ErrorIs(t, err, common.ErrClosed)
}
