package lockmgr

import (
	"sync"
	"time"
)

// deadlineFrom converts a relative timeout into an absolute deadline.
func deadlineFrom(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}

// waitUntil blocks on cond until woken or deadline passes, returning false
// only on a genuine timeout. sync.Cond has no native timed wait; this
// arms a timer that broadcasts on expiry, the same trick the standard
// library's own context-aware wrappers use internally.
func waitUntil(cond *sync.Cond, deadline time.Time) bool {
	timer := time.AfterFunc(time.Until(deadline), func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	woke := timer.Stop()
	return woke || time.Now().Before(deadline)
}
