package ordmgmt

import "time"

// reqRateThrottler counts transmissions over a sliding window of periodSec
// seconds, bucketed per second. Buckets are expired lazily on refresh.
type reqRateThrottler struct {
	periodSec int64
	buckets   []int
	lastSec   int64
	sum       int
}

func newReqRateThrottler(periodSec int) *reqRateThrottler {
	return &reqRateThrottler{
		periodSec: int64(periodSec),
		buckets:   make([]int, periodSec),
	}
}

// refresh zeroes the buckets belonging to seconds that fell out of the
// window since the last call.
func (t *reqRateThrottler) refresh(now time.Time) {
	sec := now.Unix()
	if t.lastSec == 0 {
		t.lastSec = sec
		return
	}
	if sec <= t.lastSec {
		return
	}
	steps := sec - t.lastSec
	if steps > t.periodSec {
		steps = t.periodSec
	}
	for i := int64(1); i <= steps; i++ {
		idx := (t.lastSec + i) % t.periodSec
		t.sum -= t.buckets[idx]
		t.buckets[idx] = 0
	}
	t.lastSec = sec
}

func (t *reqRateThrottler) add(now time.Time, n int) {
	t.refresh(now)
	t.buckets[now.Unix()%t.periodSec] += n
	t.sum += n
}

// running returns the number of transmissions inside the current window.
func (t *reqRateThrottler) running(now time.Time) int {
	t.refresh(now)
	return t.sum
}
