package record

import (
	"sync/atomic"
	"time"
)

// scorer turns wall-clock time into index scores: Unix microseconds, strictly
// increasing for the life of the process so that two writes in the same
// microsecond still order by issue time.
type scorer struct {
	now  func() time.Time
	last atomic.Int64
}

func (s *scorer) next() float64 {
	for {
		last := s.last.Load()
		now := s.now().UnixMicro()
		if now <= last {
			now = last + 1
		}
		if s.last.CompareAndSwap(last, now) {
			return float64(now)
		}
	}
}

// scoreOf parses an RFC 3339 timestamp into a score.
func scoreOf(ts string) (float64, bool) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0, false
	}
	return float64(t.UnixMicro()), true
}
