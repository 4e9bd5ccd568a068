package state

import "sync"

const lockStripes = 64

// stripedLock hands out a mutex per key without unbounded growth: keys hash
// onto a fixed set of stripes. Collisions only cost extra serialization.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) forKey(key int64) *sync.Mutex {
	return &l.stripes[uint64(key)%lockStripes]
}
