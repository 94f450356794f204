package calibration

import "sync"

// SensorLocks hands out one mutex per sensor id. Entries are dropped when no
// goroutine holds or waits on them.
type SensorLocks struct {
	mu    sync.Mutex
	locks map[int]*sensorLock
}

type sensorLock struct {
	mu   sync.Mutex
	refs int
}

func NewSensorLocks() *SensorLocks {
	return &SensorLocks{locks: make(map[int]*sensorLock)}
}

// Lock blocks until the sensor is free and returns the matching unlock.
func (l *SensorLocks) Lock(id int) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sensorLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of sensors currently locked or waited on.
func (l *SensorLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
