package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker serializes keys inside one process. TTL is ignored; a lease is
// held until released.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, _ time.Duration) (Releaser, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLease{owner: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ErrBusy
	}
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLease struct {
	owner *LocalLocker
	key   string
	slot  *slot
	once  sync.Once
}

func (r *localLease) Release(_ context.Context) error {
	r.once.Do(func() {
		<-r.slot.ch
		r.owner.drop(r.key, r.slot)
	})
	return nil
}
