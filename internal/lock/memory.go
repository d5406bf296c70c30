package lock

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type keyLock struct {
	sem  chan struct{}
	refs int
}

type shard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// MemoryLocker is a per-key mutex for a single process. Keys are spread
// across shards so unrelated keys rarely contend on bookkeeping.
type MemoryLocker struct {
	shards      [shardCount]shard
	waitTimeout time.Duration
}

func NewMemoryLocker(waitTimeout time.Duration) *MemoryLocker {
	l := &MemoryLocker{waitTimeout: waitTimeout}
	for i := range l.shards {
		l.shards[i].locks = make(map[string]*keyLock)
	}
	return l
}

func (l *MemoryLocker) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Release, error) {
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	s := l.shardFor(key)
	s.mu.Lock()
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(s, key, kl)
		return nil, timeoutErr(key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.unref(s, key, kl)
		})
	}, nil
}

func (l *MemoryLocker) unref(s *shard, key string, kl *keyLock) {
	s.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

var _ Locker = (*MemoryLocker)(nil)
