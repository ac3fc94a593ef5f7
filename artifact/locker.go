package artifact

import "sync"

// Locker is a set of mutexes keyed by preview directory path. Publishes
// hold a key while swapping a new tree into place and the sweep skips keys
// that are held. The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the function releasing it.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	kl := l.acquire(key)
	l.mu.Unlock()

	kl.mu.Lock()
	return l.releaser(key, kl)
}

// TryLock acquires key only if nobody holds it.
func (l *Locker) TryLock(key string) (unlock func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if kl, held := l.locks[key]; held {
		if !kl.mu.TryLock() {
			return nil, false
		}
		kl.refs++
		return l.releaser(key, kl), true
	}

	kl := l.acquire(key)
	kl.mu.Lock()
	return l.releaser(key, kl), true
}

// Held reports whether key is currently locked or waited on.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[key]
	return ok
}

// acquire must be called with l.mu held.
func (l *Locker) acquire(key string) *keyLock {
	if l.locks == nil {
		l.locks = make(map[string]*keyLock)
	}
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Locker) releaser(key string, kl *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			kl.mu.Unlock()

			l.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}
