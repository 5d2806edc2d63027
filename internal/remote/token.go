package remote

import "sync"

// atomicToken guards the bearer token; login/logout may race in-flight polls.
type atomicToken struct {
	mu    sync.RWMutex
	value string
}

func (t *atomicToken) set(v string) {
	t.mu.Lock()
	t.value = v
	t.mu.Unlock()
}

func (t *atomicToken) get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}
