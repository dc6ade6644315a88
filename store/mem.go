package store

import "sync"

// Mem is an in-memory KV for tests.
type Mem struct {
	sync.Mutex
	kv map[string]string
}

func NewMem() *Mem {
	return &Mem{kv: make(map[string]string)}
}

func (m *Mem) Get(key string) (string, bool) {
	m.Lock()
	defer m.Unlock()
	v, ok := m.kv[key]
	return v, ok
}

func (m *Mem) Set(key, value string) error {
	m.Lock()
	m.kv[key] = value
	m.Unlock()
	return nil
}

func (m *Mem) Delete(keys ...string) error {
	m.Lock()
	for _, key := range keys {
		delete(m.kv, key)
	}
	m.Unlock()
	return nil
}

// Keys returns all present keys, for isolation assertions in tests.
func (m *Mem) Keys() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, 0, len(m.kv))
	for k := range m.kv {
		out = append(out, k)
	}
	return out
}
