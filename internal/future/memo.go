package future

import (
	"sort"
	"sync"
)

// Memo maps keys to lazily created futures. GetOrCreate is one critical
// section, so concurrent callers for a key always share a single future.
type Memo[K comparable, T any] struct {
	mu    sync.Mutex
	items map[K]*Future[T]
}

func NewMemo[K comparable, T any]() *Memo[K, T] {
	return &Memo[K, T]{items: make(map[K]*Future[T])}
}

// GetOrCreate returns the future for key. created is true for exactly one
// caller per key lifetime; that caller owns starting the work.
func (m *Memo[K, T]) GetOrCreate(key K) (f *Future[T], created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.items[key]; ok {
		return f, false
	}
	f = New[T]()
	m.items[key] = f
	return f, true
}

func (m *Memo[K, T]) Get(key K) (*Future[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.items[key]
	return f, ok
}

func (m *Memo[K, T]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Memo[K, T]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// DeleteFunc removes every entry whose key satisfies drop and returns how many went.
func (m *Memo[K, T]) DeleteFunc(drop func(K) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.items {
		if drop(key) {
			delete(m.items, key)
			n++
		}
	}
	return n
}

func (m *Memo[K, T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[K]*Future[T])
}

func (m *Memo[K, T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Keys returns a sorted snapshot of keys for string-like key types.
func Keys[K ~string, T any](m *Memo[K, T]) []K {
	m.mu.Lock()
	out := make([]K, 0, len(m.items))
	for key := range m.items {
		out = append(out, key)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
