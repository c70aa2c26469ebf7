// Package idmap provides an insertion-order-preserving id -> entity registry.
package idmap

import (
	"errors"
	"sync"
)

// Map keeps entries in insertion order. It is not synchronized; owners guard
// access with their own mutex.
type Map[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: map[K]V{}}
}

// Put inserts or replaces. Replacing keeps the key's original position.
func (m *Map[K, V]) Put(key K, value V) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *Map[K, V]) Delete(key K) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *Map[K, V]) Len() int {
	return len(m.items)
}

func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.items[k])
	}
	return out
}

// Filter returns the values matching pred, in insertion order.
func (m *Map[K, V]) Filter(pred func(V) bool) []V {
	out := []V{}
	for _, k := range m.keys {
		if v := m.items[k]; pred(v) {
			out = append(out, v)
		}
	}
	return out
}

func (m *Map[K, V]) Each(fn func(K, V)) {
	for _, k := range m.keys {
		fn(k, m.items[k])
	}
}

// ConcurrentEach runs fn for every entry in its own goroutine and waits for
// all of them. Failures never cut the batch short: every entry is attempted
// and the joined error carries each individual failure.
func (m *Map[K, V]) ConcurrentEach(fn func(K, V) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(m.keys))
	for i, k := range m.keys {
		wg.Add(1)
		go func(i int, k K, v V) {
			defer wg.Done()
			errs[i] = fn(k, v)
		}(i, k, m.items[k])
	}
	wg.Wait()
	return errors.Join(errs...)
}
