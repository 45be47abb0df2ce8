// Package weakset is an identity set that does not keep its members alive.
// An entry disappears on its own once the object it refers to is garbage
// collected.
package weakset

import (
	"runtime"
	"sync"
	"weak"
)

// Set records object identities (pointer equality) without owning them.
// Cleanups run on a runtime goroutine, hence the mutex.
type Set[T any] struct {
	mu sync.Mutex
	m  map[weak.Pointer[T]]struct{}
}

// New returns an empty Set.
func New[T any]() *Set[T] {
	return &Set[T]{m: make(map[weak.Pointer[T]]struct{})}
}

// Add inserts p and reports whether it was absent.
func (s *Set[T]) Add(p *T) bool {
	wp := weak.Make(p)

	s.mu.Lock()
	if _, ok := s.m[wp]; ok {
		s.mu.Unlock()
		return false
	}
	s.m[wp] = struct{}{}
	s.mu.Unlock()

	runtime.AddCleanup(p, s.remove, wp)
	return true
}

// Has reports whether p is in the set.
func (s *Set[T]) Has(p *T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[weak.Make(p)]
	return ok
}

// Len returns the number of live entries.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *Set[T]) remove(wp weak.Pointer[T]) {
	s.mu.Lock()
	delete(s.m, wp)
	s.mu.Unlock()
}
