package manager

import "sync/atomic"

// stack is a LIFO of transactions.
//
// Only the owner goroutine mutates it. The size is mirrored in an atomic so
// CanUndo/CanRedo can be read from any goroutine.
type stack[T comparable] struct {
	items []T
	size  atomic.Int64
}

func (s *stack[T]) push(v T) {
	s.items = append(s.items, v)
	s.size.Store(int64(len(s.items)))
}

func (s *stack[T]) pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	top := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	s.size.Store(int64(len(s.items)))
	return top, true
}

func (s *stack[T]) peek() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// findFromTop returns the topmost item matching fn.
func (s *stack[T]) findFromTop(fn func(T) bool) (T, bool) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if fn(s.items[i]) {
			return s.items[i], true
		}
	}
	var zero T
	return zero, false
}

// remove deletes the topmost occurrence of v.
func (s *stack[T]) remove(v T) bool {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i] == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.size.Store(int64(len(s.items)))
			return true
		}
	}
	return false
}

func (s *stack[T]) clear() {
	s.items = nil
	s.size.Store(0)
}

// snapshot copies the items bottom to top.
func (s *stack[T]) snapshot() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *stack[T]) len() int {
	return int(s.size.Load())
}
