package core

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Arena stores values behind small integer handles. Released slots are
// reused by later inserts, and every handle carries no pointer so it stays
// valid across reallocations of the backing slice. Handle zero is never
// returned and can be used as the invalid value.
type Arena[H constraints.Unsigned, T any] struct {
	slots []arenaSlot[T]
	free  []H
	count int
}

type arenaSlot[T any] struct {
	value T
	live  bool
}

func NewArena[H constraints.Unsigned, T any](capacity int) *Arena[H, T] {
	a := &Arena[H, T]{
		slots: make([]arenaSlot[T], 1, capacity+1),
	}
	return a
}

// Insert stores value and returns its handle.
func (a *Arena[H, T]) Insert(value T) H {
	a.count++
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = arenaSlot[T]{value: value, live: true}
		return h
	}
	a.slots = append(a.slots, arenaSlot[T]{value: value, live: true})
	return H(len(a.slots) - 1)
}

// Get returns the value stored behind h.
func (a *Arena[H, T]) Get(h H) (T, bool) {
	if !a.valid(h) {
		var zero T
		return zero, false
	}
	return a.slots[h].value, true
}

// Set replaces the value stored behind a live handle.
func (a *Arena[H, T]) Set(h H, value T) error {
	if !a.valid(h) {
		return fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
	}
	a.slots[h].value = value
	return nil
}

// Remove releases h and returns the value it held.
func (a *Arena[H, T]) Remove(h H) (T, error) {
	if !a.valid(h) {
		var zero T
		return zero, fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
	}
	v := a.slots[h].value
	a.slots[h] = arenaSlot[T]{}
	a.free = append(a.free, h)
	a.count--
	return v, nil
}

// Len returns the number of live values.
func (a *Arena[H, T]) Len() int {
	return a.count
}

// Each calls fn for every live value in handle order.
func (a *Arena[H, T]) Each(fn func(h H, value T)) {
	for i := 1; i < len(a.slots); i++ {
		if a.slots[i].live {
			fn(H(i), a.slots[i].value)
		}
	}
}

func (a *Arena[H, T]) valid(h H) bool {
	return h != 0 && int(h) < len(a.slots) && a.slots[h].live
}
