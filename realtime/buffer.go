// Package realtime contains primitives shared between a real-time control context and the
// non-real-time code feeding it. Nothing on the real-time side of these types blocks or allocates.
package realtime

import (
	"go.uber.org/atomic"
)

// Buffer hands immutable snapshots from a non-real-time writer to a real-time reader. Writes are a
// single atomic pointer store so a reader sees either the previous snapshot or the new one in
// full. A superseded snapshot stays valid for as long as any reader still holds it.
//
// Values stored in a Buffer must not be mutated after they are written.
type Buffer[T any] struct {
	current atomic.Pointer[T]
}

// NewBuffer returns a buffer holding initial, which may be nil.
func NewBuffer[T any](initial *T) *Buffer[T] {
	b := &Buffer[T]{}
	b.current.Store(initial)
	return b
}

// WriteFromNonRT installs value as the current snapshot.
func (b *Buffer[T]) WriteFromNonRT(value *T) {
	b.current.Store(value)
}

// SwapFromNonRT installs value and returns the snapshot it replaced.
func (b *Buffer[T]) SwapFromNonRT(value *T) *T {
	return b.current.Swap(value)
}

// ReadFromRT returns the current snapshot. It never blocks and never allocates.
func (b *Buffer[T]) ReadFromRT() *T {
	return b.current.Load()
}

// ReadFromNonRT returns the current snapshot.
func (b *Buffer[T]) ReadFromNonRT() *T {
	return b.current.Load()
}
