// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed wrapper over sync.Pool.

package pool

import "sync"

// ObjectPool hands out reusable values of one type.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool is an ObjectPool backed by sync.Pool. Values are created by the
// constructor when the pool is empty.
type SyncPool[T any] struct {
	p sync.Pool
}

// NewSyncPool returns a pool that calls newFn to create values.
func NewSyncPool[T any](newFn func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.p.New = func() any { return newFn() }
	return sp
}

// Get returns a pooled value or a new one.
func (sp *SyncPool[T]) Get() T { return sp.p.Get().(T) }

// Put makes v available for reuse.
func (sp *SyncPool[T]) Put(v T) { sp.p.Put(v) }

var _ ObjectPool[*[]byte] = (*SyncPool[*[]byte])(nil)
