// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session Manager for high concurrency.

package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-wire/api"
)

// Manager implements sharded storage for sessions.
type Manager struct {
	shards []*shard
	mask   uint32
	count  atomic.Int64
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a sharded manager with shardCount shards, rounded
// up to a power of two.
func NewManager(shardCount int) *Manager {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return &Manager{shards: shards, mask: m - 1}
}

func (m *Manager) shard(id string) *shard {
	return m.shards[fnv32(id)&m.mask]
}

// Create registers value under id. It fails if id is taken.
func (m *Manager) Create(id string, value any) (*Session, error) {
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; ok {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "session already exists").WithContext("id", id)
	}
	s := newSession(id, value)
	sh.sessions[id] = s
	m.count.Add(1)
	return s, nil
}

// Get fetches a session if present.
func (m *Manager) Get(id string) (*Session, bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Delete cancels and removes the session.
func (m *Manager) Delete(id string) {
	sh := m.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
		m.count.Add(-1)
	}
	sh.mu.Unlock()
	if ok {
		s.Cancel()
	}
}

// Range applies fn to all sessions until fn returns false. fn must not call
// Create or Delete.
func (m *Manager) Range(fn func(*Session) bool) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if !fn(s) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Snapshot returns all sessions; the caller may Delete while iterating it.
func (m *Manager) Snapshot() []*Session {
	out := make([]*Session, 0, m.Len())
	m.Range(func(s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int { return int(m.count.Load()) }

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
