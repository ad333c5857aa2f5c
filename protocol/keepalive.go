// File: protocol/keepalive.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "time"

// KeepaliveAction is the outcome of a keepalive check.
type KeepaliveAction int

const (
	KeepaliveIdle KeepaliveAction = iota
	KeepaliveSendPing
	KeepaliveTimeout
)

func (a KeepaliveAction) String() string {
	switch a {
	case KeepaliveSendPing:
		return "ping"
	case KeepaliveTimeout:
		return "timeout"
	default:
		return "idle"
	}
}

// Keepalive is the ping/timeout policy of an established WebSocket
// connection. A ping is due after one quiet interval; the connection is
// dead after two quiet intervals.
type Keepalive struct {
	interval time.Duration
	lastSeen time.Time
	nextPing time.Time
}

// NewKeepalive starts the policy at now. A non-positive interval uses
// DefaultPingInterval.
func NewKeepalive(interval time.Duration, now time.Time) Keepalive {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	return Keepalive{interval: interval, lastSeen: now, nextPing: now.Add(interval)}
}

// Seen records inbound traffic at now.
func (k *Keepalive) Seen(now time.Time) {
	k.lastSeen = now
	k.nextPing = now.Add(k.interval)
}

// Check evaluates the policy at now.
func (k *Keepalive) Check(now time.Time) KeepaliveAction {
	if now.Sub(k.lastSeen) >= 2*k.interval {
		return KeepaliveTimeout
	}
	if !now.Before(k.nextPing) {
		k.nextPing = now.Add(k.interval)
		return KeepaliveSendPing
	}
	return KeepaliveIdle
}

// LastSeen returns the time of the last inbound traffic.
func (k *Keepalive) LastSeen() time.Time { return k.lastSeen }

// NextPing returns when the next ping is due absent traffic.
func (k *Keepalive) NextPing() time.Time { return k.nextPing }

// Interval returns the ping interval.
func (k *Keepalive) Interval() time.Duration { return k.interval }
