// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package chatlog holds the bounded, per-room transcript history: a
// FIFO log capped at 250 entries per room. Grounded on the streamer
// package's bounded-buffer discipline (fixed-capacity slices trimmed
// from the front), applied here to a process-wide room->entries map
// guarded by a single mutex.
package chatlog

import (
	"sync"
	"time"
)

const MaxEntriesPerRoom = 250

// Entry is one line of a room's transcript.
type Entry struct {
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Message   string    `json:"message"`
	PeerID    string    `json:"peerId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a process-wide, mutex-guarded collection of per-room chat
// histories.
type Log struct {
	mu    sync.Mutex
	rooms map[string][]Entry
}

// New builds an empty Log.
func New() *Log {
	return &Log{rooms: make(map[string][]Entry)}
}

// Append adds an entry to a room's history, truncating to the oldest-
// evicted 250-entry window when the cap is exceeded.
func (l *Log) Append(roomID string, entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.rooms[roomID], entry)
	if len(entries) > MaxEntriesPerRoom {
		entries = entries[len(entries)-MaxEntriesPerRoom:]
	}
	l.rooms[roomID] = entries
}

// History returns a snapshot of a room's entries. The returned slice
// is a defensive copy, so mutating it does not affect the log.
func (l *Log) History(roomID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.rooms[roomID]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}
