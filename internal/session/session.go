// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session implements the per-(room, user) call state machine:
// offer/candidate handling, peer-connection callback wiring, and
// teardown. Grounded on the ownership and lifecycle shape of
// webrtcStreamer (single owner per call, mutex-guarded mutable fields,
// best-effort teardown), rebuilt around an SSE-signaled
// NONE/NEGOTIATING/ACTIVE state machine instead of a gRPC-signaled one.
package session

import (
	"sync"
	"time"

	"github.com/friday-labs/voice-bridge/internal/mediart"
	"github.com/friday-labs/voice-bridge/internal/playback"
	"github.com/friday-labs/voice-bridge/internal/turn"
	"github.com/friday-labs/voice-bridge/internal/vad"
)

// State is the session's position in the NONE/NEGOTIATING/ACTIVE
// machine.
type State int

const (
	StateNone State = iota
	StateNegotiating
	StateActive
)

// Key identifies a session by its (room, user) pair.
type Key struct {
	RoomID string
	UserID string
}

// Session tracks the WebRTC peer connection, playback pacer, VAD
// segmenter, and turn worker for one active call.
type Session struct {
	RoomID     string
	UserPeerID string
	BotPeerID  string

	mu    sync.Mutex
	state State

	pc          mediart.PeerConnection
	sink        mediart.AudioSink
	pacer       *playback.Pacer
	vad         *vad.Segmenter
	worker      *turn.Worker
	qualityStop chan struct{}

	createdAt time.Time
	closed    bool
}

func (s *Session) key() Key {
	return Key{RoomID: s.RoomID, UserID: s.UserPeerID}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connection quality thresholds, in milliseconds of ICE round-trip
// latency.
const (
	QualityGoodLatencyMs = 150
	QualityFairLatencyMs = 400
)

// ConnectionQuality classifies a round-trip latency sample into a
// coarse label for client-facing display.
func (s *Session) ConnectionQuality(latencyMs float64) string {
	switch {
	case latencyMs <= QualityGoodLatencyMs:
		return "good"
	case latencyMs <= QualityFairLatencyMs:
		return "fair"
	default:
		return "poor"
	}
}
