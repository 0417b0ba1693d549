// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package mediart abstracts the WebRTC engine behind a capability
// interface: the session manager resolves an Engine once at startup and
// reports wrtc_unavailable if it cannot be built, instead of importing
// pion directly into session/signaling logic. Grounded on
// internal/channel/webrtc/streamer.go's peer-connection setup,
// generalised from a gRPC-signaled single-purpose streamer into a
// reusable engine + per-call PeerConnection abstraction driven by SSE
// signaling instead.
package mediart

import (
	"context"
	"errors"
)

// ErrEngineUnavailable is reported when the underlying WebRTC engine
// cannot be constructed (e.g. missing native dependencies).
var ErrEngineUnavailable = errors.New("mediart: webrtc engine unavailable")

// SessionDescription mirrors the wire shape validated by the session
// manager.
type SessionDescription struct {
	Type string // offer | answer | pranswer
	SDP  string
}

// ICECandidate mirrors the wire shape of a single ICE candidate.
type ICECandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex *uint16
}

// ConnectionState is a transport-agnostic view of peer connection state.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

// AudioSink receives decoded mono PCM-16 frames pulled off an inbound
// WebRTC audio track. OnFrame registers the callback invoked once per
// received frame; it must return quickly. Stop releases the underlying
// track reader.
type AudioSink interface {
	OnFrame(cb func(samples []int16, sampleRate int))
	Stop()
}

// AudioSource accepts synthesised PCM-16 frames for outbound delivery.
// It satisfies playback.Sink so the pacer can push directly into it.
type AudioSource interface {
	PushFrame(samples []int16) error
}

// PeerConnection is one call's WebRTC session, wrapping whatever the
// underlying engine's native peer connection type is.
type PeerConnection interface {
	SetRemoteDescription(ctx context.Context, desc SessionDescription) error
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	AddICECandidate(ctx context.Context, cand ICECandidate) error

	OnICECandidate(cb func(ICECandidate))
	OnConnectionStateChange(cb func(ConnectionState))
	// OnAudioTrack fires once per inbound audio track with a sink the
	// caller can attach a frame callback to. Firing again (e.g. on
	// renegotiation) replaces the previous sink at the caller's
	// discretion.
	OnAudioTrack(cb func(AudioSink))

	// Source returns the outbound audio source backing this
	// connection's sendonly audio transceiver.
	Source() AudioSource

	// Stats reports the current ICE round-trip latency in milliseconds
	// off the nominated candidate pair. ok is false before connectivity
	// checks have produced a nominated pair.
	Stats(ctx context.Context) (latencyMs float64, ok bool)

	Close() error
}

// Engine constructs peer connections. Resolved once at process startup;
// a nil Engine (construction failure) means every offer is answered
// with wrtc_unavailable.
type Engine interface {
	NewPeerConnection(ctx context.Context) (PeerConnection, error)
}
