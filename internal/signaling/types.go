// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package signaling implements the server-sent-events fan-out hub:
// subscriber registration keyed by (room, peer), relay policy for
// offer/answer/candidate/bye/chat/assistant/system events, and
// dispatch of server-bot-addressed signals into the session manager.
// Grounded structurally on mossy-p-webrtc-signaling's room/client
// broadcast pattern (mutex-guarded room map, per-subscriber buffered
// channel, non-blocking send-or-skip), adapted from WebSocket duplex
// messaging to one-way SSE push plus a POST-based relay endpoint.
package signaling

import "time"

// EventType enumerates the wire event types carried on the bus.
type EventType string

const (
	EventOffer     EventType = "offer"
	EventAnswer    EventType = "answer"
	EventCandidate EventType = "candidate"
	EventBye       EventType = "bye"
	EventChat      EventType = "chat"
	EventSystem    EventType = "system"
	EventAssistant EventType = "assistant"
)

// ServerBotPrefix identifies a synthetic peer id that the hub dispatches
// to the in-process session manager instead of relaying to a client.
const ServerBotPrefix = "friday-voice-bot-"

// SignalEvent is one message on the bus.
// Invariant: every event addressed to a specific peer sets To.
type SignalEvent struct {
	Type    EventType `json:"type"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	RoomID  string    `json:"roomId"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// IsServerBot reports whether peerID names the synthetic session-manager
// endpoint.
func IsServerBot(peerID string) bool {
	return len(peerID) > len(ServerBotPrefix) && peerID[:len(ServerBotPrefix)] == ServerBotPrefix
}

// SystemPayload is the payload shape for EventSystem events. LatencyMs
// and Quality are set only on SystemConnectionQuality events.
type SystemPayload struct {
	Message   string   `json:"message"`
	LatencyMs *float64 `json:"latencyMs,omitempty"`
	Quality   string   `json:"quality,omitempty"`
}

// Known system event codes.
const (
	SystemSignalingConnected     = "signaling_connected"
	SystemConnectionDisconnected = "connection_disconnected"
	SystemInvalidOfferPayload    = "invalid_offer_payload"
	SystemOfferHandlingFailed    = "offer_handling_failed"
	SystemWRTCUnavailable        = "wrtc_unavailable"
	SystemSTTBinaryMissing       = "stt_binary_missing"
	SystemTTSBinaryMissing       = "tts_binary_missing"
	SystemFfmpegMissing          = "ffmpeg_missing"
	SystemVoiceTurnDetected      = "voice_turn_detected"
	SystemTranscriptionEmpty     = "transcription_empty"
	SystemInterrupted            = "interrupted"
	SystemConnectionQuality      = "connection_quality"
)

// SessionDescriptionPayload validates the shape of an offer/answer
// payload.
type SessionDescriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Valid reports whether the payload names one of the three SDP types
// and carries a non-empty body.
func (p SessionDescriptionPayload) Valid() bool {
	switch p.Type {
	case "offer", "answer", "pranswer":
		return p.SDP != ""
	default:
		return false
	}
}

// ICECandidatePayload validates an ICE candidate payload shape.
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (p ICECandidatePayload) Valid() bool {
	return p.Candidate != ""
}
