// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/friday-labs/voice-bridge/internal/audio"
	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/mediart"
	"github.com/friday-labs/voice-bridge/internal/playback"
	"github.com/friday-labs/voice-bridge/internal/signaling"
	"github.com/friday-labs/voice-bridge/internal/telemetry"
	"github.com/friday-labs/voice-bridge/internal/turn"
	"github.com/friday-labs/voice-bridge/internal/vad"
)

const PendingCandidateCap = 80

// ConnectionQualityInterval is how often an active session's ICE stats
// are polled for a latency sample.
const ConnectionQualityInterval = 5 * time.Second

// CollaboratorFactory builds a fresh set of STT/LLM/TTS/decode
// collaborators for a new session. The manager calls this once per
// offer accepted, so each session gets its own collaborator instances
// without sharing state across calls.
type CollaboratorFactory func() turn.Collaborators

// ProbeFactory builds the tool-verification targets for a new session,
// matching the current configuration.
type ProbeFactory func() []collab.ProbeTarget

// Manager owns the session table, the pending-candidate buffer, and
// the server-bot signal handling. It implements signaling.Dispatcher.
type Manager struct {
	log     commons.Logger
	hub     *signaling.Hub
	engine  mediart.Engine
	chatLog *chatlog.Log
	metrics *telemetry.Metrics

	newCollaborators CollaboratorFactory
	probeTargets     ProbeFactory

	mu               sync.Mutex
	sessions         map[Key]*Session
	pendingCandidate map[Key][]mediart.ICECandidate
}

// NewManager builds a Manager. engine may be nil to model an
// unavailable WebRTC runtime (every offer then reports
// wrtc_unavailable).
func NewManager(hub *signaling.Hub, engine mediart.Engine, chatLog *chatlog.Log, metrics *telemetry.Metrics, collaborators CollaboratorFactory, probes ProbeFactory, log commons.Logger) *Manager {
	m := &Manager{
		log:              log,
		hub:              hub,
		engine:           engine,
		chatLog:          chatLog,
		metrics:          metrics,
		newCollaborators: collaborators,
		probeTargets:     probes,
		sessions:         make(map[Key]*Session),
		pendingCandidate: make(map[Key][]mediart.ICECandidate),
	}
	hub.SetDispatcher(m)
	return m
}

// HandleServerBotSignal implements signaling.Dispatcher.
func (m *Manager) HandleServerBotSignal(event signaling.SignalEvent) {
	switch event.Type {
	case signaling.EventOffer:
		m.handleOffer(event)
	case signaling.EventCandidate:
		m.handleCandidate(event)
	case signaling.EventBye:
		// Already closed by the hub's bye handling before dispatch.
	default:
		m.log.Debugw("session: ignoring signal type on server-bot channel", "type", event.Type)
	}
}

// CloseSession implements signaling.Dispatcher. It is idempotent:
// closing an already-closed or nonexistent (room, user) pair is a
// no-op.
func (m *Manager) CloseSession(roomID, peerID string) {
	key := Key{RoomID: roomID, UserID: peerID}

	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
		delete(m.pendingCandidate, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.teardown(sess)
}

func (m *Manager) handleOffer(event signaling.SignalEvent) {
	var payload signaling.SessionDescriptionPayload
	if err := decodePayload(event.Payload, &payload); err != nil || !payload.Valid() || payload.Type != "offer" {
		m.emitSystem(event.To, event.From, event.RoomID, signaling.SystemInvalidOfferPayload)
		return
	}

	key := Key{RoomID: event.RoomID, UserID: event.From}
	m.CloseSession(event.RoomID, event.From) // close any existing session for this user before creating a new one

	if m.engine == nil {
		m.emitSystem(event.To, event.From, event.RoomID, signaling.SystemWRTCUnavailable)
		return
	}

	ctx := context.Background()
	pc, err := m.engine.NewPeerConnection(ctx)
	if err != nil {
		m.log.Errorw("session: failed to create peer connection", "err", err)
		m.emitSystem(event.To, event.From, event.RoomID, signaling.SystemWRTCUnavailable)
		return
	}

	sess := &Session{
		RoomID:      event.RoomID,
		UserPeerID:  event.From,
		BotPeerID:   event.To,
		pc:          pc,
		vad:         vad.New(nil),
		qualityStop: make(chan struct{}),
		createdAt:   time.Now(),
		state:       StateNegotiating,
	}
	sess.pacer = playback.New(pc.Source(), m.log)
	sess.worker = turn.NewWorker(sess.RoomID, sess.UserPeerID, sess.BotPeerID, m.newCollaborators(), m.chatLog, sess.pacer, m.hub, m.metrics, m.log)

	m.mu.Lock()
	m.sessions[key] = sess
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}

	m.wireCallbacks(sess)

	go m.verifyTools(sess)

	if err := pc.SetRemoteDescription(ctx, mediart.SessionDescription{Type: payload.Type, SDP: payload.SDP}); err != nil {
		m.log.Errorw("session: set remote description failed", "err", err)
		m.emitSystem(event.To, event.From, event.RoomID, signaling.SystemOfferHandlingFailed)
		m.CloseSession(event.RoomID, event.From)
		return
	}

	m.drainPendingCandidates(key, pc)

	answer, err := pc.CreateAnswer(ctx)
	if err != nil {
		m.log.Errorw("session: create answer failed", "err", err)
		m.emitSystem(event.To, event.From, event.RoomID, signaling.SystemOfferHandlingFailed)
		m.CloseSession(event.RoomID, event.From)
		return
	}

	sess.setState(StateActive)
	go m.pollConnectionQuality(sess)

	m.hub.Emit(signaling.SignalEvent{
		Type:   signaling.EventAnswer,
		From:   sess.BotPeerID,
		To:     sess.UserPeerID,
		RoomID: sess.RoomID,
		Payload: signaling.SessionDescriptionPayload{
			Type: answer.Type,
			SDP:  answer.SDP,
		},
		At: time.Now(),
	})
}

func (m *Manager) drainPendingCandidates(key Key, pc mediart.PeerConnection) {
	m.mu.Lock()
	pending := m.pendingCandidate[key]
	delete(m.pendingCandidate, key)
	m.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(context.Background(), cand); err != nil {
			m.log.Debugw("session: failed to apply buffered candidate", "err", err)
		}
	}
}

func (m *Manager) handleCandidate(event signaling.SignalEvent) {
	var payload signaling.ICECandidatePayload
	if err := decodePayload(event.Payload, &payload); err != nil || !payload.Valid() {
		return
	}
	cand := mediart.ICECandidate{Candidate: payload.Candidate, SDPMid: payload.SDPMid, SDPMLineIndex: payload.SDPMLineIndex}

	key := Key{RoomID: event.RoomID, UserID: event.From}

	m.mu.Lock()
	sess, exists := m.sessions[key]
	m.mu.Unlock()

	if exists {
		if err := sess.pc.AddICECandidate(context.Background(), cand); err != nil {
			m.log.Debugw("session: add ice candidate failed", "err", err)
		}
		return
	}

	m.mu.Lock()
	buf := append(m.pendingCandidate[key], cand)
	if len(buf) > PendingCandidateCap {
		buf = buf[len(buf)-PendingCandidateCap:]
	}
	m.pendingCandidate[key] = buf
	m.mu.Unlock()
}

func (m *Manager) wireCallbacks(sess *Session) {
	sess.pc.OnICECandidate(func(cand mediart.ICECandidate) {
		m.hub.Emit(signaling.SignalEvent{
			Type:   signaling.EventCandidate,
			From:   sess.BotPeerID,
			To:     sess.UserPeerID,
			RoomID: sess.RoomID,
			Payload: signaling.ICECandidatePayload{
				Candidate:     cand.Candidate,
				SDPMid:        cand.SDPMid,
				SDPMLineIndex: cand.SDPMLineIndex,
			},
			At: time.Now(),
		})
	})

	sess.pc.OnConnectionStateChange(func(state mediart.ConnectionState) {
		switch state {
		case mediart.StateFailed, mediart.StateClosed:
			m.CloseSession(sess.RoomID, sess.UserPeerID)
		case mediart.StateDisconnected:
			m.emitSystem(sess.BotPeerID, sess.UserPeerID, sess.RoomID, signaling.SystemConnectionDisconnected)
		}
	})

	sess.pc.OnAudioTrack(func(sink mediart.AudioSink) {
		sess.mu.Lock()
		if sess.sink != nil {
			sess.sink.Stop()
		}
		sess.sink = sink
		sess.mu.Unlock()

		sink.OnFrame(func(samples []int16, sampleRate int) {
			m.onInboundFrame(sess, samples, sampleRate)
		})
	})
}

// onInboundFrame runs on the engine's capture goroutine; it must not
// block on I/O. VAD processing itself is cheap arithmetic, and
// enqueueing a finalised utterance is a bounded, non-blocking append.
// A fresh speech onset while the pacer is still playing audio out is
// treated as barge-in: drain the pacer and tell the client.
func (m *Manager) onInboundFrame(sess *Session, samples []int16, sampleRate int) {
	utterance, finalized, started := sess.vad.PushFrame(audio.Frame{Samples: samples, SampleRate: sampleRate, ChannelCount: 1})
	if started && sess.pacer.Running() {
		sess.pacer.Clear()
		m.emitSystem(sess.BotPeerID, sess.UserPeerID, sess.RoomID, signaling.SystemInterrupted)
	}
	if !finalized {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordTurnDetected()
	}
	sess.worker.Enqueue(utterance)
}

// pollConnectionQuality samples ICE round-trip latency every
// ConnectionQualityInterval and emits a system{connection_quality}
// event for as long as the session stays open. It exits once
// sess.qualityStop is closed by teardown.
func (m *Manager) pollConnectionQuality(sess *Session) {
	ticker := time.NewTicker(ConnectionQualityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.qualityStop:
			return
		case <-ticker.C:
			latencyMs, ok := sess.pc.Stats(context.Background())
			if !ok {
				continue
			}
			m.emitSystemPayload(sess.BotPeerID, sess.UserPeerID, sess.RoomID, signaling.SystemPayload{
				Message:   signaling.SystemConnectionQuality,
				LatencyMs: &latencyMs,
				Quality:   sess.ConnectionQuality(latencyMs),
			})
		}
	}
}

func (m *Manager) verifyTools(sess *Session) {
	if m.probeTargets == nil {
		return
	}
	results := collab.VerifyTools(context.Background(), m.probeTargets())
	for _, r := range results {
		if !r.Available && r.Missing != "" {
			m.emitSystem(sess.BotPeerID, sess.UserPeerID, sess.RoomID, r.Missing)
		}
	}
}

// teardown releases every session resource, swallowing each step's
// error independently.
func (m *Manager) teardown(sess *Session) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sink := sess.sink
	sess.sink = nil
	pc := sess.pc
	sess.mu.Unlock()

	if sink != nil {
		safeCall(func() { sink.Stop() })
	}
	if sess.qualityStop != nil {
		safeCall(func() { close(sess.qualityStop) })
	}
	if sess.pacer != nil {
		safeCall(func() { sess.pacer.Clear() })
	}
	if sess.worker != nil {
		safeCall(func() { sess.worker.Close() })
	}
	safeCall(func() { sess.vad.Reset() })
	if pc != nil {
		safeCall(func() {
			if err := pc.Close(); err != nil {
				m.log.Debugw("session: peer connection close error", "err", err)
			}
		})
	}
	sess.setState(StateNone)

	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
}

func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func (m *Manager) emitSystem(from, to, roomID, code string) {
	m.emitSystemPayload(from, to, roomID, signaling.SystemPayload{Message: code})
}

func (m *Manager) emitSystemPayload(from, to, roomID string, payload signaling.SystemPayload) {
	m.hub.Emit(signaling.SignalEvent{
		Type:    signaling.EventSystem,
		From:    from,
		To:      to,
		RoomID:  roomID,
		Payload: payload,
		At:      time.Now(),
	})
}

func decodePayload(payload any, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
