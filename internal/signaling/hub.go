// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/telemetry"
)

// SubscriberChannelSize bounds how many frames a slow subscriber can
// lag by before frames are dropped rather than blocking the relay
// path — the hub must never let one dead/slow subscriber stall
// delivery to others.
const SubscriberChannelSize = 64

// Dispatcher is implemented by the session manager. The hub calls into
// it for server-bot-addressed signals and for bye/teardown, without
// importing the session package directly (kept as a narrow interface
// so signaling has no dependency on WebRTC/session internals).
type Dispatcher interface {
	HandleServerBotSignal(event SignalEvent)
	CloseSession(roomID, peerID string)
}

// Subscriber is one open event stream. Frames is the channel an HTTP
// handler drains to write SSE output; Close deregisters it from the
// hub.
type Subscriber struct {
	Frames chan string
	roomID string
	peerID string
	hub    *Hub
	once   sync.Once
}

// Close deregisters this subscriber. Idempotent.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.removeSubscriber(s)
		close(s.Frames)
	})
}

type subscriberKey struct {
	roomID string
	peerID string
}

// Hub is the process-wide signaling fan-out registry.
type Hub struct {
	log        commons.Logger
	dispatcher Dispatcher
	metrics    *telemetry.Metrics

	mu          sync.Mutex
	subscribers map[subscriberKey]map[*Subscriber]struct{}
}

// New builds an empty Hub. SetDispatcher must be called before any
// server-bot-addressed signal can be relayed; until then such signals
// are dropped with a log line (mirrors the "wrtc_unavailable" spirit —
// no session manager means no sessions).
func New(log commons.Logger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[subscriberKey]map[*Subscriber]struct{}),
	}
}

// SetDispatcher wires the session manager in after both are
// constructed, breaking the natural initialization cycle (the session
// manager also needs the hub, to emit answer/candidate/system events).
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
}

// SetMetrics wires the process-wide metrics instance in after both are
// constructed. A nil m disables signal-relay counting.
func (h *Hub) SetMetrics(m *telemetry.Metrics) {
	h.mu.Lock()
	h.metrics = m
	h.mu.Unlock()
}

// OpenEventStream registers a new subscriber for (roomID, peerID),
// emits the initial ready + signaling_connected frames, and returns
// the subscriber for the caller to drain until cancellation.
func (h *Hub) OpenEventStream(peerID, roomID string) *Subscriber {
	sub := &Subscriber{
		Frames: make(chan string, SubscriberChannelSize),
		roomID: roomID,
		peerID: peerID,
		hub:    h,
	}

	h.mu.Lock()
	key := subscriberKey{roomID, peerID}
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[*Subscriber]struct{})
	}
	h.subscribers[key][sub] = struct{}{}
	h.mu.Unlock()

	readyPayload, _ := json.Marshal(map[string]string{"peerId": peerID, "roomId": roomID})
	sub.Frames <- fmt.Sprintf("event: ready\ndata: %s\n\n", readyPayload)

	connected := SignalEvent{
		Type:    EventSystem,
		To:      peerID,
		RoomID:  roomID,
		Payload: SystemPayload{Message: SystemSignalingConnected},
	}
	sub.Frames <- encodeFrame(connected)

	return sub
}

func (h *Hub) removeSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := subscriberKey{sub.roomID, sub.peerID}
	set := h.subscribers[key]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subscribers, key)
	}
}

// RelaySignal applies the offer/answer/candidate/bye/chat/assistant/
// system relay policy for one inbound signal.
func (h *Hub) RelaySignal(event SignalEvent) {
	h.mu.Lock()
	metrics := h.metrics
	h.mu.Unlock()
	metrics.RecordSignalRelayed()

	if event.Type == EventBye {
		h.dispatchClose(event.RoomID, event.From)
		if event.To != "" {
			h.dispatchClose(event.RoomID, event.To)
		}
		// Fall through so the remote side observes the bye too.
	}

	if event.To != "" && IsServerBot(event.To) {
		h.mu.Lock()
		d := h.dispatcher
		h.mu.Unlock()
		if d == nil {
			h.log.Warnw("signaling: no dispatcher registered, dropping server-bot signal", "to", event.To)
			return
		}
		d.HandleServerBotSignal(event)
		return
	}

	if event.To == "" {
		return // events without `to` are dropped, no broadcast.
	}

	h.deliver(event)
}

// Emit publishes an event to its `to` peer's subscribers. Used by the
// session manager to push answer/candidate/system/assistant events.
func (h *Hub) Emit(event SignalEvent) {
	if event.To == "" {
		h.log.Warnw("signaling: refusing to emit event with no `to`", "type", event.Type)
		return
	}
	h.deliver(event)
}

func (h *Hub) deliver(event SignalEvent) {
	key := subscriberKey{event.RoomID, event.To}

	h.mu.Lock()
	set := h.subscribers[key]
	targets := make([]*Subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	frame := encodeFrame(event)
	for _, sub := range targets {
		select {
		case sub.Frames <- frame:
		default:
			h.log.Warnw("signaling: subscriber channel full, dropping frame", "peer", event.To, "room", event.RoomID)
		}
	}
}

func (h *Hub) dispatchClose(roomID, peerID string) {
	h.mu.Lock()
	d := h.dispatcher
	h.mu.Unlock()
	if d != nil {
		d.CloseSession(roomID, peerID)
	}
}

func encodeFrame(event SignalEvent) string {
	data, err := json.Marshal(event)
	if err != nil {
		data = []byte(`{}`)
	}
	return fmt.Sprintf("data: %s\n\n", data)
}
