// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package turn implements the per-session serial turn pipeline: STT ->
// dedup -> chat log -> LLM -> chat log -> TTS -> decode -> playback ->
// assistant event. Grounded on streamer.go's single-flight worker
// discipline (processingTurn-style reentrancy guard around
// runOutputWriter/inputCh draining), rebuilt around a plain
// queue+goroutine rather than gRPC stream channels.
package turn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/playback"
	"github.com/friday-labs/voice-bridge/internal/signaling"
	"github.com/friday-labs/voice-bridge/internal/telemetry"
	"github.com/friday-labs/voice-bridge/internal/vad"
)

const (
	MaxQueueDepth = 3
	DedupWindow   = 2500 * time.Millisecond
)

// Collaborators bundles the STT/LLM/TTS/decode chain a Worker drives.
// Constructed once per session from the process-wide configuration.
type Collaborators struct {
	STT     collab.Recognizer
	LLM     collab.LLM
	TTS     collab.Synthesizer
	Decoder collab.Decoder
}

// Item is one queued utterance awaiting processing.
type Item struct {
	Samples    []int16
	SampleRate int
}

// AssistantEventPayload is the metadata-only payload of the `assistant`
// event emitted after a turn completes.
type AssistantEventPayload struct {
	TurnID        string        `json:"turnId"`
	UserEntry     chatlog.Entry `json:"userEntry"`
	Reply         chatlog.Entry `json:"reply"`
	AudioBase64   *string       `json:"audioBase64"`
	AudioMimeType *string       `json:"audioMimeType"`
}

// Worker owns one session's turn queue and its single-flight processing
// loop. Not safe for concurrent Enqueue calls racing with Close, though
// Enqueue itself is safe to call from the audio-callback goroutine
// while a turn is in flight.
type Worker struct {
	log     commons.Logger
	roomID  string
	userID  string
	botID   string
	collab  Collaborators
	chatLog *chatlog.Log
	pacer   *playback.Pacer
	hub     *signaling.Hub
	metrics *telemetry.Metrics

	mu               sync.Mutex
	queue            []Item
	processing       bool
	lastTranscript   string
	lastTranscriptAt time.Time
	closed           bool
}

// NewWorker builds a turn worker for one session. hub/pacer/chatLog are
// shared, process-wide or per-session collaborators supplied by the
// session manager.
func NewWorker(roomID, userID, botID string, c Collaborators, chatLog *chatlog.Log, pacer *playback.Pacer, hub *signaling.Hub, metrics *telemetry.Metrics, log commons.Logger) *Worker {
	return &Worker{
		log:     log,
		roomID:  roomID,
		userID:  userID,
		botID:   botID,
		collab:  c,
		chatLog: chatLog,
		pacer:   pacer,
		hub:     hub,
		metrics: metrics,
	}
}

// Enqueue adds a finalised utterance to the turn queue, evicting the
// oldest entry if the queue is already at capacity, and starts the
// processing loop if it is not already running.
func (w *Worker) Enqueue(u vad.Utterance) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, Item{Samples: u.Samples, SampleRate: u.SampleRate})
	if len(w.queue) > MaxQueueDepth {
		w.queue = w.queue[len(w.queue)-MaxQueueDepth:]
	}
	needStart := !w.processing
	if needStart {
		w.processing = true
	}
	w.mu.Unlock()

	w.emitSystem(signaling.SystemVoiceTurnDetected)

	if needStart {
		go w.runLoop()
	}
}

// QueueDepth reports the current queue length, for tests and metrics.
func (w *Worker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Close marks the worker closed; any in-flight turn finishes but no
// further items are accepted or started.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.queue = nil
	w.mu.Unlock()
}

func (w *Worker) runLoop() {
	for {
		item, ok := w.dequeue()
		if !ok {
			return
		}
		w.processTurn(item)
	}
}

func (w *Worker) dequeue() (Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 || w.closed {
		w.processing = false
		return Item{}, false
	}
	item := w.queue[0]
	w.queue = w.queue[1:]
	return item, true
}

func (w *Worker) processTurn(item Item) {
	ctx := context.Background()
	turnID := uuid.New().String()

	wavBytes := collab.PackageWAV(item.Samples, item.SampleRate)

	transcript, err := w.collab.STT.Transcribe(ctx, wavBytes)
	if err != nil {
		w.log.Warnw("turn: stt failed", "err", err, "turnId", turnID)
		transcript = ""
	}
	if transcript == "" {
		w.emitSystem(signaling.SystemTranscriptionEmpty)
		return
	}

	if w.isDuplicate(transcript) {
		w.log.Debugw("turn: dropping duplicate transcript", "transcript", transcript, "turnId", turnID)
		return
	}
	w.recordTranscript(transcript)

	userEntry := chatlog.Entry{Role: "user", Message: transcript, PeerID: w.userID, Timestamp: time.Now()}
	w.chatLog.Append(w.roomID, userEntry)

	reply, err := w.collab.LLM.Reply(ctx, transcript)
	if err != nil {
		w.log.Warnw("turn: llm failed, using fallback reply", "err", err, "turnId", turnID)
		reply = collab.FallbackReply
	}
	replyEntry := chatlog.Entry{Role: "assistant", Message: reply, PeerID: w.botID, Timestamp: time.Now()}
	w.chatLog.Append(w.roomID, replyEntry)

	synth, err := w.collab.TTS.Synthesize(ctx, reply)
	if err != nil {
		w.log.Warnw("turn: tts failed, publishing transcript without audio", "err", err, "turnId", turnID)
	} else {
		pcm, err := w.collab.Decoder.Decode(ctx, synth.Audio, synth.Format)
		if err != nil {
			w.log.Warnw("turn: decode failed, publishing transcript without audio", "err", err, "turnId", turnID)
		} else {
			w.pacer.Enqueue(pcm)
		}
	}

	if w.metrics != nil {
		w.metrics.RecordTurnCompleted()
	}

	w.emitAssistant(AssistantEventPayload{
		TurnID:    turnID,
		UserEntry: userEntry,
		Reply:     replyEntry,
	})
}

func (w *Worker) isDuplicate(transcript string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if transcript == w.lastTranscript && time.Since(w.lastTranscriptAt) < DedupWindow {
		return true
	}
	return false
}

func (w *Worker) recordTranscript(transcript string) {
	w.mu.Lock()
	w.lastTranscript = transcript
	w.lastTranscriptAt = time.Now()
	w.mu.Unlock()
}

func (w *Worker) emitSystem(code string) {
	w.hub.Emit(signaling.SignalEvent{
		Type:    signaling.EventSystem,
		From:    w.botID,
		To:      w.userID,
		RoomID:  w.roomID,
		Payload: signaling.SystemPayload{Message: code},
		At:      time.Now(),
	})
}

func (w *Worker) emitAssistant(payload AssistantEventPayload) {
	w.hub.Emit(signaling.SignalEvent{
		Type:    signaling.EventAssistant,
		From:    w.botID,
		To:      w.userID,
		RoomID:  w.roomID,
		Payload: payload,
		At:      time.Now(),
	})
}
