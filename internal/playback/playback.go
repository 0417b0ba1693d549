// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package playback implements the outbound audio pacer: it drains
// queued PCM-16 items at a fixed 480-sample (10ms @ 48kHz) cadence onto
// a caller-supplied sink, auto-starting on first enqueue and
// auto-stopping when the queue drains. Grounded on
// internal/channel/webrtc/streamer.go's runOutputWriter ticker loop
// (bufferAndSendOutput / clearOutputBuffer), generalised from a fixed
// dual-buffer scheme to an item-queue-with-cursor model.
package playback

import (
	"sync"
	"time"

	"github.com/friday-labs/voice-bridge/internal/commons"
)

const (
	SampleRate    = 48000
	FrameDuration = 10 * time.Millisecond
	FrameSamples  = SampleRate / 100 // 480
)

// Sink receives one paced frame at a time. Implementations forward the
// frame to the outbound WebRTC audio track (internal/mediart).
type Sink interface {
	PushFrame(samples []int16) error
}

type item struct {
	samples []int16
	cursor  int
}

// Pacer owns one session's outbound audio queue and ticker. Not safe for
// use from more than one goroutine issuing Enqueue/Clear concurrently
// with itself, aside from the internal mutex guarding queue state — the
// pacer is single-flight per session, which callers satisfy by owning
// one Pacer per session.
type Pacer struct {
	log  commons.Logger
	sink Sink

	mu      sync.Mutex
	queue   []*item
	running bool
	stopCh  chan struct{}
}

// New builds a Pacer bound to a sink. The pacer does nothing until the
// first non-empty Enqueue call.
func New(sink Sink, log commons.Logger) *Pacer {
	return &Pacer{sink: sink, log: log}
}

// Enqueue appends PCM-16 samples to the playback queue and starts the
// pacing goroutine if it is not already running. Empty input is ignored.
func (p *Pacer) Enqueue(samples []int16) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, &item{samples: samples})
	needStart := !p.running
	if needStart {
		p.running = true
		p.stopCh = make(chan struct{})
	}
	stopCh := p.stopCh
	p.mu.Unlock()

	if needStart {
		go p.run(stopCh)
	}
}

// Clear drops all queued audio and stops the pacer without waiting for
// the queue to drain naturally. Used for barge-in interruption and
// teardown.
func (p *Pacer) Clear() {
	p.mu.Lock()
	p.queue = nil
	running := p.running
	stopCh := p.stopCh
	p.running = false
	p.mu.Unlock()

	if running && stopCh != nil {
		close(stopCh)
	}
}

// Running reports whether the pacer is currently ticking.
func (p *Pacer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pacer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, empty := p.nextFrame()
			if frame == nil {
				if empty {
					p.finishRun(stopCh)
					return
				}
				continue
			}
			if err := p.sink.PushFrame(frame); err != nil {
				p.log.Warnw("playback: sink push failed, clearing queue", "err", err)
				p.Clear()
				return
			}
		}
	}
}

func (p *Pacer) finishRun(stopCh chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Only stop the run this stopCh belongs to; a concurrent Enqueue may
	// have already started a fresh one after we observed an empty queue.
	if p.stopCh == stopCh {
		p.running = false
	}
}

// nextFrame advances the queue cursor by one 480-sample frame,
// zero-padding short tails, and reports whether the queue was already
// empty (nothing to advance).
func (p *Pacer) nextFrame() (frame []int16, empty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil, true
	}

	current := p.queue[0]
	remaining := len(current.samples) - current.cursor
	take := remaining
	if take > FrameSamples {
		take = FrameSamples
	}

	out := make([]int16, FrameSamples)
	copy(out, current.samples[current.cursor:current.cursor+take])
	current.cursor += take

	if current.cursor >= len(current.samples) {
		p.queue = p.queue[1:]
	}

	return out, false
}
