// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package vad implements the deterministic voice-activity/turn segmenter:
// dual-threshold RMS with hysteresis, a pre-roll ring buffer to avoid
// clipping word onsets, and min/max utterance duration bounds. Grounded
// on internal/channel/webrtc/streamer.go's buffering discipline
// (bufferAndSendInput/clearInputBuffer copy-on-append pattern),
// generalised into a standalone, engine-agnostic segmenter driven by
// internal/audio.Frame values.
package vad

import (
	"time"

	"github.com/friday-labs/voice-bridge/internal/audio"
)

const (
	StartThreshold  = 0.015
	HoldThreshold   = 0.008
	SilenceHangover = 2000 * time.Millisecond
	MinUtterance    = 500 * time.Millisecond
	MaxUtterance    = 18000 * time.Millisecond
	PreRollFrames   = 22
)

// Utterance is one finalised, contiguous span of speech ready for the
// turn pipeline.
type Utterance struct {
	Samples    []int16
	SampleRate int
}

// Clock is injected so tests can control time deterministically.
type Clock func() time.Time

// Segmenter tracks in-speech state for a single session's inbound audio
// callback. It is not safe for concurrent use — the audio callback is
// the sole owner of VAD state.
type Segmenter struct {
	now Clock

	preRoll [][]int16

	inSpeech          bool
	utteranceFrames   [][]int16
	utteranceSamples  int
	utteranceSampleRt int
	utteranceStarted  time.Time
	lastVoiceAt       time.Time
}

// New builds a Segmenter. clock defaults to time.Now when nil.
func New(clock Clock) *Segmenter {
	if clock == nil {
		clock = time.Now
	}
	return &Segmenter{now: clock}
}

// Reset clears all in-progress utterance state, dropping any buffered
// speech, but preserves the pre-roll ring so onset detection keeps
// working immediately after a reset.
func (s *Segmenter) Reset() {
	s.inSpeech = false
	s.utteranceFrames = nil
	s.utteranceSamples = 0
	s.utteranceSampleRt = 0
}

// PushFrame processes one inbound frame and returns a finalised
// Utterance when the current speech span just completed. finalized is
// false on every call that does not finalise an utterance, including
// rejected frames and ordinary in-speech continuation. started reports
// the idle->in-speech onset transition, once, on the frame that causes
// it — callers use it to detect barge-in over already-playing audio.
func (s *Segmenter) PushFrame(f audio.Frame) (utterance Utterance, finalized bool, started bool) {
	if !f.Valid() {
		return Utterance{}, false, false
	}

	mono := audio.Downmix(f)
	s.pushPreRoll(mono)

	level := audio.RMS(mono)
	now := s.now()

	if !s.inSpeech && level >= StartThreshold {
		s.inSpeech = true
		started = true
		s.utteranceFrames = make([][]int16, 0, len(s.preRoll)+8)
		for _, pf := range s.preRoll {
			s.utteranceFrames = append(s.utteranceFrames, audio.CopyFrame(pf))
		}
		s.utteranceSamples = totalSamples(s.utteranceFrames)
		s.utteranceSampleRt = f.SampleRate
		s.utteranceStarted = now
		s.lastVoiceAt = now
	}

	if !s.inSpeech {
		return Utterance{}, false, started
	}

	frameCopy := audio.CopyFrame(mono)
	s.utteranceFrames = append(s.utteranceFrames, frameCopy)
	s.utteranceSamples += len(frameCopy)
	if level >= HoldThreshold {
		s.lastVoiceAt = now
	}

	u, ok := s.evaluateFinalisation(now)
	return u, ok, started
}

func (s *Segmenter) evaluateFinalisation(now time.Time) (Utterance, bool) {
	utteranceMs := audio.DurationMs(s.utteranceSamples, s.utteranceSampleRt)
	voicedMs := float64(s.lastVoiceAt.Sub(s.utteranceStarted)) / float64(time.Millisecond)
	silenceMs := float64(now.Sub(s.lastVoiceAt)) / float64(time.Millisecond)
	maxMs := float64(MaxUtterance) / float64(time.Millisecond)
	minMs := float64(MinUtterance) / float64(time.Millisecond)
	silenceLimitMs := float64(SilenceHangover) / float64(time.Millisecond)

	forcedByMax := utteranceMs >= maxMs
	silenceTimedOut := silenceMs >= silenceLimitMs

	if !forcedByMax && silenceTimedOut && voicedMs < minMs {
		// Too short to be a turn: drop the buffered span and go idle.
		s.Reset()
		return Utterance{}, false
	}
	if !forcedByMax && !silenceTimedOut {
		return Utterance{}, false
	}

	frames := s.utteranceFrames
	sampleRate := s.utteranceSampleRt
	s.Reset()

	return Utterance{
		Samples:    audio.Concat(frames),
		SampleRate: sampleRate,
	}, true
}

func (s *Segmenter) pushPreRoll(mono []int16) {
	s.preRoll = append(s.preRoll, audio.CopyFrame(mono))
	if len(s.preRoll) > PreRollFrames {
		s.preRoll = s.preRoll[len(s.preRoll)-PreRollFrames:]
	}
}

func totalSamples(frames [][]int16) int {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	return n
}
