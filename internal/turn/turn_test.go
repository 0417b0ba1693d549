// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/playback"
	"github.com/friday-labs/voice-bridge/internal/signaling"
	"github.com/friday-labs/voice-bridge/internal/vad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSTT struct{ text string }

func (s stubSTT) Transcribe(ctx context.Context, wav []byte) (string, error) { return s.text, nil }

type failingLLM struct{}

func (failingLLM) Reply(ctx context.Context, transcript string) (string, error) {
	return "", errors.New("llm down")
}

type stubLLM struct{ reply string }

func (s stubLLM) Reply(ctx context.Context, transcript string) (string, error) { return s.reply, nil }

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string) (collab.Synthesis, error) {
	return collab.Synthesis{Audio: []byte("fake-audio"), Format: "ogg"}, nil
}

type stubDecoder struct{}

func (stubDecoder) Decode(ctx context.Context, blob []byte, format string) ([]int16, error) {
	return make([]int16, 480), nil
}

type noopSink struct{}

func (noopSink) PushFrame(samples []int16) error { return nil }

func newTestWorker(stt collab.Recognizer, llm collab.LLM) (*Worker, *signaling.Hub, *chatlog.Log) {
	hub := signaling.New(commons.NewNopLogger())
	log := chatlog.New()
	pacer := playback.New(noopSink{}, commons.NewNopLogger())
	w := NewWorker("room-1", "user-1", "friday-voice-bot-1", Collaborators{
		STT: stt, LLM: llm, TTS: stubTTS{}, Decoder: stubDecoder{},
	}, log, pacer, hub, nil, commons.NewNopLogger())
	return w, hub, log
}

func drainFrames(t *testing.T, sub *signaling.Subscriber, n int, timeout time.Duration) []string {
	t.Helper()
	out := make([]string, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case f := <-sub.Frames:
			out = append(out, f)
		case <-deadline:
			require.Fail(t, "timed out waiting for frames")
		}
	}
	return out
}

func TestWorkerHappyPathEmitsAssistantEvent(t *testing.T) {
	w, hub, log := newTestWorker(stubSTT{text: "hello there"}, stubLLM{reply: "hi!"})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()
	<-sub.Frames // ready
	<-sub.Frames // connected

	w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})

	frames := drainFrames(t, sub, 2, time.Second) // voice_turn_detected + assistant
	assert.Contains(t, frames[0], "voice_turn_detected")
	assert.Contains(t, frames[1], "assistant")

	hist := log.History("room-1")
	require.Len(t, hist, 2)
	assert.Equal(t, "hello there", hist[0].Message)
	assert.Equal(t, "hi!", hist[1].Message)
}

func TestWorkerEmptyTranscriptEmitsSystemEvent(t *testing.T) {
	w, hub, _ := newTestWorker(stubSTT{text: ""}, stubLLM{reply: "unused"})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()
	<-sub.Frames
	<-sub.Frames

	w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})

	frames := drainFrames(t, sub, 2, time.Second) // voice_turn_detected + transcription_empty
	assert.Contains(t, frames[1], "transcription_empty")
}

func TestWorkerLLMFailureUsesFallbackReply(t *testing.T) {
	w, hub, log := newTestWorker(stubSTT{text: "hello"}, failingLLM{})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()
	<-sub.Frames
	<-sub.Frames

	w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})
	drainFrames(t, sub, 2, time.Second)

	hist := log.History("room-1")
	require.Len(t, hist, 2)
	assert.Equal(t, collab.FallbackReply, hist[1].Message)
}

func TestWorkerDeduplicatesRepeatedTranscript(t *testing.T) {
	var mu sync.Mutex
	assistantCount := 0

	w, hub, _ := newTestWorker(stubSTT{text: "hello"}, stubLLM{reply: "hi"})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()
	<-sub.Frames
	<-sub.Frames

	go func() {
		for f := range sub.Frames {
			if contains(f, "\"assistant\"") {
				mu.Lock()
				assistantCount++
				mu.Unlock()
			}
		}
	}()

	w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})
	time.Sleep(100 * time.Millisecond)
	w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, assistantCount, "second identical transcript within the dedup window must be dropped")
}

func TestWorkerQueueDepthCappedAtThree(t *testing.T) {
	w, hub, _ := newTestWorker(slowSTT{delay: 500 * time.Millisecond, text: "hi"}, stubLLM{reply: "hi"})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()
	<-sub.Frames
	<-sub.Frames
	go func() {
		for range sub.Frames {
		}
	}()

	for i := 0; i < 6; i++ {
		w.Enqueue(vad.Utterance{Samples: make([]int16, 24000), SampleRate: 48000})
	}

	assert.LessOrEqual(t, w.QueueDepth(), MaxQueueDepth)
}

type slowSTT struct {
	delay time.Duration
	text  string
}

func (s slowSTT) Transcribe(ctx context.Context, wav []byte) (string, error) {
	time.Sleep(s.delay)
	return s.text, nil
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
