// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/signaling"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLLM struct{ reply string }

func (s stubLLM) Reply(ctx context.Context, transcript string) (string, error) { return s.reply, nil }

type failingLLM struct{}

func (failingLLM) Reply(ctx context.Context, transcript string) (string, error) {
	return "", assert.AnError
}

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string) (collab.Synthesis, error) {
	return collab.Synthesis{Audio: []byte("audio-bytes"), Format: "wav"}, nil
}

type stubSTT struct{ transcript string }

func (s stubSTT) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return s.transcript, nil
}

func newTestEngine(llm collab.LLM, tts collab.Synthesizer) (*gin.Engine, *chatlog.Log, *signaling.Hub) {
	return newTestEngineWithSTT(nil, llm, tts)
}

func newTestEngineWithSTT(stt collab.Recognizer, llm collab.LLM, tts collab.Synthesizer) (*gin.Engine, *chatlog.Log, *signaling.Hub) {
	hub := signaling.New(commons.NewNopLogger())
	log := chatlog.New()
	api := New(hub, log, stt, llm, tts, commons.NewNopLogger())

	engine := gin.New()
	RegisterRoutes(engine, api)
	return engine, log, hub
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestSignalRejectsMalformedPayload(t *testing.T) {
	engine, _, _ := newTestEngine(stubLLM{}, stubTTS{})
	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/signal", map[string]string{"type": "offer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignalToPeerWithoutStreamReturnsOK(t *testing.T) {
	engine, _, hub := newTestEngine(stubLLM{}, stubTTS{})
	sub := hub.OpenEventStream("user-1", "room-1")
	defer sub.Close()

	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/signal", map[string]any{
		"type":   "candidate",
		"from":   "user-1",
		"to":     "peer-2",
		"roomId": "room-1",
		"payload": map[string]string{
			"candidate": "candidate:1 udp",
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatHistoryRoundTrip(t *testing.T) {
	engine, log, _ := newTestEngine(stubLLM{}, stubTTS{})
	log.Append("room-1", chatlog.Entry{Role: "user", Message: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/api/webrtc/chat?roomId=room-1", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		History []chatlog.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.History, 1)
	assert.Equal(t, "hi", out.History[0].Message)
}

func TestPostChatRejectsMissingFields(t *testing.T) {
	engine, _, _ := newTestEngine(stubLLM{}, stubTTS{})
	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/chat", map[string]string{"roomId": "room-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssistantHappyPathReturnsAudio(t *testing.T) {
	engine, log, _ := newTestEngine(stubLLM{reply: "hi there"}, stubTTS{})

	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/assistant", map[string]string{
		"roomId":     "room-1",
		"transcript": "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	reply, ok := out["reply"].(map[string]any)
	require.True(t, ok, "reply must be a chat entry object")
	assert.Equal(t, "assistant", reply["role"])
	assert.Equal(t, "hi there", reply["message"])
	assert.NotEmpty(t, out["audioBase64"])
	assert.Equal(t, "audio/wav", out["audioMimeType"])

	assert.Len(t, log.History("room-1"), 2)
}

func TestAssistantFallsBackToStaticReplyOnLLMFailure(t *testing.T) {
	engine, _, _ := newTestEngine(failingLLM{}, stubTTS{})

	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/assistant", map[string]string{
		"transcript": "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	reply, ok := out["reply"].(map[string]any)
	require.True(t, ok, "reply must be a chat entry object")
	assert.Equal(t, collab.FallbackReply, reply["message"])
}

func TestAssistantRequiresTranscript(t *testing.T) {
	engine, _, _ := newTestEngine(stubLLM{}, stubTTS{})
	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/assistant", map[string]string{"roomId": "room-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssistantTranscribesSuppliedAudio(t *testing.T) {
	engine, _, _ := newTestEngineWithSTT(stubSTT{transcript: "hello from audio"}, stubLLM{reply: "hi there"}, stubTTS{})

	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/assistant", map[string]string{
		"roomId":             "room-1",
		"inputAudioBase64":   base64.StdEncoding.EncodeToString([]byte("wav-bytes")),
		"inputAudioMimeType": "audio/wav",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "hello from audio", out["transcript"])
}

func TestAssistantRejectsAudioWithoutSTTConfigured(t *testing.T) {
	engine, _, _ := newTestEngine(stubLLM{}, stubTTS{})
	rec := doJSON(t, engine, http.MethodPost, "/api/webrtc/assistant", map[string]string{
		"inputAudioBase64": base64.StdEncoding.EncodeToString([]byte("wav-bytes")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
