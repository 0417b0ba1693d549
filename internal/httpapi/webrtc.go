// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package httpapi exposes the request surface: the SSE event stream,
// the signal relay POST, chat history read/append, and the one-shot
// HTTP assistant endpoint. Grounded on gin's engine.Group +
// c.ShouldBindJSON/c.JSON convention, adapted from a gRPC-fronted talk
// API to a set of plain gin handlers over the signaling hub, chat log
// and turn collaborators.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/signaling"
)

// WebRTCApi holds the dependencies backing the request surface.
type WebRTCApi struct {
	log     commons.Logger
	hub     *signaling.Hub
	chatLog *chatlog.Log
	assist  turnCollaborators
}

// turnCollaborators is the subset of internal/turn.Collaborators the
// HTTP assistant endpoint drives directly, without going through a
// session's Worker.
type turnCollaborators struct {
	STT collab.Recognizer
	LLM collab.LLM
	TTS collab.Synthesizer
}

// New builds a WebRTCApi. stt/llm/tts may be nil where that
// leg of the endpoint isn't configured; the handler degrades
// gracefully (skips STT if transcript is supplied directly, uses
// collab.FallbackReply if LLM is nil, omits audio if TTS is nil).
func New(hub *signaling.Hub, chatLog *chatlog.Log, stt collab.Recognizer, llm collab.LLM, tts collab.Synthesizer, log commons.Logger) *WebRTCApi {
	return &WebRTCApi{
		log:     log,
		hub:     hub,
		chatLog: chatLog,
		assist:  turnCollaborators{STT: stt, LLM: llm, TTS: tts},
	}
}

// RegisterRoutes wires the webrtc group onto engine, mirroring the
// engine.Group("v1/talk")-per-feature convention.
func RegisterRoutes(engine *gin.Engine, api *WebRTCApi) {
	apiv1 := engine.Group("/api/webrtc")
	{
		apiv1.GET("/events", api.Events)
		apiv1.POST("/signal", api.Signal)
		apiv1.GET("/chat", api.ChatHistory)
		apiv1.POST("/chat", api.PostChat)
		apiv1.POST("/assistant", api.Assistant)
	}
}

// Events opens an SSE stream for the requesting peer.
func (a *WebRTCApi) Events(c *gin.Context) {
	peerID := c.Query("peerId")
	roomID := c.Query("roomId")
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required"})
		return
	}

	sub := a.hub.OpenEventStream(peerID, roomID)
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-sub.Frames:
			if !ok {
				return false
			}
			_, err := io.WriteString(w, frame)
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

type signalRequest struct {
	Type    string `json:"type" binding:"required"`
	From    string `json:"from" binding:"required"`
	To      string `json:"to"`
	RoomID  string `json:"roomId" binding:"required"`
	Payload any    `json:"payload"`
}

// Signal relays one signaling event via "POST /api/webrtc/signal".
func (a *WebRTCApi) Signal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	a.hub.RelaySignal(signaling.SignalEvent{
		Type:    signaling.EventType(req.Type),
		From:    req.From,
		To:      req.To,
		RoomID:  req.RoomID,
		Payload: req.Payload,
		At:      time.Now(),
	})

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ChatHistory returns a room's bounded chat transcript via
// "GET /api/webrtc/chat".
func (a *WebRTCApi) ChatHistory(c *gin.Context) {
	roomID := c.Query("roomId")
	c.JSON(http.StatusOK, gin.H{"history": a.chatLog.History(roomID)})
}

type postChatRequest struct {
	RoomID  string `json:"roomId"`
	Role    string `json:"role" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// PostChat appends one entry to a room's chat log via
// "POST /api/webrtc/chat".
func (a *WebRTCApi) PostChat(c *gin.Context) {
	var req postChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	entry := chatlog.Entry{Role: req.Role, Message: req.Message, Timestamp: time.Now()}
	a.chatLog.Append(req.RoomID, entry)
	c.JSON(http.StatusOK, gin.H{"ok": true, "entry": entry})
}

type assistantRequest struct {
	RoomID             string `json:"roomId"`
	Transcript         string `json:"transcript"`
	FallbackTranscript string `json:"fallbackTranscript"`
	InputAudioBase64   string `json:"inputAudioBase64"`
	InputAudioMimeType string `json:"inputAudioMimeType"`
}

// Assistant drives one STT->LLM->TTS turn over plain HTTP. Unlike the
// WebRTC-track `assistant` event (which sets audioBase64/audioMimeType
// to null), this endpoint returns the synthesised audio inline since
// there is no media track to deliver it over.
func (a *WebRTCApi) Assistant(c *gin.Context) {
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	transcript := req.Transcript
	if transcript == "" {
		transcript = req.FallbackTranscript
	}
	if transcript == "" && req.InputAudioBase64 != "" {
		if a.assist.STT == nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "stt is not configured"})
			return
		}
		wav, err := decodeBase64(req.InputAudioBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "inputAudioBase64 is not valid base64"})
			return
		}
		text, err := a.assist.STT.Transcribe(ctx, wav)
		if err != nil {
			a.log.Warnw("httpapi: assistant stt failed", "err", err)
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "transcription failed"})
			return
		}
		transcript = text
	}
	if transcript == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "transcript, fallbackTranscript, or inputAudioBase64 is required"})
		return
	}

	replyText, err := a.reply(ctx, transcript)
	if err != nil {
		a.log.Warnw("httpapi: assistant llm failed, using fallback reply", "err", err)
		replyText = collab.FallbackReply
	}
	replyEntry := chatlog.Entry{Role: "assistant", Message: replyText, Timestamp: time.Now()}

	resp := gin.H{"ok": true, "transcript": transcript, "reply": replyEntry}

	if a.assist.TTS != nil {
		synth, err := a.assist.TTS.Synthesize(ctx, replyText)
		if err != nil {
			a.log.Warnw("httpapi: assistant tts failed, returning text only", "err", err)
		} else {
			resp["audioBase64"] = encodeBase64(synth.Audio)
			resp["audioMimeType"] = mimeForFormat(synth.Format)
		}
	}

	if req.RoomID != "" {
		a.chatLog.Append(req.RoomID, chatlog.Entry{Role: "user", Message: transcript, Timestamp: time.Now()})
		a.chatLog.Append(req.RoomID, replyEntry)
	}

	c.JSON(http.StatusOK, resp)
}

func (a *WebRTCApi) reply(ctx context.Context, transcript string) (string, error) {
	if a.assist.LLM == nil {
		return collab.FallbackReply, nil
	}
	return a.assist.LLM.Reply(ctx, transcript)
}
