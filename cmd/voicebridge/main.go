// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/friday-labs/voice-bridge/internal/chatlog"
	"github.com/friday-labs/voice-bridge/internal/collab"
	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/friday-labs/voice-bridge/internal/config"
	"github.com/friday-labs/voice-bridge/internal/httpapi"
	"github.com/friday-labs/voice-bridge/internal/ledger"
	"github.com/friday-labs/voice-bridge/internal/mediart"
	"github.com/friday-labs/voice-bridge/internal/session"
	"github.com/friday-labs/voice-bridge/internal/signaling"
	"github.com/friday-labs/voice-bridge/internal/telemetry"
	"github.com/friday-labs/voice-bridge/internal/turn"
)

func main() {
	cfg := config.Load()

	logger, err := commons.NewLogger(commons.LogConfig{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	metrics, err := telemetry.New()
	if err != nil {
		logger.Errorw("failed to build telemetry, continuing without metrics", "err", err)
		metrics = nil
	}

	ledgerStore, err := ledger.Open(cfg.LedgerDBPath)
	if err != nil {
		logger.Warnw("usage ledger unavailable, usage summaries will be empty", "err", err, "path", cfg.LedgerDBPath)
		ledgerStore = nil
	}

	hub := signaling.New(logger)
	hub.SetMetrics(metrics)
	chatLog := chatlog.New()

	var rtcEngine mediart.Engine = mediart.NewPionEngine(logger)

	httpClient := resty.New().SetTimeout(30 * time.Second)

	collaboratorFactory := func() turn.Collaborators {
		return buildCollaborators(cfg, httpClient, logger)
	}
	probeFactory := func() []collab.ProbeTarget {
		return probeTargets(cfg)
	}

	// NewManager registers itself as the hub's dispatcher; no reference
	// to the manager is needed after construction.
	session.NewManager(hub, rtcEngine, chatLog, metrics, collaboratorFactory, probeFactory, logger)

	assistCollab := buildCollaborators(cfg, httpClient, logger)
	webrtcAPI := httpapi.New(hub, chatLog, assistCollab.STT, assistCollab.LLM, assistCollab.TTS, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
	}))

	httpapi.RegisterRoutes(router, webrtcAPI)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if ledgerStore != nil {
		router.GET("/api/usage", func(c *gin.Context) {
			since := time.Now().Add(-24 * time.Hour)
			summary, err := ledgerStore.Summary(c.Request.Context(), since)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, summary)
		})
	}

	srv := &http.Server{
		Addr:    cfg.HTTPBind,
		Handler: router,
	}

	go func() {
		logger.Infow("voice bridge listening", "addr", cfg.HTTPBind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("http server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("http server shutdown error", "err", err)
	}
	if metrics != nil {
		if err := metrics.Shutdown(ctx); err != nil {
			logger.Errorw("telemetry shutdown error", "err", err)
		}
	}
	if ledgerStore != nil {
		if err := ledgerStore.Close(); err != nil {
			logger.Errorw("ledger close error", "err", err)
		}
	}
}

// buildCollaborators assembles the STT/LLM/TTS/decode chain for one
// session (or the standalone HTTP assistant endpoint) from the process
// configuration, local-binary-first with remote-HTTP fallback.
func buildCollaborators(cfg *config.Config, httpClient *resty.Client, logger commons.Logger) turn.Collaborators {
	var sttPrimary collab.Recognizer
	if exec, err := collab.NewExecRecognizer(cfg.SttBinaryPath); err != nil {
		logger.Warnw("failed to configure local stt binary", "err", err)
	} else {
		sttPrimary = exec
	}
	remoteSTT := collab.NewRemoteRecognizer(httpClient, cfg.SttRemoteURL, cfg.GatewayToken, []string{cfg.SttModelID})
	sttChain := collab.NewRecognizerChain(sttPrimary, remoteSTT, logger)

	var ttsPrimary collab.Synthesizer
	if exec, err := collab.NewExecSynthesizer(cfg.TtsBinaryPath, cfg.TtsFormat); err != nil {
		logger.Warnw("failed to configure local tts binary", "err", err)
	} else {
		ttsPrimary = exec
	}
	remoteTTS := collab.NewRemoteSynthesizer(httpClient, cfg.TtsRemoteURL, cfg.GatewayToken, cfg.TtsModelID, cfg.TtsVoice, cfg.TtsFormat)
	ttsChain := collab.NewSynthesizerChain(ttsPrimary, remoteTTS, logger)

	sessionID := uuid.NewString()
	llm := collab.NewHTTPLLM(httpClient, cfg.LlmEndpointURL, cfg.LlmAPIKey, cfg.LlmModelID, cfg.SessionKey, sessionID)

	var decoder collab.Decoder
	if d, err := collab.NewExecDecoder(cfg.DecoderBinaryPath); err != nil {
		logger.Warnw("failed to configure media decoder", "err", err)
	} else {
		decoder = d
	}

	return turn.Collaborators{
		STT:     sttChain,
		LLM:     llm,
		TTS:     ttsChain,
		Decoder: decoder,
	}
}

func probeTargets(cfg *config.Config) []collab.ProbeTarget {
	return []collab.ProbeTarget{
		{Name: "stt", Command: cfg.SttBinaryPath, RemoteAPIKey: firstNonEmpty(cfg.SttRemoteURL, cfg.GatewayToken), MissingSystem: signaling.SystemSTTBinaryMissing},
		{Name: "tts", Command: cfg.TtsBinaryPath, RemoteAPIKey: firstNonEmpty(cfg.TtsRemoteURL, cfg.GatewayToken), MissingSystem: signaling.SystemTTSBinaryMissing},
		{Name: "decoder", Command: cfg.DecoderBinaryPath, MissingSystem: signaling.SystemFfmpegMissing},
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
