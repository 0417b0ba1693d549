// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config reads the environment-variable configuration recognised
// by the voice bridge: collaborator endpoints, credentials, and binary
// paths. There is no config file and no dashboard payload.
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds every environment-recognised option.
type Config struct {
	// Local collaborator binaries.
	SttBinaryPath     string
	TtsBinaryPath     string
	DecoderBinaryPath string

	// LLM endpoint.
	LlmEndpointURL string
	LlmAPIKey      string
	LlmModelID     string

	// STT/TTS remote fallback endpoints and tuning.
	SttRemoteURL string
	TtsRemoteURL string
	SttModelID   string
	TtsModelID   string
	TtsVoice     string
	TtsFormat    string

	// Auth headers relayed to collaborators.
	GatewayToken string
	SessionKey   string

	// HTTP surface.
	HTTPBind string

	// Usage ledger.
	LedgerDBPath string

	LogLevel string
}

// Load reads configuration from the process environment via viper's
// AutomaticEnv, mirroring the integration-api config package's
// InitConfig/setDefault pattern.
func Load() *Config {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		SttBinaryPath:     v.GetString("STT_BINARY_PATH"),
		TtsBinaryPath:     v.GetString("TTS_BINARY_PATH"),
		DecoderBinaryPath: v.GetString("DECODER_BINARY_PATH"),
		LlmEndpointURL:    v.GetString("LLM_ENDPOINT_URL"),
		LlmAPIKey:         v.GetString("LLM_API_KEY"),
		LlmModelID:        v.GetString("LLM_MODEL_ID"),
		SttRemoteURL:      v.GetString("STT_REMOTE_URL"),
		TtsRemoteURL:      v.GetString("TTS_REMOTE_URL"),
		SttModelID:        v.GetString("STT_MODEL_ID"),
		TtsModelID:        v.GetString("TTS_MODEL_ID"),
		TtsVoice:          v.GetString("TTS_VOICE"),
		TtsFormat:         v.GetString("TTS_FORMAT"),
		GatewayToken:      v.GetString("GATEWAY_TOKEN"),
		SessionKey:        v.GetString("SESSION_KEY"),
		HTTPBind:          v.GetString("HTTP_BIND"),
		LedgerDBPath:      v.GetString("LEDGER_DB_PATH"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STT_BINARY_PATH", "")
	v.SetDefault("TTS_BINARY_PATH", "")
	v.SetDefault("DECODER_BINARY_PATH", "ffmpeg")
	v.SetDefault("LLM_ENDPOINT_URL", "")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL_ID", "")
	v.SetDefault("STT_REMOTE_URL", "")
	v.SetDefault("TTS_REMOTE_URL", "")
	v.SetDefault("STT_MODEL_ID", "")
	v.SetDefault("TTS_MODEL_ID", "")
	v.SetDefault("TTS_VOICE", "")
	v.SetDefault("TTS_FORMAT", "ogg")
	v.SetDefault("GATEWAY_TOKEN", "")
	v.SetDefault("SESSION_KEY", "")
	v.SetDefault("HTTP_BIND", "0.0.0.0:8080")
	v.SetDefault("LEDGER_DB_PATH", envOr("LEDGER_DB_PATH", "usage-ledger.db"))
	v.SetDefault("LOG_LEVEL", "info")
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
