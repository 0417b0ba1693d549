// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package collab implements the pluggable STT/TTS/LLM/media-decoder
// collaborators as local-binary-first, remote-HTTP-fallback
// chains. Grounded on loqalabs-loqa-core's internal/stt/exec_recognizer.go
// and internal/tts/exec.go for the local-exec shape (mattn/go-shellwords
// command parsing, os/exec invocation, temp-file handling) and on
// internal/llm/ollama.go for the HTTP+JSON call shape, adapted from
// streaming NDJSON to one-shot request/response contracts and rebuilt
// on resty instead of bare net/http.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mattn/go-shellwords"

	"github.com/friday-labs/voice-bridge/internal/audio"
	"github.com/friday-labs/voice-bridge/internal/commons"
)

const (
	SttTimeout    = 30 * time.Second
	TtsTimeout    = 30 * time.Second
	LlmTimeout    = 30 * time.Second
	DecodeTimeout = 25 * time.Second
	ProbeTimeout  = 3 * time.Second
)

// Recognizer transcribes one utterance's WAV bytes to text.
type Recognizer interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// ExecRecognizer shells out to a locally installed STT binary, writing
// the utterance to a temp WAV file and reading the transcript from
// stdout. Grounded on exec_recognizer.go's temp-file + os/exec pattern.
type ExecRecognizer struct {
	argv []string
}

// NewExecRecognizer parses a configured command string (e.g. "whisper
// --model base") into argv. An empty command string yields a recognizer
// that always reports itself unavailable, so the chain falls through to
// remote immediately.
func NewExecRecognizer(command string) (*ExecRecognizer, error) {
	if command == "" {
		return &ExecRecognizer{}, nil
	}
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("collab: parse stt command: %w", err)
	}
	return &ExecRecognizer{argv: argv}, nil
}

func (r *ExecRecognizer) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(r.argv) == 0 {
		return "", fmt.Errorf("collab: stt binary not configured")
	}

	file, err := os.CreateTemp("", "voicebridge_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("collab: stt temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(wav); err != nil {
		return "", fmt.Errorf("collab: write stt temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("collab: close stt temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, SttTimeout)
	defer cancel()

	args := append(append([]string{}, r.argv[1:]...), "--audio", file.Name())
	cmd := exec.CommandContext(ctx, r.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("collab: stt exec failed: %w (%s)", err, stderr.String())
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		// Some binaries print the transcript as bare text rather than JSON.
		return string(bytes.TrimSpace(stdout.Bytes())), nil
	}
	return result.Text, nil
}

// RemoteRecognizer uploads the WAV utterance to an HTTP transcription
// service via multipart form, trying each of the configured model ids
// in turn until one produces non-empty text.
type RemoteRecognizer struct {
	client *resty.Client
	url    string
	token  string
	models []string
}

// NewRemoteRecognizer builds a remote STT chain. url may be empty, in
// which case Transcribe always fails fast.
func NewRemoteRecognizer(client *resty.Client, url, token string, models []string) *RemoteRecognizer {
	return &RemoteRecognizer{client: client, url: url, token: token, models: models}
}

func (r *RemoteRecognizer) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if r.url == "" {
		return "", fmt.Errorf("collab: remote stt not configured")
	}

	models := r.models
	if len(models) == 0 {
		models = []string{""}
	}

	var lastErr error
	for _, model := range models {
		text, err := r.transcribeWithModel(ctx, wav, model)
		if err != nil {
			lastErr = err
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

func (r *RemoteRecognizer) transcribeWithModel(ctx context.Context, wav []byte, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, SttTimeout)
	defer cancel()

	var result struct {
		Text string `json:"text"`
	}
	req := r.client.R().
		SetContext(ctx).
		SetFileReader("audio", "utterance.wav", bytes.NewReader(wav)).
		SetResult(&result)
	if r.token != "" {
		req.SetAuthToken(r.token)
	}
	if model != "" {
		req.SetFormData(map[string]string{"model": model})
	}

	resp, err := req.Post(r.url)
	if err != nil {
		return "", fmt.Errorf("collab: remote stt request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("collab: remote stt status %d", resp.StatusCode())
	}
	return result.Text, nil
}

// RecognizerChain tries a primary local recognizer, then a remote
// fallback.
type RecognizerChain struct {
	log     commons.Logger
	primary Recognizer
	remote  Recognizer
}

func NewRecognizerChain(primary, remote Recognizer, log commons.Logger) *RecognizerChain {
	return &RecognizerChain{primary: primary, remote: remote, log: log}
}

func (c *RecognizerChain) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	if c.primary != nil {
		text, err := c.primary.Transcribe(ctx, wavBytes)
		if err == nil && text != "" {
			return text, nil
		}
		if err != nil {
			c.log.Warnw("collab: primary stt failed, trying remote", "err", err)
		}
	}
	if c.remote != nil {
		return c.remote.Transcribe(ctx, wavBytes)
	}
	return "", nil
}

// PackageWAV is a thin wrapper kept here (rather than duplicated at
// every call site) around audio.ToWAV for turn-pipeline callers.
func PackageWAV(samples []int16, sampleRate int) []byte {
	return audio.ToWAV(samples, sampleRate)
}
