// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package collab

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-resty/resty/v2"
	"github.com/mattn/go-shellwords"

	"github.com/friday-labs/voice-bridge/internal/commons"
)

// Synthesis is a compressed audio blob plus a format tag.
type Synthesis struct {
	Audio  []byte
	Format string
}

// Synthesizer turns reply text into synthesised speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Synthesis, error)
}

// ExecSynthesizer shells out to a local TTS binary invoked with the
// text and an output path, grounded on loqalabs' internal/tts/exec.go
// invocation shape, adapted from the loqalabs streaming-stdin protocol
// to a file-output contract: invoked with text and an output path, and
// expected to write a container file there.
type ExecSynthesizer struct {
	argv   []string
	format string
}

func NewExecSynthesizer(command, format string) (*ExecSynthesizer, error) {
	if format == "" {
		format = "ogg"
	}
	if command == "" {
		return &ExecSynthesizer{format: format}, nil
	}
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("collab: parse tts command: %w", err)
	}
	return &ExecSynthesizer{argv: argv, format: format}, nil
}

func (s *ExecSynthesizer) Synthesize(ctx context.Context, text string) (Synthesis, error) {
	if len(s.argv) == 0 {
		return Synthesis{}, fmt.Errorf("collab: tts binary not configured")
	}

	outFile, err := os.CreateTemp("", "voicebridge_tts_*."+s.format)
	if err != nil {
		return Synthesis{}, fmt.Errorf("collab: tts temp file: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, TtsTimeout)
	defer cancel()

	args := append(append([]string{}, s.argv[1:]...), "--text", text, "--out", outPath)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Synthesis{}, fmt.Errorf("collab: tts exec failed: %w (%s)", err, stderr.String())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return Synthesis{}, fmt.Errorf("collab: read tts output: %w", err)
	}
	return Synthesis{Audio: data, Format: s.format}, nil
}

// RemoteSynthesizer POSTs a JSON synthesis request to a remote TTS
// service and returns the raw audio bytes in the response body.
type RemoteSynthesizer struct {
	client *resty.Client
	url    string
	token  string
	model  string
	voice  string
	format string
}

func NewRemoteSynthesizer(client *resty.Client, url, token, model, voice, format string) *RemoteSynthesizer {
	if format == "" {
		format = "ogg"
	}
	return &RemoteSynthesizer{client: client, url: url, token: token, model: model, voice: voice, format: format}
}

func (s *RemoteSynthesizer) Synthesize(ctx context.Context, text string) (Synthesis, error) {
	if s.url == "" {
		return Synthesis{}, fmt.Errorf("collab: remote tts not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, TtsTimeout)
	defer cancel()

	body := map[string]any{
		"model":           s.model,
		"voice":           s.voice,
		"input":           text,
		"response_format": s.format,
	}

	req := s.client.R().SetContext(ctx).SetBody(body)
	if s.token != "" {
		req.SetAuthToken(s.token)
	}
	resp, err := req.Post(s.url)
	if err != nil {
		return Synthesis{}, fmt.Errorf("collab: remote tts request: %w", err)
	}
	if resp.IsError() {
		return Synthesis{}, fmt.Errorf("collab: remote tts status %d", resp.StatusCode())
	}
	return Synthesis{Audio: resp.Body(), Format: s.format}, nil
}

// SynthesizerChain tries a primary local synthesizer, falling back to
// remote on failure.
type SynthesizerChain struct {
	log     commons.Logger
	primary Synthesizer
	remote  Synthesizer
}

func NewSynthesizerChain(primary, remote Synthesizer, log commons.Logger) *SynthesizerChain {
	return &SynthesizerChain{primary: primary, remote: remote, log: log}
}

func (c *SynthesizerChain) Synthesize(ctx context.Context, text string) (Synthesis, error) {
	if c.primary != nil {
		out, err := c.primary.Synthesize(ctx, text)
		if err == nil && len(out.Audio) > 0 {
			return out, nil
		}
		if err != nil {
			c.log.Warnw("collab: primary tts failed, trying remote", "err", err)
		}
	}
	if c.remote != nil {
		return c.remote.Synthesize(ctx, text)
	}
	return Synthesis{}, fmt.Errorf("collab: no tts collaborator available")
}
