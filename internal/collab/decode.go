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

	"github.com/mattn/go-shellwords"

	"github.com/friday-labs/voice-bridge/internal/playback"
)

// Decoder turns a compressed audio container (as produced by a TTS
// collaborator) into raw signed-16-bit little-endian mono PCM at the
// playback sample rate.
type Decoder interface {
	Decode(ctx context.Context, blob []byte, format string) ([]int16, error)
}

// ExecDecoder shells out to a local media-decoder binary (ffmpeg-shaped:
// reads a container file, writes raw PCM), grounded on the same
// os/exec + temp-file pattern used by ExecRecognizer/ExecSynthesizer.
type ExecDecoder struct {
	argv []string
}

func NewExecDecoder(command string) (*ExecDecoder, error) {
	if command == "" {
		return &ExecDecoder{argv: []string{"ffmpeg"}}, nil
	}
	return &ExecDecoder{argv: splitCommand(command)}, nil
}

func splitCommand(command string) []string {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil || len(argv) == 0 {
		return []string{command}
	}
	return argv
}

func (d *ExecDecoder) Decode(ctx context.Context, blob []byte, format string) ([]int16, error) {
	if len(d.argv) == 0 {
		return nil, fmt.Errorf("collab: decoder binary not configured")
	}

	inFile, err := os.CreateTemp("", "voicebridge_decode_in_*."+orDefault(format, "bin"))
	if err != nil {
		return nil, fmt.Errorf("collab: decode temp input: %w", err)
	}
	inPath := inFile.Name()
	defer os.Remove(inPath)
	if _, err := inFile.Write(blob); err != nil {
		inFile.Close()
		return nil, fmt.Errorf("collab: write decode input: %w", err)
	}
	inFile.Close()

	outFile, err := os.CreateTemp("", "voicebridge_decode_out_*.pcm")
	if err != nil {
		return nil, fmt.Errorf("collab: decode temp output: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, DecodeTimeout)
	defer cancel()

	// ffmpeg-shaped invocation: -i <in> -f s16le -ar 48000 -ac 1 <out>
	args := append(append([]string{}, d.argv[1:]...),
		"-y", "-i", inPath,
		"-f", "s16le", "-ar", fmt.Sprintf("%d", playback.SampleRate), "-ac", "1",
		outPath,
	)
	cmd := exec.CommandContext(ctx, d.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("collab: decode exec failed: %w (%s)", err, stderr.String())
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("collab: read decode output: %w", err)
	}
	return bytesToInt16LE(raw), nil
}

func bytesToInt16LE(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
