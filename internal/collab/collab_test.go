// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/friday-labs/voice-bridge/internal/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return s.text, s.err
}

func TestRecognizerChainPrefersPrimary(t *testing.T) {
	chain := NewRecognizerChain(stubRecognizer{text: "hello"}, stubRecognizer{text: "remote"}, commons.NewNopLogger())
	text, err := chain.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestRecognizerChainFallsBackOnEmpty(t *testing.T) {
	chain := NewRecognizerChain(stubRecognizer{text: ""}, stubRecognizer{text: "remote"}, commons.NewNopLogger())
	text, err := chain.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "remote", text)
}

func TestRecognizerChainFallsBackOnError(t *testing.T) {
	chain := NewRecognizerChain(stubRecognizer{err: errors.New("boom")}, stubRecognizer{text: "remote"}, commons.NewNopLogger())
	text, err := chain.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "remote", text)
}

func TestRecognizerChainNoCollaboratorsYieldsEmpty(t *testing.T) {
	chain := NewRecognizerChain(nil, nil, commons.NewNopLogger())
	text, err := chain.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

type stubSynth struct {
	out Synthesis
	err error
}

func (s stubSynth) Synthesize(ctx context.Context, text string) (Synthesis, error) {
	return s.out, s.err
}

func TestSynthesizerChainPrefersPrimary(t *testing.T) {
	chain := NewSynthesizerChain(
		stubSynth{out: Synthesis{Audio: []byte("aaa"), Format: "ogg"}},
		stubSynth{out: Synthesis{Audio: []byte("bbb"), Format: "ogg"}},
		commons.NewNopLogger(),
	)
	out, err := chain.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), out.Audio)
}

func TestSynthesizerChainFallsBackOnFailure(t *testing.T) {
	chain := NewSynthesizerChain(
		stubSynth{err: errors.New("boom")},
		stubSynth{out: Synthesis{Audio: []byte("bbb"), Format: "ogg"}},
		commons.NewNopLogger(),
	)
	out, err := chain.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), out.Audio)
}

func TestSynthesizerChainErrorsWithoutCollaborators(t *testing.T) {
	chain := NewSynthesizerChain(nil, nil, commons.NewNopLogger())
	_, err := chain.Synthesize(context.Background(), "hi")
	assert.Error(t, err)
}

func TestVerifyToolsMissingBinary(t *testing.T) {
	results := VerifyTools(context.Background(), []ProbeTarget{
		{Name: "stt", Command: "definitely-not-a-real-binary-xyz", MissingSystem: "stt_binary_missing"},
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Available)
	assert.Equal(t, "stt_binary_missing", results[0].Missing)
}

func TestVerifyToolsRemoteKeySatisfies(t *testing.T) {
	results := VerifyTools(context.Background(), []ProbeTarget{
		{Name: "llm", Command: "", RemoteAPIKey: "sk-test", MissingSystem: "llm_missing"},
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Available)
}

func TestVerifyToolsBinaryOnPath(t *testing.T) {
	results := VerifyTools(context.Background(), []ProbeTarget{
		{Name: "shell", Command: "sh", MissingSystem: "shell_missing"},
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Available)
}

func TestBytesToInt16LE(t *testing.T) {
	raw := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	got := bytesToInt16LE(raw)
	assert.Equal(t, []int16{0, 32767, -32768}, got)
}
