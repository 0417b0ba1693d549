// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownmixMono(t *testing.T) {
	f := Frame{Samples: []int16{100, -200, 300}, SampleRate: 48000, ChannelCount: 1}
	assert.Equal(t, []int16{100, -200, 300}, Downmix(f))
}

func TestDownmixStereoAverages(t *testing.T) {
	f := Frame{
		Samples:      []int16{100, 200, -100, -300},
		SampleRate:   48000,
		ChannelCount: 2,
	}
	got := Downmix(f)
	require.Len(t, got, 2)
	assert.Equal(t, int16(150), got[0])
	assert.Equal(t, int16(-200), got[1])
}

func TestDownmixClipsOverflow(t *testing.T) {
	f := Frame{
		Samples:      []int16{32767, 32767},
		SampleRate:   48000,
		ChannelCount: 2,
	}
	got := Downmix(f)
	assert.Equal(t, int16(32767), got[0])
}

func TestFrameValidRejectsOutOfBand(t *testing.T) {
	assert.False(t, Frame{SampleRate: 4000}.Valid())
	assert.False(t, Frame{SampleRate: 200000}.Valid())
	assert.True(t, Frame{SampleRate: 48000}.Valid())
}

func TestRMSSilence(t *testing.T) {
	silence := make([]int16, 480)
	assert.Equal(t, 0.0, RMS(silence))
}

func TestRMSFullScale(t *testing.T) {
	loud := make([]int16, 480)
	for i := range loud {
		loud[i] = 32767
	}
	assert.InDelta(t, 1.0, RMS(loud), 0.001)
}

func TestConcat(t *testing.T) {
	got := Concat([][]int16{{1, 2}, {3}, {4, 5, 6}})
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, got)
}

func TestCopyFrameIsIndependent(t *testing.T) {
	src := []int16{1, 2, 3}
	dst := CopyFrame(src)
	dst[0] = 99
	assert.Equal(t, int16(1), src[0])
}

func TestDurationMs(t *testing.T) {
	assert.InDelta(t, 10.0, DurationMs(480, 48000), 0.001)
	assert.Equal(t, 0.0, DurationMs(480, 0))
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	wav := ToWAV(samples, 16000)

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))

	got, rate, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, samples, got)
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	_, _, err := ParseWAV([]byte("not a wav file"))
	assert.Error(t, err)
}

func TestParseWAVRejectsWrongFormat(t *testing.T) {
	wav := ToWAV([]int16{1, 2, 3}, 8000)
	// Corrupt the channel count field to look like stereo.
	wav[22] = 2
	_, _, err := ParseWAV(wav)
	assert.Error(t, err)
}
