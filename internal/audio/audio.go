// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audio holds the small set of PCM/WAV utilities shared by the
// VAD segmenter, the turn pipeline, and the playback pacer: mono
// downmixing, frame concatenation, RMS level computation, and WAV
// packaging. Grounded on internal/audio/recorder's WAV writer
// (createWAVFile) — same RIFF/WAVE layout, generalised to work on
// arbitrary PCM-16 buffers instead of a
// dual-track recording session.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	BytesPerSample = 2 // PCM-16
	BitsPerSample  = 16
	PCMFormatTag   = 1 // WAV PCM format tag
)

// Frame is one inbound capture callback's worth of audio, as delivered by
// the media sink. Samples may carry more than one channel; ChannelCount
// defaults to 1 when zero.
type Frame struct {
	Samples      []int16
	SampleRate   int
	ChannelCount int
}

func (f Frame) channels() int {
	if f.ChannelCount <= 0 {
		return 1
	}
	return f.ChannelCount
}

// Valid rejects frames with a sample rate outside the accepted band or a
// non-finite/zero rate, per the VAD's frame-rejection rule.
func (f Frame) Valid() bool {
	if f.SampleRate < 8000 || f.SampleRate > 96000 {
		return false
	}
	if math.IsNaN(float64(f.SampleRate)) || math.IsInf(float64(f.SampleRate), 0) {
		return false
	}
	return true
}

// Downmix averages interleaved multi-channel samples down to mono,
// clipping to the int16 range. Single-channel frames are copied as-is.
func Downmix(f Frame) []int16 {
	ch := f.channels()
	if ch <= 1 {
		out := make([]int16, len(f.Samples))
		copy(out, f.Samples)
		return out
	}

	frames := len(f.Samples) / ch
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < ch; c++ {
			sum += int32(f.Samples[i*ch+c])
		}
		avg := sum / int32(ch)
		out[i] = clipInt16(avg)
	}
	return out
}

func clipInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RMS computes the root-mean-square level of a mono PCM-16 buffer,
// normalised to [-1, 1] before squaring, matching the VAD's threshold
// domain (0.015 start / 0.008 hold).
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		n := float64(s) / 32768.0
		sumSquares += n * n
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// Concat joins a sequence of mono PCM-16 frames into one contiguous buffer.
func Concat(frames [][]int16) []int16 {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	out := make([]int16, 0, total)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// CopyFrame returns an independent copy of a mono frame. Required because
// audio sinks reuse their delivery buffers.
func CopyFrame(f []int16) []int16 {
	out := make([]int16, len(f))
	copy(out, f)
	return out
}

// DurationMs converts a sample count at a given sample rate to milliseconds.
func DurationMs(samples int, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate) * 1000
}

// ToWAV packages mono PCM-16 samples as a standard little-endian RIFF/WAVE
// container at the given sample rate. Header layout mirrors the
// recorder's createWAVFile.
func ToWAV(samples []int16, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	var buf bytes.Buffer
	channels := 1
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(PCMFormatTag))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// ParseWAV reverses ToWAV: it validates the RIFF/WAVE/fmt /data chunk
// layout and returns the mono PCM-16 samples and sample rate. Used by
// the round-trip WAV tests; the media decoder returns raw PCM, not WAV.
func ParseWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("audio: wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE file")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("audio: missing fmt chunk")
	}
	fmtSize := binary.LittleEndian.Uint32(data[16:20])
	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if channels != 1 || bitsPerSample != BitsPerSample {
		return nil, 0, fmt.Errorf("audio: unsupported wav format channels=%d bits=%d", channels, bitsPerSample)
	}

	offset := 20 + int(fmtSize)
	if offset+8 > len(data) {
		return nil, 0, fmt.Errorf("audio: truncated before data chunk")
	}
	for string(data[offset:offset+4]) != "data" {
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8 + int(chunkSize)
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("audio: data chunk not found")
		}
	}
	dataSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
	pcmStart := offset + 8
	pcmEnd := pcmStart + int(dataSize)
	if pcmEnd > len(data) {
		return nil, 0, fmt.Errorf("audio: data chunk overruns buffer")
	}

	pcm := data[pcmStart:pcmEnd]
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples, int(sampleRate), nil
}
