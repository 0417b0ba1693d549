// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package mediart

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pion/interceptor"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/friday-labs/voice-bridge/internal/commons"
)

// PionEngine builds pion/webrtc-backed peer connections. Grounded on
// streamer.go's createPeerConnection: Opus codec registration, default
// interceptor set, STUN-only ICE server configuration.
type PionEngine struct {
	log        commons.Logger
	iceServers []pionwebrtc.ICEServer
}

// NewPionEngine constructs the engine. STUN servers mirror
// streamer.go's DefaultConfig(); no TURN relay is configured — a
// directly reachable client is assumed, since admission control and
// quota (the layer that would need TURN) are out of scope.
func NewPionEngine(log commons.Logger) *PionEngine {
	return &PionEngine{
		log: log,
		iceServers: []pionwebrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

func (e *PionEngine) NewPeerConnection(ctx context.Context) (PeerConnection, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   OpusSampleRate,
			Channels:    OpusChannels,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("%w: register opus codec: %v", ErrEngineUnavailable, err)
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("%w: register interceptors: %v", ErrEngineUnavailable, err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(pionwebrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", ErrEngineUnavailable, err)
	}

	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{MimeType: pionwebrtc.MimeTypeOpus, ClockRate: OpusSampleRate, Channels: OpusChannels},
		"audio",
		"friday-voice",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create local track: %v", ErrEngineUnavailable, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("%w: add track: %v", ErrEngineUnavailable, err)
	}

	codec, err := NewOpusCodec()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	wrapped := &pionConnection{
		log:        e.log,
		pc:         pc,
		localTrack: track,
		source:     &pionAudioSource{track: track, codec: codec, log: e.log},
	}
	wrapped.wireDefaultHandlers()
	return wrapped, nil
}

type pionConnection struct {
	log commons.Logger

	mu         sync.Mutex
	pc         *pionwebrtc.PeerConnection
	localTrack *pionwebrtc.TrackLocalStaticSample
	source     *pionAudioSource

	onICECandidate func(ICECandidate)
	onStateChange  func(ConnectionState)
	onAudioTrack   func(AudioSink)
}

func (c *pionConnection) wireDefaultHandlers() {
	c.pc.OnICECandidate(func(cand *pionwebrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		cb := c.onICECandidate
		c.mu.Unlock()
		if cb == nil {
			return
		}
		j := cand.ToJSON()
		out := ICECandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			out.SDPMid = *j.SDPMid
		}
		out.SDPMLineIndex = j.SDPMLineIndex
		cb(out)
	})

	c.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		c.mu.Lock()
		cb := c.onStateChange
		c.mu.Unlock()
		if cb == nil {
			return
		}
		cb(translateState(state))
	})

	c.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if track.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		c.mu.Lock()
		cb := c.onAudioTrack
		c.mu.Unlock()
		if cb == nil {
			return
		}
		sink := newPionAudioSink(track, c.log)
		cb(sink)
	})
}

func translateState(s pionwebrtc.PeerConnectionState) ConnectionState {
	switch s {
	case pionwebrtc.PeerConnectionStateConnected:
		return StateConnected
	case pionwebrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case pionwebrtc.PeerConnectionStateFailed:
		return StateFailed
	case pionwebrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

func (c *pionConnection) SetRemoteDescription(_ context.Context, desc SessionDescription) error {
	sdpType, err := sdpTypeFromString(desc.Type)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(pionwebrtc.SessionDescription{Type: sdpType, SDP: desc.SDP})
}

func (c *pionConnection) CreateAnswer(_ context.Context) (SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("mediart: create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, fmt.Errorf("mediart: set local description: %w", err)
	}
	return SessionDescription{Type: "answer", SDP: answer.SDP}, nil
}

func (c *pionConnection) AddICECandidate(_ context.Context, cand ICECandidate) error {
	init := pionwebrtc.ICECandidateInit{Candidate: cand.Candidate}
	if cand.SDPMid != "" {
		init.SDPMid = &cand.SDPMid
	}
	init.SDPMLineIndex = cand.SDPMLineIndex
	return c.pc.AddICECandidate(init)
}

func (c *pionConnection) OnICECandidate(cb func(ICECandidate)) {
	c.mu.Lock()
	c.onICECandidate = cb
	c.mu.Unlock()
}

func (c *pionConnection) OnConnectionStateChange(cb func(ConnectionState)) {
	c.mu.Lock()
	c.onStateChange = cb
	c.mu.Unlock()
}

func (c *pionConnection) OnAudioTrack(cb func(AudioSink)) {
	c.mu.Lock()
	c.onAudioTrack = cb
	c.mu.Unlock()
}

func (c *pionConnection) Source() AudioSource {
	return c.source
}

func (c *pionConnection) Stats(_ context.Context) (float64, bool) {
	for _, s := range c.pc.GetStats() {
		pair, ok := s.(pionwebrtc.ICECandidatePairStats)
		if !ok || !pair.Nominated || pair.State != pionwebrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		return pair.CurrentRoundTripTime * 1000, true
	}
	return 0, false
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}

func sdpTypeFromString(t string) (pionwebrtc.SDPType, error) {
	switch t {
	case "offer":
		return pionwebrtc.SDPTypeOffer, nil
	case "answer":
		return pionwebrtc.SDPTypeAnswer, nil
	case "pranswer":
		return pionwebrtc.SDPTypePranswer, nil
	default:
		return 0, fmt.Errorf("mediart: unknown sdp type %q", t)
	}
}

// pionAudioSink decodes an inbound RTP/Opus track into mono PCM-16
// frames on a dedicated goroutine, grounded on streamer.go's
// readRemoteAudio consecutive-error-backoff read loop.
type pionAudioSink struct {
	log   commons.Logger
	track *pionwebrtc.TrackRemote
	codec *OpusCodec

	mu      sync.Mutex
	cb      func(samples []int16, sampleRate int)
	stopped bool
}

func newPionAudioSink(track *pionwebrtc.TrackRemote, log commons.Logger) *pionAudioSink {
	codec, err := NewOpusCodec()
	if err != nil {
		log.Errorw("mediart: failed to build opus decoder for inbound track", "err", err)
		return &pionAudioSink{log: log, track: track, stopped: true}
	}
	s := &pionAudioSink{log: log, track: track, codec: codec}
	go s.readLoop()
	return s
}

func (s *pionAudioSink) OnFrame(cb func(samples []int16, sampleRate int)) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *pionAudioSink) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

const maxConsecutiveTrackErrors = 50

func (s *pionAudioSink) readLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		pkt, _, err := s.track.ReadRTP()
		if err != nil {
			if err == io.EOF {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveTrackErrors {
				s.log.Warnw("mediart: too many consecutive track read errors, stopping sink", "err", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		mono, err := s.codec.Decode(pkt.Payload)
		if err != nil {
			s.log.Warnw("mediart: opus decode failed, dropping packet", "err", err)
			continue
		}

		s.mu.Lock()
		cb := s.cb
		s.mu.Unlock()
		if cb != nil {
			cb(mono, OpusSampleRate)
		}
	}
}

// pionAudioSource encodes outbound mono PCM-16 frames to Opus and
// writes them as media samples on the local track, satisfying
// playback.Sink.
type pionAudioSource struct {
	log   commons.Logger
	track *pionwebrtc.TrackLocalStaticSample
	codec *OpusCodec
}

func (s *pionAudioSource) PushFrame(samples []int16) error {
	payload, err := s.codec.Encode(samples)
	if err != nil {
		return fmt.Errorf("mediart: opus encode: %w", err)
	}
	sample := media.Sample{Data: payload, Duration: frameDuration(len(samples))}
	if err := s.track.WriteSample(sample); err != nil {
		return fmt.Errorf("mediart: write sample: %w", err)
	}
	return nil
}
