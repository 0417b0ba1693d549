// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package mediart

import (
	"testing"
	"time"

	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestSDPTypeFromString(t *testing.T) {
	tp, err := sdpTypeFromString("offer")
	assert.NoError(t, err)
	assert.Equal(t, pionwebrtc.SDPTypeOffer, tp)

	tp, err = sdpTypeFromString("answer")
	assert.NoError(t, err)
	assert.Equal(t, pionwebrtc.SDPTypeAnswer, tp)

	_, err = sdpTypeFromString("garbage")
	assert.Error(t, err)
}

func TestTranslateState(t *testing.T) {
	assert.Equal(t, StateConnected, translateState(pionwebrtc.PeerConnectionStateConnected))
	assert.Equal(t, StateFailed, translateState(pionwebrtc.PeerConnectionStateFailed))
	assert.Equal(t, StateClosed, translateState(pionwebrtc.PeerConnectionStateClosed))
	assert.Equal(t, StateDisconnected, translateState(pionwebrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, StateNew, translateState(pionwebrtc.PeerConnectionStateNew))
}

func TestFrameDuration(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, frameDuration(480))
	assert.Equal(t, 20*time.Millisecond, frameDuration(960))
}
