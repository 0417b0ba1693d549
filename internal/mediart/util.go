// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package mediart

import "time"

// frameDuration converts a sample count at the fixed 48kHz playback
// rate to a wall-clock duration for the RTP sample writer.
func frameDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(48000)
}
