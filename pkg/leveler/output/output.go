// Package output delivers leveled audio to files and network destinations.
package output

import (
	"context"

	"github.com/norasector/turbine-common/types"
)

// AudioOutput handles incoming tagged audio samples.
type AudioOutput interface {
	// Start runs until ctx ends, an error occurs, or the receive channel is
	// closed and everything received has been flushed, in which case it
	// returns nil.
	Start(ctx context.Context) error
	// Receive returns a channel that receives tagged audio sample input.
	// Closing it marks the end of the stream.
	Receive() chan<- *types.TaggedAudioSampleFloat32
}
