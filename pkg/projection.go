package s800

import "slices"

// Projection is the per-channel signal of one detector for one event.
// Channels outside [MinActive, MaxActive) are zero.
type Projection struct {
	Amplitudes []int
	MinActive  int
	MaxActive  int // exclusive
}

func (p Projection) Empty() bool {
	return p.MinActive >= p.MaxActive
}

func (p Projection) Channels() int {
	return len(p.Amplitudes)
}

// ProjectionBuilder accumulates the samples of one event. Build hands
// out a copy and resets the builder for the next event.
type ProjectionBuilder struct {
	amplitudes []int
	thresholds []int
	touched    []int
}

// NewProjectionBuilder takes either one threshold for all channels or one per channel.
func NewProjectionBuilder(channels int, thresholds []int) *ProjectionBuilder {
	if len(thresholds) == 0 {
		thresholds = []int{0}
	}
	return &ProjectionBuilder{
		amplitudes: make([]int, channels),
		thresholds: thresholds,
		touched:    make([]int, 0, 32),
	}
}

func (b *ProjectionBuilder) threshold(channel int) int {
	if len(b.thresholds) == 1 {
		return b.thresholds[0]
	}
	return b.thresholds[channel]
}

// Add keeps the largest amplitude seen for a channel (peak-holding readout).
func (b *ProjectionBuilder) Add(s ChannelSample) {
	if s.Channel < 0 || s.Channel >= len(b.amplitudes) {
		return
	}
	current := b.amplitudes[s.Channel]
	if current == 0 && s.Amplitude > 0 {
		b.touched = append(b.touched, s.Channel)
	}
	if s.Amplitude > current {
		b.amplitudes[s.Channel] = s.Amplitude
	}
}

// Build suppresses channels at or below threshold and bounds the rest.
func (b *ProjectionBuilder) Build() Projection {
	projection := Projection{
		Amplitudes: slices.Clone(b.amplitudes),
		MinActive:  len(b.amplitudes),
		MaxActive:  0,
	}
	for _, channel := range b.touched {
		b.amplitudes[channel] = 0
		if projection.Amplitudes[channel] <= b.threshold(channel) {
			projection.Amplitudes[channel] = 0
			continue
		}
		if channel < projection.MinActive {
			projection.MinActive = channel
		}
		if channel+1 > projection.MaxActive {
			projection.MaxActive = channel + 1
		}
	}
	b.touched = b.touched[:0]
	if projection.Empty() {
		projection.MinActive = 0
		projection.MaxActive = 0
	}
	return projection
}
