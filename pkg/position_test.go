package s800

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectionOf(channels int, amplitudes map[int]int) Projection {
	b := NewProjectionBuilder(channels, nil)
	for channel, amplitude := range amplitudes {
		b.Add(ChannelSample{Channel: channel, Amplitude: amplitude})
	}
	return b.Build()
}

// triangle peaks at center with height 10*halfWidth+10.
func triangle(center, halfWidth int) map[int]int {
	amplitudes := make(map[int]int)
	for d := -halfWidth; d <= halfWidth; d++ {
		amplitudes[center+d] = 10 * (halfWidth + 1 - abs(d))
	}
	return amplitudes
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func gravityOnly(width int) GravityParams {
	return GravityParams{GravityWidth: width}
}

func TestReconstructSymmetricPeak(t *testing.T) {
	p := projectionOf(128, triangle(50, 4))
	result := Reconstruct(p, UnitCalibration("test", 128), gravityOnly(10))
	require.True(t, result.Valid)
	assert.InDelta(t, 50.0, result.X, 1e-9)
	assert.Equal(t, 50, result.PeakChannel)
	assert.Equal(t, 50.0, result.PeakAmplitude)
	assert.Equal(t, 9, result.UsedChannels)
	assert.False(t, result.Saturated)
}

func TestReconstructBadChannel(t *testing.T) {
	p := projectionOf(128, triangle(50, 4))
	cal := UnitCalibration("test", 128)
	cal.MarkBad(50)
	result := Reconstruct(p, cal, gravityOnly(10))
	require.True(t, result.Valid)

	// 49 and 51 tie; the lower channel wins. Window is [44, 54].
	assert.Equal(t, 49, result.PeakChannel)
	want := (46.0*10 + 47*20 + 48*30 + 49*40 + 51*40 + 52*30 + 53*20 + 54*10) / 200.0
	assert.InDelta(t, want, result.X, 1e-9)
	assert.NotEqual(t, 50.0, result.X)
	assert.Equal(t, 8, result.UsedChannels)
}

func TestReconstructWindowIsCentered(t *testing.T) {
	// Wider than the default window, so both tails are cut at the same distance.
	p := projectionOf(256, triangle(50, 10))
	result := Reconstruct(p, UnitCalibration("test", 256), DefaultGravityParams())
	require.True(t, result.Valid)
	assert.InDelta(t, 50.0, result.X, 1e-9)
	assert.Equal(t, 13, result.UsedChannels)

	for _, width := range []int{4, 5, 10, 11} {
		result := Reconstruct(p, nil, gravityOnly(width))
		assert.InDelta(t, 50.0, result.X, 1e-9, "width %d", width)
	}
}

func TestReconstructEmptyProjection(t *testing.T) {
	result := Reconstruct(projectionOf(64, nil), nil, DefaultGravityParams())
	assert.False(t, result.Valid)
	assert.True(t, math.IsNaN(result.X))
	assert.Equal(t, -1, result.PeakChannel)
}

func TestReconstructAllBad(t *testing.T) {
	p := projectionOf(16, map[int]int{3: 40, 4: 50})
	cal := UnitCalibration("test", 16)
	cal.MarkBad(3, 4)
	result := Reconstruct(p, cal, gravityOnly(10))
	assert.False(t, result.Valid)
	assert.True(t, math.IsNaN(result.X))
}

func TestReconstructCalibrationMovesPeak(t *testing.T) {
	p := projectionOf(16, map[int]int{5: 100, 10: 60})
	cal := UnitCalibration("test", 16)
	cal.Channels[10].Slope = 3
	result := Reconstruct(p, cal, gravityOnly(1))
	require.True(t, result.Valid)
	assert.Equal(t, 10, result.PeakChannel)
	assert.InDelta(t, 10.0, result.X, 1e-9)
	assert.InDelta(t, 180.0, result.PeakAmplitude, 1e-9)
}

func TestReconstructSaturatedRun(t *testing.T) {
	p := projectionOf(128, map[int]int{
		58: 200, 59: 500,
		60: 1023, 61: 1023, 62: 1023,
		63: 500, 64: 200,
	})
	params := GravityParams{GravityWidth: 12, Saturation: 1023, SaturationWidth: 8}
	result := Reconstruct(p, UnitCalibration("test", 128), params)
	require.True(t, result.Valid)
	assert.True(t, result.Saturated)
	assert.Equal(t, 60, result.PeakChannel)
	assert.InDelta(t, 61.0, result.X, 1e-9)
	assert.Equal(t, 4, result.UsedChannels)
}

func TestReconstructWindowAtEdge(t *testing.T) {
	p := projectionOf(32, map[int]int{0: 100, 1: 50})
	result := Reconstruct(p, nil, gravityOnly(12))
	require.True(t, result.Valid)
	assert.InDelta(t, 50.0/150.0, result.X, 1e-9)
}

func TestReconstructSkew(t *testing.T) {
	amplitudes := make(map[int]int)
	for ch := 40; ch <= 61; ch++ {
		// parabola with its vertex at 50.5
		amplitudes[ch] = 1000 - 10*(ch-50)*(ch-51)
	}
	params := GravityParams{GravityWidth: 12, Skew: SkewParams{Enabled: true, FitWidth: 5}}
	result := Reconstruct(projectionOf(128, amplitudes), nil, params)
	require.True(t, result.Valid)
	assert.True(t, result.Skewed)
	assert.InDelta(t, 50.5, result.X, 1e-6)
	assert.Equal(t, 50, result.PeakChannel)

	params.Skew.Enabled = false
	plain := Reconstruct(projectionOf(128, amplitudes), nil, params)
	assert.False(t, plain.Skewed)
	assert.Equal(t, plain.Gravity, plain.X)
	assert.Equal(t, plain.Gravity, result.Gravity)
}

func TestReconstructSkewNeedsFullWindow(t *testing.T) {
	amplitudes := make(map[int]int)
	for ch := 0; ch <= 10; ch++ {
		amplitudes[ch] = 1000 - 10*(ch-2)*(ch-3)
	}
	params := GravityParams{GravityWidth: 12, Skew: SkewParams{Enabled: true, FitWidth: 5}}
	result := Reconstruct(projectionOf(128, amplitudes), nil, params)
	require.True(t, result.Valid)
	assert.Equal(t, 2, result.PeakChannel)
	assert.False(t, result.Skewed)
	assert.Equal(t, result.Gravity, result.X)
}

func TestReconstructSkewSkipsBadChannels(t *testing.T) {
	amplitudes := make(map[int]int)
	for ch := 40; ch <= 61; ch++ {
		amplitudes[ch] = 1000 - 10*(ch-50)*(ch-51)
	}
	params := GravityParams{GravityWidth: 12, Skew: SkewParams{Enabled: true, FitWidth: 5}}

	cal := UnitCalibration("test", 128)
	cal.MarkBad(49)
	result := Reconstruct(projectionOf(128, amplitudes), cal, params)
	require.True(t, result.Valid)
	assert.True(t, result.Skewed)
	assert.InDelta(t, 50.5, result.X, 1e-6)
	assert.Equal(t, 12, result.UsedChannels)

	// Only 50 and 51 remain in [48, 52].
	cal.MarkBad(48, 52)
	result = Reconstruct(projectionOf(128, amplitudes), cal, params)
	require.True(t, result.Valid)
	assert.False(t, result.Skewed)
	assert.Equal(t, result.Gravity, result.X)
}

func TestGravityParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultGravityParams().Validate())
	assert.Error(t, GravityParams{GravityWidth: 0}.Validate())
	assert.Error(t, GravityParams{GravityWidth: 4, Saturation: -1}.Validate())
	assert.Error(t, GravityParams{GravityWidth: 4, Saturation: 100}.Validate())
	assert.Error(t, GravityParams{GravityWidth: 4, Skew: SkewParams{Enabled: true, FitWidth: 2}}.Validate())
}
