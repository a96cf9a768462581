package s800

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type SkewParams struct {
	Enabled  bool `json:"enabled"`
	FitWidth int  `json:"fit_width"`
}

// GravityParams configures the center of gravity of one detector.
// Saturation is compared against raw amplitudes; zero disables it. The
// summing window spans width/2 channels on each side of its center.
type GravityParams struct {
	GravityWidth    int        `json:"gravity_width"`
	Saturation      int        `json:"saturation"`
	SaturationWidth int        `json:"saturation_width"`
	Skew            SkewParams `json:"skew"`
}

func DefaultGravityParams() GravityParams {
	return GravityParams{
		GravityWidth:    12,
		Saturation:      1023,
		SaturationWidth: 8,
		Skew: SkewParams{
			Enabled:  false,
			FitWidth: 5,
		},
	}
}

func (g GravityParams) Validate() error {
	if g.GravityWidth <= 0 {
		return fmt.Errorf("gravity width must be positive, got %d", g.GravityWidth)
	}
	if g.Saturation < 0 {
		return fmt.Errorf("saturation must not be negative, got %d", g.Saturation)
	}
	if g.Saturation > 0 && g.SaturationWidth <= 0 {
		return fmt.Errorf("saturation width must be positive, got %d", g.SaturationWidth)
	}
	if g.Skew.Enabled && g.Skew.FitWidth < 3 {
		return fmt.Errorf("skew fit needs at least 3 channels, got %d", g.Skew.FitWidth)
	}
	return nil
}

// PositionResult is the hit position in channel units. Valid is false and
// X is NaN when no channel could be used.
type PositionResult struct {
	X             float64
	Valid         bool
	PeakChannel   int
	PeakAmplitude float64
	Saturated     bool
	UsedChannels  int
	// Gravity is the centroid before the skew refinement.
	Gravity float64
	Skewed  bool
}

func NoPosition() PositionResult {
	return PositionResult{
		X:           math.NaN(),
		Gravity:     math.NaN(),
		PeakChannel: -1,
	}
}

// Reconstruct computes the center of gravity of a projection around its
// calibrated peak.
func Reconstruct(p Projection, cal *CalibrationTable, params GravityParams) PositionResult {
	result := NoPosition()
	if p.Empty() {
		return result
	}

	channels := p.Channels()
	calibrated := func(channel int) float64 {
		if channel < p.MinActive || channel >= p.MaxActive {
			return 0
		}
		return cal.Apply(channel, p.Amplitudes[channel])
	}
	isSaturated := func(channel int) bool {
		return params.Saturation > 0 && p.Amplitudes[channel] >= params.Saturation
	}

	peak := -1
	peakAmplitude := 0.0
	for channel := p.MinActive; channel < p.MaxActive; channel++ {
		if cal.IsBad(channel) {
			continue
		}
		if value := calibrated(channel); value > peakAmplitude {
			peak = channel
			peakAmplitude = value
		}
	}
	if peak < 0 {
		return result
	}
	result.PeakChannel = peak
	result.PeakAmplitude = peakAmplitude
	result.Saturated = isSaturated(peak)

	center := peak
	width := params.GravityWidth
	if result.Saturated {
		first, last := peak, peak
		for first > p.MinActive && isSaturated(first-1) {
			first--
		}
		for last < p.MaxActive-1 && isSaturated(last+1) {
			last++
		}
		center = (first + last) / 2
		width = params.SaturationWidth
	}

	low := center - width/2
	high := center + width/2
	truncated := low < 0 || high >= channels
	low = max(low, 0)
	high = min(high, channels-1)

	var sum, weighted float64
	for channel := low; channel <= high; channel++ {
		if cal.IsBad(channel) || isSaturated(channel) {
			continue
		}
		value := calibrated(channel)
		if value <= 0 {
			continue
		}
		sum += value
		weighted += value * float64(channel)
		result.UsedChannels++
	}
	if sum == 0 {
		return result
	}

	result.Gravity = weighted / sum
	result.X = result.Gravity
	result.Valid = true

	if params.Skew.Enabled && !result.Saturated && !truncated {
		if vertex, ok := skewVertex(peak, params.Skew.FitWidth, channels, cal, calibrated); ok {
			result.X = vertex
			result.Skewed = true
		}
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Peak %d (%.1f), gravity %.3f, x %.3f, %d channels",
			peak, peakAmplitude, result.Gravity, result.X, result.UsedChannels)
		logger.Info(message, "position")
	}
	return result
}

// skewVertex fits a parabola to the calibrated amplitudes around the peak
// and returns its vertex when the fit is concave and the vertex lies in the
// fit window.
func skewVertex(peak, width, channels int, cal *CalibrationTable, calibrated func(int) float64) (float64, bool) {
	low := peak - width/2
	high := peak + width/2
	if low < 0 || high >= channels {
		return 0, false
	}

	rows := make([]float64, 0, 3*(high-low+1))
	values := make([]float64, 0, high-low+1)
	for channel := low; channel <= high; channel++ {
		if cal.IsBad(channel) {
			continue
		}
		d := float64(channel - peak)
		rows = append(rows, 1, d, d*d)
		values = append(values, calibrated(channel))
	}
	n := len(values)
	if n < 3 {
		return 0, false
	}

	a := mat.NewDense(n, 3, rows)
	b := mat.NewVecDense(n, values)
	var coefficients mat.VecDense
	if err := coefficients.SolveVec(a, b); err != nil {
		return 0, false
	}
	linear := coefficients.AtVec(1)
	quadratic := coefficients.AtVec(2)
	if quadratic >= 0 {
		return 0, false
	}
	vertex := float64(peak) - linear/(2*quadratic)
	if vertex < float64(low) || vertex > float64(high) || math.IsNaN(vertex) {
		return 0, false
	}
	return vertex, true
}
