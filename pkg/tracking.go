package s800

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Order of the map input vector: x (m), a (rad), y (m), b (rad), then the
// auxiliary inputs of the station.
const (
	InputX = iota
	InputA
	InputY
	InputB
	trackInputs
)

const (
	atomicMassUnit = 931.494    // MeV/c2
	brhoToMomentum = 299.792458 // MeV/c per Tm per unit charge
)

var ErrMissingInput = errors.New("missing map input")

var kinematicsNames = []string{"azita", "scatter", "ptot", "ppar", "ptra", "energy"}

type PlaneRef struct {
	Detector string  `json:"detector"`
	Z        float64 `json:"z"`
}

// KinematicsConfig enables the quantities derived from ata, bta and dta.
// AngleA and AngleB (rad) are added to ata and bta.
type KinematicsConfig struct {
	Brho   float64 `json:"brho"`
	Mass   float64 `json:"mass"`
	Charge float64 `json:"charge"`
	AngleA float64 `json:"angle_a"`
	AngleB float64 `json:"angle_b"`
}

type StationConfig struct {
	Name       string            `json:"name"`
	Planes     []PlaneRef        `json:"planes"`
	ZOffset    float64           `json:"z_offset"`
	Map        string            `json:"map"`
	MapFormat  MapFormat         `json:"map_format"`
	Order      int               `json:"order"`
	Outputs    []string          `json:"outputs"`
	Aux        []string          `json:"aux"`
	Kinematics *KinematicsConfig `json:"kinematics"`
}

// TrajectoryResult holds the output parameters of one station for one
// event. Invalid parameters are NaN.
type TrajectoryResult struct {
	Station string
	Names   []string
	Values  []float64
	Valid   []bool
}

// Value returns a parameter by name and whether it is valid.
func (t TrajectoryResult) Value(name string) (float64, bool) {
	i := slices.Index(t.Names, name)
	if i < 0 {
		return math.NaN(), false
	}
	return t.Values[i], t.Valid[i]
}

func (t *TrajectoryResult) set(i int, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		t.Values[i] = math.NaN()
		t.Valid[i] = false
		return
	}
	t.Values[i] = value
	t.Valid[i] = true
}

// Station turns the positions of its planes into trajectory parameters
// through an inverse map.
type Station struct {
	config    StationConfig
	opticsMap *OpticsMap
	outputs   []string
	names     []string
}

func NewStation(config StationConfig, opticsMap *OpticsMap) (*Station, error) {
	field := "stations." + config.Name
	if len(config.Planes) < 2 {
		return nil, &ConfigError{Field: field + ".planes", Reason: "at least two planes are needed"}
	}
	if config.Planes[0].Z == config.Planes[1].Z {
		return nil, &ConfigError{Field: field + ".planes", Reason: "the first two planes are at the same z"}
	}
	if !opticsMap.IsLoaded() {
		return nil, &ConfigError{Field: field + ".map", Reason: fmt.Sprintf("map %q is not loaded", config.Map)}
	}
	table := opticsMap.Snapshot()
	if config.Order < 0 || config.Order > table.MaxOrder {
		return nil, &ConfigError{Field: field + ".order",
			Reason: (&OrderExceededError{Requested: config.Order, MaxOrder: table.MaxOrder}).Error()}
	}
	if table.Variables > trackInputs+len(config.Aux) {
		return nil, &ConfigError{Field: field + ".aux",
			Reason: fmt.Sprintf("map uses %d variables, station provides %d", table.Variables, trackInputs+len(config.Aux))}
	}

	outputs := config.Outputs
	if len(outputs) == 0 {
		outputs = table.Names
	}
	if len(outputs) > len(table.Params) {
		return nil, &ConfigError{Field: field + ".outputs",
			Reason: fmt.Sprintf("%d outputs for a map with %d parameters", len(outputs), len(table.Params))}
	}

	names := slices.Clone(outputs)
	if config.Kinematics != nil {
		for _, required := range []string{"ata", "bta", "dta"} {
			if !slices.Contains(outputs, required) {
				return nil, &ConfigError{Field: field + ".kinematics", Reason: "needs outputs ata, bta and dta"}
			}
		}
		names = append(names, kinematicsNames...)
	}

	return &Station{
		config:    config,
		opticsMap: opticsMap,
		outputs:   outputs,
		names:     names,
	}, nil
}

func (s *Station) Name() string {
	return s.config.Name
}

// Names lists the output parameters followed by the derived kinematics.
func (s *Station) Names() []string {
	return s.names
}

func (s *Station) PlaneNames() []string {
	names := make([]string, len(s.config.Planes))
	for i, plane := range s.config.Planes {
		names[i] = plane.Detector
	}
	return names
}

// Inputs builds the map input vector from the plane positions (mm) and
// auxiliary values. Missing inputs are NaN.
func (s *Station) Inputs(planes map[string]PlanePosition, aux map[string]float64) []float64 {
	inputs := make([]float64, trackInputs+len(s.config.Aux))
	reference := s.config.Planes[0].Z + s.config.ZOffset

	var xs, ys, zx, zy []float64
	for _, ref := range s.config.Planes {
		plane, ok := planes[ref.Detector]
		if !ok {
			continue
		}
		if plane.ValidX {
			xs = append(xs, plane.X)
			zx = append(zx, ref.Z)
		}
		if plane.ValidY {
			ys = append(ys, plane.Y)
			zy = append(zy, ref.Z)
		}
	}
	inputs[InputX], inputs[InputA] = straightLine(zx, xs, reference)
	inputs[InputY], inputs[InputB] = straightLine(zy, ys, reference)

	for i, name := range s.config.Aux {
		value, ok := aux[name]
		if !ok {
			value = math.NaN()
		}
		inputs[trackInputs+i] = value
	}
	return inputs
}

// straightLine returns the position (m) at reference and the angle (rad)
// of the track through the points (z, u) given in mm.
func straightLine(z, u []float64, reference float64) (float64, float64) {
	switch {
	case len(z) < 2:
		return math.NaN(), math.NaN()
	case len(z) == 2:
		if z[1] == z[0] {
			return math.NaN(), math.NaN()
		}
		slope := (u[1] - u[0]) / (z[1] - z[0])
		return (u[0] + slope*(reference-z[0])) / 1000, math.Atan(slope)
	default:
		intercept, slope := stat.LinearRegression(z, u, nil, false)
		if math.IsNaN(slope) {
			return math.NaN(), math.NaN()
		}
		return (intercept + slope*reference) / 1000, math.Atan(slope)
	}
}

// Track evaluates every output parameter. A parameter depending on a
// missing input, or whose evaluation fails, is invalid; the others are
// still computed.
func (s *Station) Track(planes map[string]PlanePosition, aux map[string]float64) (TrajectoryResult, []error) {
	result := TrajectoryResult{
		Station: s.config.Name,
		Names:   s.names,
		Values:  make([]float64, len(s.names)),
		Valid:   make([]bool, len(s.names)),
	}
	for i := range result.Values {
		result.Values[i] = math.NaN()
	}

	inputs := s.Inputs(planes, aux)
	table := s.opticsMap.Snapshot()
	order := s.config.Order
	if order == 0 && table != nil {
		order = table.MaxOrder
	}

	var errs []error
	for i, name := range s.outputs {
		value, err := table.Evaluate(order, i, inputs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", s.config.Name, name, err))
			continue
		}
		if math.IsNaN(value) {
			errs = append(errs, fmt.Errorf("%s.%s: %w", s.config.Name, name, ErrMissingInput))
			continue
		}
		result.set(i, value)
	}

	if s.config.Kinematics != nil {
		s.kinematics(&result)
	}
	if verbosity > 1 {
		message := fmt.Sprintf("%s: %v %v", s.config.Name, s.names, result.Values)
		logger.Info(message, "tracking")
	}
	return result, errs
}

func (s *Station) kinematics(result *TrajectoryResult) {
	k := s.config.Kinematics
	index := func(name string) int {
		return slices.Index(result.Names, name)
	}
	ata, bta, dta := index("ata"), index("bta"), index("dta")
	if result.Valid[ata] {
		result.set(ata, result.Values[ata]+k.AngleA)
	}
	if result.Valid[bta] {
		result.set(bta, result.Values[bta]+k.AngleB)
	}

	// NaN propagates to every quantity whose inputs are invalid.
	a, b, d := result.Values[ata], result.Values[bta], result.Values[dta]
	xsin := math.Sin(a)
	ysin := math.Sin(b)

	azita := math.Atan2(ysin, xsin)
	if azita < 0 {
		azita += 2 * math.Pi
	}
	scatter := math.Asin(math.Sqrt(xsin*xsin + ysin*ysin))
	ptot := brhoToMomentum * k.Charge * k.Brho * (1 + d)
	mass := k.Mass * atomicMassUnit
	energy := math.Sqrt(ptot*ptot+mass*mass) - mass

	result.set(index("azita"), azita)
	result.set(index("scatter"), scatter*1000)
	result.set(index("ptot"), ptot)
	result.set(index("ppar"), ptot*math.Cos(scatter))
	result.set(index("ptra"), ptot*math.Sin(scatter))
	result.set(index("energy"), energy)
}

// UnmarshalJSON decodes a station from scratch, never on top of a default station.
func (s *StationConfig) UnmarshalJSON(data []byte) error {
	type plain StationConfig
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*s = StationConfig(value)
	return nil
}
