package s800

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
)

// GEB record type of S800 events.
const GebTypeS800 = 5

type DetectorConfig struct {
	Name string       `json:"name"`
	Kind DetectorKind `json:"kind"`
	Tag  PacketTag    `json:"tag"`
	// IDWord is set when the first payload word identifies the detector
	// among the packets sharing its tag.
	IDWord      bool `json:"id_word"`
	ID          int  `json:"id"`
	HeaderWords int  `json:"header_words"`
	// AnodeTag is the packet with the anode energy and drift time of a CRDC.
	AnodeTag    PacketTag     `json:"anode_tag"`
	Encoding    Encoding      `json:"encoding"`
	Channels    int           `json:"channels"`
	GroupSize   int           `json:"group_size"`
	Layout      ClassicLayout `json:"layout"`
	Threshold   int           `json:"threshold"`
	Thresholds  []int         `json:"thresholds"`
	BadChannels []int         `json:"bad_channels"`
	Gravity     GravityParams `json:"gravity"`
	XSlope      float64       `json:"x_slope"`
	XOffset     float64       `json:"x_offset"`
	YSlope      float64       `json:"y_slope"`
	YOffset     float64       `json:"y_offset"`
}

func (d DetectorConfig) thresholds() []int {
	if len(d.Thresholds) > 0 {
		return d.Thresholds
	}
	return []int{d.Threshold}
}

// PlaneNames are the planes a detector produces positions for.
func (d DetectorConfig) PlaneNames() []string {
	if d.Kind == DetectorTppac {
		return []string{d.Name + "1", d.Name + "2"}
	}
	return []string{d.Name}
}

type CalibrationConfig struct {
	// Source is one of none, csv or db.
	Source string `json:"source"`
	Dir    string `json:"dir"`
	// Driver is mysql or sqlite.
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type Configuration struct {
	MaxEvents        int               `json:"max_events"`
	Verbosity        int               `json:"verbosity"`
	FileIn           string            `json:"file_in"`
	FileOut          string            `json:"file_out"`
	FileOut2         string            `json:"file_out2"`
	Selection        string            `json:"selection"`
	SplitSelection   bool              `json:"split_selection"`
	Discard          bool              `json:"discard"`
	Skip             int               `json:"skip"`
	RunNumber        int               `json:"run_number"`
	EventType        int               `json:"event_type"`
	Host             string            `json:"host"`
	User             string            `json:"user"`
	Passwd           string            `json:"pass"`
	DBName           string            `json:"dbname"`
	NumWorkers       int               `json:"num_workers"`
	WriteData        bool              `json:"write_data"`
	CompressionLevel int               `json:"compression_level"`
	Framing          Framing           `json:"framing"`
	Detectors        []DetectorConfig  `json:"detectors"`
	Stations         []StationConfig   `json:"stations"`
	Aux              AuxConfig         `json:"aux"`
	Calibration      CalibrationConfig `json:"calibration"`
}

func defaultCrdc(name string, id int, xOffset float64) DetectorConfig {
	return DetectorConfig{
		Name:        name,
		Kind:        DetectorCrdc,
		Tag:         0x5810,
		IDWord:      true,
		ID:          id,
		HeaderWords: 1,
		AnodeTag:    0x5821,
		Encoding:    EncodingFast,
		Channels:    256,
		GroupSize:   64,
		Layout:      DefaultClassicLayout(),
		Threshold:   0,
		Gravity:     DefaultGravityParams(),
		XSlope:      2.54,
		XOffset:     xOffset,
		YSlope:      1,
		YOffset:     0,
	}
}

// DefaultConfiguration describes the S800 focal plane: two CRDCs 1073 mm
// apart feeding the focal plane inverse map.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxEvents:        1000000000,
		Verbosity:        0,
		Discard:          true,
		Skip:             0,
		EventType:        GebTypeS800,
		Host:             "localhost",
		User:             "s800reader",
		Passwd:           "readonly",
		DBName:           "S800",
		NumWorkers:       1,
		WriteData:        true,
		CompressionLevel: 4,
		Framing: Framing{
			LengthIncludesHeader: true,
			EnvelopeTag:          0x5800,
			EnvelopeHeaderWords:  1,
		},
		Detectors: []DetectorConfig{
			defaultCrdc("crdc1", 0, -281.94),
			defaultCrdc("crdc2", 1, -281.94),
		},
		Stations: []StationConfig{
			{
				Name: "fp",
				Planes: []PlaneRef{
					{Detector: "crdc1", Z: 0},
					{Detector: "crdc2", Z: 1073},
				},
				Map:       "s800.map",
				MapFormat: MapFormatCosy,
				Outputs:   []string{"ata", "yta", "bta", "dta"},
			},
		},
		Aux: AuxConfig{
			TriggerTag:     0x5801,
			TofTag:         0x5802,
			IonChamberTag:  0x5820,
			TimestampTag:   0x5803,
			EventNumberTag: 0x5804,
			IonChamber: IonChamberConfig{
				Channels: 16,
				DESlope:  1,
			},
		},
		Calibration: CalibrationConfig{
			Source: "none",
			Driver: "sqlite",
		},
	}
}

// LoadConfiguration applies a JSON file on top of the defaults. A list in
// the file (detectors, stations) replaces the default list.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()
	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

// UnmarshalJSON fills the fields missing from data with the CRDC defaults,
// except the encoding which a CRDC must state.
func (d *DetectorConfig) UnmarshalJSON(data []byte) error {
	type plain DetectorConfig
	value := plain(defaultCrdc("", 0, 0))
	value.Encoding = EncodingUnset
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*d = DetectorConfig(value)
	return nil
}

// FromEnv overlays S800_* environment variables onto config.
func FromEnv(config *Configuration) {
	if v := os.Getenv("S800_FILE_IN"); v != "" {
		config.FileIn = v
	}
	if v := os.Getenv("S800_FILE_OUT"); v != "" {
		config.FileOut = v
	}
	if v := os.Getenv("S800_VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Verbosity = n
		}
	}
	if v := os.Getenv("S800_NUM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.NumWorkers = n
		}
	}
	if v := os.Getenv("S800_RUN_NUMBER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.RunNumber = n
		}
	}
	if v := os.Getenv("S800_DB_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("S800_DB_USER"); v != "" {
		config.User = v
	}
	if v := os.Getenv("S800_DB_PASS"); v != "" {
		config.Passwd = v
	}
	if v := os.Getenv("S800_DB_NAME"); v != "" {
		config.DBName = v
	}
}

// PlaneNames lists every plane produced by the configured detectors.
func (c Configuration) PlaneNames() []string {
	names := make([]string, 0, len(c.Detectors)+1)
	for _, d := range c.Detectors {
		names = append(names, d.PlaneNames()...)
	}
	return names
}

// Validate reports the first configuration error. It runs before any
// event is read.
func (c Configuration) Validate() error {
	if c.NumWorkers < 1 {
		return &ConfigError{Field: "num_workers", Reason: "must be at least 1"}
	}
	if c.Skip < 0 || c.MaxEvents < 0 {
		return &ConfigError{Field: "skip/max_events", Reason: "must not be negative"}
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return &ConfigError{Field: "compression_level", Reason: "must be in [0, 9]"}
	}
	if c.SplitSelection && (c.Selection == "" || c.FileOut2 == "") {
		return &ConfigError{Field: "split_selection", Reason: "needs selection and file_out2"}
	}
	if c.Framing.EnvelopeHeaderWords < 0 {
		return &ConfigError{Field: "framing.envelope_header_words", Reason: "must not be negative"}
	}

	names := make([]string, 0, len(c.Detectors))
	for _, d := range c.Detectors {
		if err := d.validate(); err != nil {
			return err
		}
		if slices.Contains(names, d.Name) {
			return &ConfigError{Field: "detectors", Reason: fmt.Sprintf("duplicated detector %q", d.Name)}
		}
		names = append(names, d.Name)
	}

	planes := c.PlaneNames()
	stations := make([]string, 0, len(c.Stations))
	for _, s := range c.Stations {
		field := "stations." + s.Name
		if s.Name == "" || slices.Contains(stations, s.Name) {
			return &ConfigError{Field: "stations", Reason: fmt.Sprintf("invalid or duplicated station name %q", s.Name)}
		}
		stations = append(stations, s.Name)
		if len(s.Planes) < 2 {
			return &ConfigError{Field: field + ".planes", Reason: "at least two planes are needed"}
		}
		for _, p := range s.Planes {
			if !slices.Contains(planes, p.Detector) {
				return &ConfigError{Field: field + ".planes", Reason: fmt.Sprintf("unknown plane %q", p.Detector)}
			}
		}
		if s.Map == "" {
			return &ConfigError{Field: field + ".map", Reason: "missing map file"}
		}
		if s.Order < 0 {
			return &ConfigError{Field: field + ".order", Reason: "must not be negative"}
		}
	}

	switch c.Calibration.Source {
	case "", "none":
	case "csv":
		if c.Calibration.Dir == "" {
			return &ConfigError{Field: "calibration.dir", Reason: "needed for csv calibration"}
		}
	case "db":
		if c.Calibration.Driver != "mysql" && c.Calibration.Driver != "sqlite" {
			return &ConfigError{Field: "calibration.driver", Reason: fmt.Sprintf("unknown driver %q", c.Calibration.Driver)}
		}
		if c.Calibration.Driver == "sqlite" && c.Calibration.Path == "" {
			return &ConfigError{Field: "calibration.path", Reason: "needed for sqlite calibration"}
		}
	default:
		return &ConfigError{Field: "calibration.source", Reason: fmt.Sprintf("unknown source %q", c.Calibration.Source)}
	}
	return nil
}

func (d DetectorConfig) validate() error {
	field := "detectors." + d.Name
	if d.Name == "" {
		return &ConfigError{Field: "detectors", Reason: "detector without name"}
	}
	if d.Channels <= 0 {
		return &ConfigError{Field: field + ".channels", Reason: "must be positive"}
	}
	if d.Tag == 0 {
		return &ConfigError{Field: field + ".tag", Reason: "missing packet tag"}
	}
	if d.AnodeTag != 0 && d.AnodeTag == d.Tag {
		return &ConfigError{Field: field + ".anode_tag", Reason: "must differ from the pad tag"}
	}
	switch d.Kind {
	case DetectorCrdc:
		if d.Encoding == EncodingUnset {
			return &ConfigError{Field: field + ".encoding", Reason: "CRDC needs an explicit encoding (classic or fast)"}
		}
	case DetectorTppac:
		if d.Channels != tppacViews*tppacStrips {
			return &ConfigError{Field: field + ".channels", Reason: fmt.Sprintf("a PPAC pair has %d channels", tppacViews*tppacStrips)}
		}
	default:
		return &ConfigError{Field: field + ".kind", Reason: "must be crdc or tppac"}
	}
	if d.Encoding == EncodingClassic {
		if err := d.Layout.Validate(); err != nil {
			return &ConfigError{Field: field + ".layout", Reason: err.Error()}
		}
	}
	if d.Encoding == EncodingFast || (d.Kind == DetectorTppac && d.Encoding == EncodingUnset) {
		if d.GroupSize <= 0 || d.GroupSize > fastChannelOffset.Max()+1 {
			return &ConfigError{Field: field + ".group_size", Reason: fmt.Sprintf("must be in [1, %d]", fastChannelOffset.Max()+1)}
		}
	}
	if len(d.Thresholds) != 0 && len(d.Thresholds) != d.Channels {
		return &ConfigError{Field: field + ".thresholds", Reason: "one threshold per channel"}
	}
	for _, channel := range d.BadChannels {
		if channel < 0 || channel >= d.Channels {
			return &ConfigError{Field: field + ".bad_channels", Reason: fmt.Sprintf("channel %d out of range", channel)}
		}
	}
	if err := d.Gravity.Validate(); err != nil {
		return &ConfigError{Field: field + ".gravity", Reason: err.Error()}
	}
	return nil
}
