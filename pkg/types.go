package s800

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PacketTag accepts either a JSON number or a hex string such as "0x5841".
type PacketTag uint16

func (t PacketTag) String() string {
	return fmt.Sprintf("0x%04x", uint16(t))
}

func (t PacketTag) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PacketTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint16
		if errNum := json.Unmarshal(data, &n); errNum != nil {
			return fmt.Errorf("invalid packet tag: %s", string(data))
		}
		*t = PacketTag(n)
		return nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return fmt.Errorf("invalid packet tag %q: %w", s, err)
	}
	*t = PacketTag(value)
	return nil
}

// Encoding selects how pad data words are laid out.
type Encoding int

const (
	EncodingUnset Encoding = iota
	EncodingClassic
	EncodingFast
)

var encodingStrings = []string{
	"",
	"classic",
	"fast",
}

func (e Encoding) String() string {
	if e < EncodingUnset || e > EncodingFast {
		return "UNKNOWN"
	}
	return encodingStrings[e]
}

func (e Encoding) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Encoding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range encodingStrings {
		if v == s {
			*e = Encoding(i)
			return nil
		}
	}
	return fmt.Errorf("invalid Encoding: %s", s)
}

// MapFormat selects the inverse map file parser.
type MapFormat int

const (
	MapFormatTable MapFormat = iota
	MapFormatCosy
)

var mapFormatStrings = []string{
	"table",
	"cosy",
}

func (f MapFormat) String() string {
	if f < MapFormatTable || f > MapFormatCosy {
		return "UNKNOWN"
	}
	return mapFormatStrings[f]
}

func (f MapFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *MapFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMapFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func ParseMapFormat(s string) (MapFormat, error) {
	for i, v := range mapFormatStrings {
		if v == s {
			return MapFormat(i), nil
		}
	}
	return MapFormatTable, fmt.Errorf("invalid MapFormat: %s", s)
}

// DetectorKind selects the detector variant built from a DetectorConfig.
type DetectorKind int

const (
	DetectorUnset DetectorKind = iota
	DetectorCrdc
	DetectorTppac
)

var detectorKindStrings = []string{
	"",
	"crdc",
	"tppac",
}

func (k DetectorKind) String() string {
	if k < DetectorUnset || k > DetectorTppac {
		return "UNKNOWN"
	}
	return detectorKindStrings[k]
}

func (k DetectorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *DetectorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range detectorKindStrings {
		if v == s && i > 0 {
			*k = DetectorKind(i)
			return nil
		}
	}
	return fmt.Errorf("invalid DetectorKind: %s", s)
}
