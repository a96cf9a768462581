package s800

import (
	"errors"
	"fmt"
	"math"
)

// PlanePosition is the hit of one detector plane in mm.
type PlanePosition struct {
	Name   string
	X      float64
	Y      float64
	ValidX bool
	ValidY bool
	// Pads is the center of gravity along x, in channels.
	Pads  PositionResult
	Anode int
	Tac   int
}

func newPlanePosition(name string) PlanePosition {
	return PlanePosition{
		Name: name,
		X:    math.NaN(),
		Y:    math.NaN(),
		Pads: NoPosition(),
	}
}

// Crdc reconstructs one cathode readout drift chamber: x from the pad
// center of gravity, y from the anode drift time.
type Crdc struct {
	config      DetectorConfig
	unpacker    Unpacker
	calibration *CalibrationTable
}

func NewCrdc(config DetectorConfig, calibration *CalibrationTable) (*Crdc, error) {
	if config.Encoding == EncodingUnset {
		return nil, &ConfigError{Field: config.Name + ".encoding", Reason: "CRDC needs an explicit encoding (classic or fast)"}
	}
	unpacker, err := NewUnpacker(config.Encoding, config.Channels, config.GroupSize, config.Layout)
	if err != nil {
		return nil, &ConfigError{Field: config.Name, Reason: err.Error()}
	}
	if calibration == nil {
		calibration = UnitCalibration(config.Name, config.Channels)
	}
	calibration.MarkBad(config.BadChannels...)
	return &Crdc{
		config:      config,
		unpacker:    unpacker,
		calibration: calibration,
	}, nil
}

func (c *Crdc) Name() string {
	return c.config.Name
}

// payload returns the pad words of packet if it belongs to this detector.
func (c *Crdc) payload(packet SubPacket, tag PacketTag) ([]uint16, bool) {
	return detectorPayload(packet, tag, c.config.IDWord, c.config.ID, c.config.HeaderWords)
}

func detectorPayload(packet SubPacket, tag PacketTag, idWord bool, id int, headerWords int) ([]uint16, bool) {
	if tag == 0 || packet.Tag != uint16(tag) {
		return nil, false
	}
	payload := packet.Payload
	if idWord {
		if len(payload) == 0 || int(payload[0]) != id {
			return nil, false
		}
		payload = payload[1:]
	}
	if headerWords > len(payload) {
		return payload[:0], true
	}
	return payload[headerWords:], true
}

// Process builds the projection of the detector packets of one event and
// reconstructs the plane position. A sub-packet that fails to decode is
// dropped as a whole and reported; the remaining packets still count.
func (c *Crdc) Process(packets []SubPacket) (PlanePosition, error) {
	plane := newPlanePosition(c.config.Name)
	builder := NewProjectionBuilder(c.config.Channels, c.config.thresholds())

	var decodeErr error
	found := false
	for _, packet := range packets {
		if words, ok := c.payload(packet, c.config.AnodeTag); ok {
			if len(words) >= 2 {
				plane.Anode = int(words[0])
				plane.Tac = int(words[1])
			}
			continue
		}
		words, ok := c.payload(packet, c.config.Tag)
		if !ok {
			continue
		}
		found = true
		pads := SubPacket{Tag: packet.Tag, Length: len(words), Payload: words}
		samples, err := UnpackAll(c.unpacker, pads)
		if err != nil {
			decodeErr = errors.Join(decodeErr, fmt.Errorf("%s: %w", c.config.Name, err))
			continue
		}
		for _, sample := range samples {
			builder.Add(sample)
		}
	}
	if !found {
		return plane, nil
	}

	plane.Pads = Reconstruct(builder.Build(), c.calibration, c.config.Gravity)
	if plane.Pads.Valid {
		plane.X = plane.Pads.X*c.config.XSlope + c.config.XOffset
		plane.ValidX = true
	}
	if plane.Tac > 0 {
		plane.Y = float64(plane.Tac)*c.config.YSlope + c.config.YOffset
		plane.ValidY = true
	}
	if verbosity > 1 {
		message := fmt.Sprintf("%s: x %.3f (%t), y %.3f (%t)", c.config.Name, plane.X, plane.ValidX, plane.Y, plane.ValidY)
		logger.Info(message, "crdc")
	}
	return plane, decodeErr
}
