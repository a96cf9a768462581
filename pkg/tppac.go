package s800

import (
	"errors"
	"fmt"
)

const (
	tppacViews  = 4
	tppacStrips = 64
)

// Strip order of the x and y views of a tracking PPAC.
var tppacMapX = [tppacStrips]int{
	30, 31, 28, 29, 26, 27, 24, 25, 22, 23, 20, 21, 18, 19, 16, 17,
	14, 15, 12, 13, 10, 11, 8, 9, 6, 7, 4, 5, 2, 3, 0, 1,
	33, 32, 35, 34, 37, 36, 39, 38, 41, 40, 43, 42, 45, 44, 47, 46,
	49, 48, 51, 50, 53, 52, 55, 54, 57, 56, 59, 58, 61, 60, 63, 62,
}

var tppacMapY = [tppacStrips]int{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31,
	63, 62, 61, 60, 59, 58, 57, 56, 55, 54, 53, 52, 51, 50, 49, 48,
	47, 46, 45, 44, 43, 42, 41, 40, 39, 38, 37, 36, 35, 34, 33, 32,
}

// TppacStrip maps a readout channel of the pair to its view
// (x1, y1, x2, y2) and strip number.
func TppacStrip(channel int) (view int, strip int) {
	view = channel / tppacStrips
	local := channel % tppacStrips
	if view%2 == 0 {
		return view, tppacMapX[local]
	}
	return view, tppacMapY[local]
}

// TppacPair is the pair of tracking PPACs read out as one 256 channel
// packet, the same raw format as the CRDC pads.
type TppacPair struct {
	config       DetectorConfig
	unpacker     Unpacker
	calibration  *CalibrationTable
	calibrations [tppacViews]*CalibrationTable
	thresholds   [tppacViews][]int
}

func NewTppacPair(config DetectorConfig, calibration *CalibrationTable) (*TppacPair, error) {
	if config.Channels != tppacViews*tppacStrips {
		return nil, &ConfigError{Field: config.Name + ".channels", Reason: fmt.Sprintf("a PPAC pair has %d channels", tppacViews*tppacStrips)}
	}
	encoding := config.Encoding
	if encoding == EncodingUnset {
		encoding = EncodingFast
	}
	unpacker, err := NewUnpacker(encoding, config.Channels, config.GroupSize, config.Layout)
	if err != nil {
		return nil, &ConfigError{Field: config.Name, Reason: err.Error()}
	}
	if calibration == nil {
		calibration = UnitCalibration(config.Name, config.Channels)
	}
	calibration.MarkBad(config.BadChannels...)
	pair := &TppacPair{
		config:      config,
		unpacker:    unpacker,
		calibration: calibration,
	}
	thresholds := config.thresholds()
	for view := range tppacViews {
		pair.calibrations[view] = pair.viewCalibration(view)
		pair.thresholds[view] = thresholds
		if len(thresholds) == config.Channels {
			pair.thresholds[view] = make([]int, tppacStrips)
			for local := range tppacStrips {
				_, strip := TppacStrip(view*tppacStrips + local)
				pair.thresholds[view][strip] = thresholds[view*tppacStrips+local]
			}
		}
	}
	return pair, nil
}

func (t *TppacPair) Name() string {
	return t.config.Name
}

func (t *TppacPair) PlaneNames() []string {
	return []string{t.config.Name + "1", t.config.Name + "2"}
}

// viewCalibration reorders the calibration of one view by strip number.
func (t *TppacPair) viewCalibration(view int) *CalibrationTable {
	table := &CalibrationTable{
		Detector: fmt.Sprintf("%s.view%d", t.config.Name, view),
		Channels: make([]ChannelCalibration, tppacStrips),
	}
	for local := range tppacStrips {
		_, strip := TppacStrip(view*tppacStrips + local)
		table.Channels[strip] = t.calibration.Channels[view*tppacStrips+local]
	}
	return table
}

func (t *TppacPair) Process(packets []SubPacket) ([]PlanePosition, error) {
	names := t.PlaneNames()
	planes := []PlanePosition{newPlanePosition(names[0]), newPlanePosition(names[1])}

	builders := make([]*ProjectionBuilder, tppacViews)
	for view := range builders {
		builders[view] = NewProjectionBuilder(tppacStrips, t.thresholds[view])
	}

	var decodeErr error
	found := false
	for _, packet := range packets {
		words, ok := detectorPayload(packet, t.config.Tag, t.config.IDWord, t.config.ID, t.config.HeaderWords)
		if !ok {
			continue
		}
		found = true
		strips := SubPacket{Tag: packet.Tag, Length: len(words), Payload: words}
		samples, err := UnpackAll(t.unpacker, strips)
		if err != nil {
			decodeErr = errors.Join(decodeErr, fmt.Errorf("%s: %w", t.config.Name, err))
			continue
		}
		for _, sample := range samples {
			view, strip := TppacStrip(sample.Channel)
			sample.Channel = strip
			builders[view].Add(sample)
		}
	}
	if !found {
		return planes, nil
	}

	for view, builder := range builders {
		position := Reconstruct(builder.Build(), t.calibrations[view], t.config.Gravity)
		plane := &planes[view/2]
		if view%2 == 0 {
			plane.Pads = position
			if position.Valid {
				plane.X = position.X*t.config.XSlope + t.config.XOffset
				plane.ValidX = true
			}
			continue
		}
		if position.Valid {
			plane.Y = position.X*t.config.YSlope + t.config.YOffset
			plane.ValidY = true
		}
	}
	if verbosity > 1 {
		for _, plane := range planes {
			message := fmt.Sprintf("%s: x %.3f (%t), y %.3f (%t)", plane.Name, plane.X, plane.ValidX, plane.Y, plane.ValidY)
			logger.Info(message, "tppac")
		}
	}
	return planes, decodeErr
}
