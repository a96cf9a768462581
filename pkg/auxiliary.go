package s800

import (
	"fmt"
	"math"
)

// Auxiliary TDC/ADC words carry the channel in the top nibble.
var (
	auxChannel = BitField{Shift: 12, Mask: 0x000F}
	auxValue   = BitField{Shift: 0, Mask: 0x0FFF}
)

// Trigger TDC channels.
const (
	triggerS800      = 8
	triggerExternal1 = 9
	triggerExternal2 = 10
	triggerSecondary = 11
)

// Time of flight TDC channels.
const (
	tofRF  = 12
	tofOBJ = 13
	tofXFP = 14
)

const (
	timestampWords   = 4
	eventNumberWords = 3
)

type AuxConfig struct {
	TriggerTag     PacketTag        `json:"trigger_tag"`
	TofTag         PacketTag        `json:"tof_tag"`
	IonChamberTag  PacketTag        `json:"ion_chamber_tag"`
	TimestampTag   PacketTag        `json:"timestamp_tag"`
	EventNumberTag PacketTag        `json:"event_number_tag"`
	IonChamber     IonChamberConfig `json:"ion_chamber"`
}

type IonChamberConfig struct {
	Channels int       `json:"channels"`
	Slopes   []float64 `json:"slopes"`
	Offsets  []float64 `json:"offsets"`
	DESlope  float64   `json:"de_slope"`
	DEOffset float64   `json:"de_offset"`
}

// TriggerData holds the trigger register and the TDC time of each source.
// Missing times are NaN.
type TriggerData struct {
	Register  uint16
	S800      float64
	External1 float64
	External2 float64
	Secondary float64
}

// TofData are the time of flight TDC values minus the S800 trigger time.
// They are NaN when either time is missing.
type TofData struct {
	RF  float64
	OBJ float64
	XFP float64
	// XfpObj is XFP - OBJ.
	XfpObj float64
}

type IonChamberData struct {
	Raw []int
	Cal []float64
	Sum float64
	DE  float64
}

// AuxData is everything of an event that is not a tracking detector.
type AuxData struct {
	Trigger        TriggerData
	Tof            TofData
	IonChamber     IonChamberData
	Timestamp      uint64
	HasTimestamp   bool
	EventNumber    uint64
	HasEventNumber bool
}

func newAuxData() AuxData {
	nan := math.NaN()
	return AuxData{
		Trigger:    TriggerData{S800: nan, External1: nan, External2: nan, Secondary: nan},
		Tof:        TofData{RF: nan, OBJ: nan, XFP: nan, XfpObj: nan},
		IonChamber: IonChamberData{Sum: nan, DE: nan},
	}
}

// Values flattens the auxiliary data as named quantities, the names
// used by station auxiliary inputs and event selection.
func (a AuxData) Values() map[string]float64 {
	values := map[string]float64{
		"trigger.s800":      a.Trigger.S800,
		"trigger.external1": a.Trigger.External1,
		"trigger.external2": a.Trigger.External2,
		"trigger.secondary": a.Trigger.Secondary,
		"tof.rf":            a.Tof.RF,
		"tof.obj":           a.Tof.OBJ,
		"tof.xfp":           a.Tof.XFP,
		"tof.xfp_obj":       a.Tof.XfpObj,
		"ic.sum":            a.IonChamber.Sum,
		"ic.de":             a.IonChamber.DE,
	}
	return values
}

// AuxDecoder decodes the auxiliary packets of an event.
type AuxDecoder struct {
	config AuxConfig
}

func NewAuxDecoder(config AuxConfig) (*AuxDecoder, error) {
	ic := config.IonChamber
	if config.IonChamberTag != 0 {
		if ic.Channels <= 0 || ic.Channels > auxChannel.Max()+1 {
			return nil, &ConfigError{Field: "aux.ion_chamber.channels", Reason: fmt.Sprintf("must be in [1, %d]", auxChannel.Max()+1)}
		}
		if len(ic.Slopes) != 0 && len(ic.Slopes) != ic.Channels {
			return nil, &ConfigError{Field: "aux.ion_chamber.slopes", Reason: "one slope per channel"}
		}
		if len(ic.Offsets) != 0 && len(ic.Offsets) != ic.Channels {
			return nil, &ConfigError{Field: "aux.ion_chamber.offsets", Reason: "one offset per channel"}
		}
	}
	return &AuxDecoder{config: config}, nil
}

// Decode fills AuxData from the packets of one event. A packet that fails
// to decode is reported and the other packets are still used.
func (d *AuxDecoder) Decode(packets []SubPacket) (AuxData, []error) {
	aux := newAuxData()
	var errs []error
	for _, packet := range packets {
		var err error
		switch PacketTag(packet.Tag) {
		case 0:
			continue
		case d.config.TriggerTag:
			err = readTrigger(packet, &aux.Trigger)
		case d.config.TofTag:
			err = readTof(packet, &aux.Tof)
		case d.config.IonChamberTag:
			err = d.readIonChamber(packet, &aux.IonChamber)
		case d.config.TimestampTag:
			aux.Timestamp, err = readWide(packet, timestampWords)
			aux.HasTimestamp = err == nil
		case d.config.EventNumberTag:
			aux.EventNumber, err = readWide(packet, eventNumberWords)
			aux.HasEventNumber = err == nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	// Times are relative to the S800 trigger; without it they are meaningless.
	if !math.IsNaN(aux.Trigger.S800) {
		aux.Tof.RF -= aux.Trigger.S800
		aux.Tof.OBJ -= aux.Trigger.S800
		aux.Tof.XFP -= aux.Trigger.S800
		aux.Tof.XfpObj = aux.Tof.XFP - aux.Tof.OBJ
	} else {
		aux.Tof = TofData{RF: math.NaN(), OBJ: math.NaN(), XFP: math.NaN(), XfpObj: math.NaN()}
	}

	if verbosity > 2 {
		message := fmt.Sprintf("Trigger 0x%04x, s800 %.0f, obj %.0f, xfp %.0f, ic.de %.2f",
			aux.Trigger.Register, aux.Trigger.S800, aux.Tof.OBJ, aux.Tof.XFP, aux.IonChamber.DE)
		logger.Info(message, "aux")
	}
	return aux, errs
}

func readTrigger(packet SubPacket, trigger *TriggerData) error {
	position := 0
	data := packet.Payload
	if len(data) == 0 {
		return &DecodeError{Tag: packet.Tag, Reason: "empty trigger packet"}
	}

	trigger.Register = data[position]
	position++

	for ; position < len(data); position++ {
		value := float64(extract(data[position], auxValue))
		switch extract(data[position], auxChannel) {
		case triggerS800:
			trigger.S800 = value
		case triggerExternal1:
			trigger.External1 = value
		case triggerExternal2:
			trigger.External2 = value
		case triggerSecondary:
			trigger.Secondary = value
		default:
			return &DecodeError{Tag: packet.Tag, Word: position, Value: data[position], Reason: "unknown trigger channel"}
		}
	}
	return nil
}

func readTof(packet SubPacket, tof *TofData) error {
	for position, word := range packet.Payload {
		value := float64(extract(word, auxValue))
		switch extract(word, auxChannel) {
		case tofRF:
			tof.RF = value
		case tofOBJ:
			tof.OBJ = value
		case tofXFP:
			tof.XFP = value
		default:
			if verbosity > 2 {
				message := fmt.Sprintf("Ignoring TOF channel %d at word %d", extract(word, auxChannel), position)
				logger.Info(message, "aux")
			}
		}
	}
	return nil
}

func (d *AuxDecoder) readIonChamber(packet SubPacket, ic *IonChamberData) error {
	config := d.config.IonChamber
	ic.Raw = make([]int, config.Channels)
	ic.Cal = make([]float64, config.Channels)

	for position, word := range packet.Payload {
		channel := extract(word, auxChannel)
		if channel >= config.Channels {
			return &DecodeError{Tag: packet.Tag, Word: position, Value: word,
				Reason: fmt.Sprintf("ion chamber channel %d out of range [0, %d)", channel, config.Channels)}
		}
		ic.Raw[channel] = extract(word, auxValue)
	}

	active := 0
	sum := 0.0
	for channel, raw := range ic.Raw {
		if raw <= 0 {
			continue
		}
		slope, offset := 1.0, 0.0
		if len(config.Slopes) > 0 {
			slope = config.Slopes[channel]
		}
		if len(config.Offsets) > 0 {
			offset = config.Offsets[channel]
		}
		ic.Cal[channel] = float64(raw)*slope + offset
		sum += ic.Cal[channel]
		active++
	}
	if active > 0 {
		ic.Sum = sum / float64(active)
		ic.DE = ic.Sum*config.DESlope + config.DEOffset
	}
	return nil
}

func readWide(packet SubPacket, words int) (uint64, error) {
	if len(packet.Payload) < words {
		return 0, &DecodeError{Tag: packet.Tag, Word: len(packet.Payload), Reason: fmt.Sprintf("expected %d words", words)}
	}
	return combineWords[uint64](packet.Payload[:words]), nil
}
