package s800

import (
	"fmt"
	"iter"
)

// ChannelSample is one digitized value of one readout channel.
type ChannelSample struct {
	Channel   int
	Sample    int
	Amplitude int
}

// Unpacker turns the payload of a detector sub-packet into channel samples.
// The sequence stops after the first error.
type Unpacker interface {
	Samples(packet SubPacket) iter.Seq2[ChannelSample, error]
}

// ClassicLayout describes one-word-per-sample data. Without a sample
// field the sample index is the position of the word in the payload.
type ClassicLayout struct {
	Channel   BitField `json:"channel"`
	Amplitude BitField `json:"amplitude"`
	Sample    BitField `json:"sample"`
}

func DefaultClassicLayout() ClassicLayout {
	return ClassicLayout{
		Channel:   BitField{Shift: 8, Mask: 0x00FF},
		Amplitude: BitField{Shift: 0, Mask: 0x00FF},
	}
}

func (l ClassicLayout) Validate() error {
	if !l.Channel.Present() || !l.Amplitude.Present() {
		return fmt.Errorf("classic layout needs channel and amplitude fields")
	}
	fields := []BitField{l.Channel, l.Amplitude, l.Sample}
	var used uint
	for _, f := range fields {
		bits := f.positioned()
		if bits&^0xFFFF != 0 {
			return fmt.Errorf("classic layout field 0x%x does not fit in 16 bits", bits)
		}
		if used&bits != 0 {
			return fmt.Errorf("classic layout fields overlap (0x%04x)", used&bits)
		}
		used |= bits
	}
	return nil
}

// Encode is the inverse of the classic unpacking.
func (l ClassicLayout) Encode(s ChannelSample) (uint16, error) {
	if s.Channel < 0 || s.Channel > l.Channel.Max() {
		return 0, fmt.Errorf("channel %d does not fit the layout", s.Channel)
	}
	if s.Amplitude < 0 || s.Amplitude > l.Amplitude.Max() {
		return 0, fmt.Errorf("amplitude %d does not fit the layout", s.Amplitude)
	}
	var word uint16
	word = insert(word, l.Channel, s.Channel)
	word = insert(word, l.Amplitude, s.Amplitude)
	if l.Sample.Present() {
		if s.Sample < 0 || s.Sample > l.Sample.Max() {
			return 0, fmt.Errorf("sample %d does not fit the layout", s.Sample)
		}
		word = insert(word, l.Sample, s.Sample)
	}
	return word, nil
}

type ClassicUnpacker struct {
	Layout   ClassicLayout
	Channels int
}

func (u ClassicUnpacker) Samples(packet SubPacket) iter.Seq2[ChannelSample, error] {
	return func(yield func(ChannelSample, error) bool) {
		for i, word := range packet.Payload {
			sample := ChannelSample{
				Channel:   extract(word, u.Layout.Channel),
				Amplitude: extract(word, u.Layout.Amplitude),
				Sample:    i,
			}
			if u.Layout.Sample.Present() {
				sample.Sample = extract(word, u.Layout.Sample)
			}
			if sample.Channel >= u.Channels {
				yield(ChannelSample{}, &DecodeError{
					Tag: packet.Tag, Word: i, Value: word,
					Reason: fmt.Sprintf("channel %d out of range [0, %d)", sample.Channel, u.Channels),
				})
				return
			}
			if !yield(sample, nil) {
				return
			}
		}
	}
}

// Fast (reference/data) CRDC word layout:
//
//	reference word  1sss ssss sscc cccc   s: sample time, c: channel offset
//	data word       0000 ggaa aaaa aaaa   g: channel group, a: amplitude
//
// channel = group*GroupSize + offset, offset taken from the last reference word.
const fastReferenceBit = 0x8000

var (
	fastSampleTime    = BitField{Shift: 6, Mask: 0x01FF}
	fastChannelOffset = BitField{Shift: 0, Mask: 0x003F}
	fastGroup         = BitField{Shift: 10, Mask: 0x0003}
	fastAmplitude     = BitField{Shift: 0, Mask: 0x03FF}
)

type FastUnpacker struct {
	GroupSize int
	Channels  int
}

func (u FastUnpacker) Samples(packet SubPacket) iter.Seq2[ChannelSample, error] {
	return func(yield func(ChannelSample, error) bool) {
		haveReference := false
		sampleTime := 0
		offset := 0
		for i, word := range packet.Payload {
			if word&fastReferenceBit != 0 {
				sampleTime = extract(word, fastSampleTime)
				offset = extract(word, fastChannelOffset)
				if offset >= u.GroupSize {
					yield(ChannelSample{}, &DecodeError{
						Tag: packet.Tag, Word: i, Value: word,
						Reason: fmt.Sprintf("channel offset %d exceeds group size %d", offset, u.GroupSize),
					})
					return
				}
				haveReference = true
				continue
			}
			if !haveReference {
				yield(ChannelSample{}, &DecodeError{
					Tag: packet.Tag, Word: i, Value: word,
					Reason: "data word before any reference word",
				})
				return
			}
			channel := extract(word, fastGroup)*u.GroupSize + offset
			if channel >= u.Channels {
				yield(ChannelSample{}, &DecodeError{
					Tag: packet.Tag, Word: i, Value: word,
					Reason: fmt.Sprintf("channel %d out of range [0, %d)", channel, u.Channels),
				})
				return
			}
			sample := ChannelSample{
				Channel:   channel,
				Sample:    sampleTime,
				Amplitude: extract(word, fastAmplitude),
			}
			if verbosity > 3 {
				message := fmt.Sprintf("Channel %d, sample %d, amplitude 0x%03x", sample.Channel, sample.Sample, sample.Amplitude)
				logger.Info(message, "unpack")
			}
			if !yield(sample, nil) {
				return
			}
		}
	}
}

// EncodeFastReference builds the reference word of the fast encoding.
func EncodeFastReference(sampleTime, offset int) uint16 {
	var word uint16 = fastReferenceBit
	word = insert(word, fastSampleTime, sampleTime)
	word = insert(word, fastChannelOffset, offset)
	return word
}

// EncodeFastData builds a data word of the fast encoding.
func EncodeFastData(group, amplitude int) uint16 {
	var word uint16
	word = insert(word, fastGroup, group)
	word = insert(word, fastAmplitude, amplitude)
	return word
}

// UnpackAll decodes a whole sub-packet. On error no samples are returned.
func UnpackAll(u Unpacker, packet SubPacket) ([]ChannelSample, error) {
	samples := make([]ChannelSample, 0, len(packet.Payload))
	for sample, err := range u.Samples(packet) {
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func NewUnpacker(encoding Encoding, channels int, groupSize int, layout ClassicLayout) (Unpacker, error) {
	switch encoding {
	case EncodingClassic:
		if err := layout.Validate(); err != nil {
			return nil, err
		}
		return ClassicUnpacker{Layout: layout, Channels: channels}, nil
	case EncodingFast:
		if groupSize <= 0 || groupSize > fastChannelOffset.Max()+1 {
			return nil, fmt.Errorf("invalid channel group size %d", groupSize)
		}
		return FastUnpacker{GroupSize: groupSize, Channels: channels}, nil
	default:
		return nil, fmt.Errorf("encoding must be chosen explicitly (classic or fast), got %q", encoding)
	}
}
