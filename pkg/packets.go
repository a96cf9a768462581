package s800

import "fmt"

const packetHeaderWords = 2

// Framing describes how sub-packet headers are laid out in the event buffer.
type Framing struct {
	// LengthIncludesHeader is true when the length word counts the length
	// and tag words themselves (S800 readout); otherwise it counts payload words.
	LengthIncludesHeader bool `json:"length_includes_header"`
	// EnvelopeTag, when non zero, is the tag of an outer packet wrapping all
	// the detector sub-packets of the event.
	EnvelopeTag PacketTag `json:"envelope_tag"`
	// EnvelopeHeaderWords are skipped at the start of the envelope payload (version word).
	EnvelopeHeaderWords int `json:"envelope_header_words"`
}

type SubPacket struct {
	Tag     uint16
	Length  int
	Payload []uint16
}

// ReadSubPacket reads the sub-packet starting at position and returns it
// together with the position of the next header.
func ReadSubPacket(buf []uint16, position int, framing Framing) (SubPacket, int, error) {
	remaining := len(buf) - position
	if position < 0 || remaining < packetHeaderWords {
		return SubPacket{}, position, &MalformedPacketError{
			Position: position, Remaining: remaining, Reason: "truncated header",
		}
	}

	length := int(buf[position])
	tag := buf[position+1]
	payloadLength := length
	if framing.LengthIncludesHeader {
		payloadLength = length - packetHeaderWords
	}
	remaining -= packetHeaderWords

	if payloadLength <= 0 {
		return SubPacket{}, position, &MalformedPacketError{
			Position: position, Length: length, Remaining: remaining, Reason: "empty packet",
		}
	}
	if payloadLength > remaining {
		return SubPacket{}, position, &MalformedPacketError{
			Position: position, Length: length, Remaining: remaining, Reason: "length exceeds buffer",
		}
	}

	start := position + packetHeaderWords
	end := start + payloadLength
	packet := SubPacket{
		Tag:     tag,
		Length:  payloadLength,
		Payload: buf[start:end:end],
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Packet 0x%04x at word %d, %d payload words", tag, position, payloadLength)
		logger.Info(message, "packets")
	}
	return packet, end, nil
}

// SplitSubPackets decodes consecutive sub-packets until the buffer is
// exhausted. On a malformed header the packets read so far are returned
// together with the error; nothing after it can be trusted.
func SplitSubPackets(buf []uint16, framing Framing) ([]SubPacket, error) {
	if framing.EnvelopeTag != 0 {
		envelope, _, err := ReadSubPacket(buf, 0, framing)
		if err != nil {
			return nil, err
		}
		if envelope.Tag != uint16(framing.EnvelopeTag) {
			return nil, &MalformedPacketError{
				Position: 0, Length: envelope.Length, Remaining: len(buf),
				Reason: fmt.Sprintf("expected envelope tag 0x%04x, found 0x%04x", uint16(framing.EnvelopeTag), envelope.Tag),
			}
		}
		if framing.EnvelopeHeaderWords >= envelope.Length {
			return nil, &MalformedPacketError{
				Position: 0, Length: envelope.Length, Remaining: len(buf), Reason: "envelope has no sub-packets",
			}
		}
		buf = envelope.Payload[framing.EnvelopeHeaderWords:]
	}

	packets := make([]SubPacket, 0, 8)
	position := 0
	for position < len(buf) {
		packet, next, err := ReadSubPacket(buf, position, framing)
		if err != nil {
			return packets, err
		}
		packets = append(packets, packet)
		position = next
	}
	return packets, nil
}
