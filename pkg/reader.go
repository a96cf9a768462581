package s800

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// GebHeader precedes every record of a global event builder file.
// Length is the payload size in bytes.
type GebHeader struct {
	Type      int32
	Length    int32
	Timestamp int64
}

const gebHeaderSize = 16

// maxGebPayload bounds the allocation for a corrupted length field.
const maxGebPayload = 1 << 24

// ReadGebRecord reads one record. io.EOF is returned only at a clean record
// boundary; a truncated record gives io.ErrUnexpectedEOF.
func ReadGebRecord(r io.Reader) (GebHeader, []byte, error) {
	var header GebHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return header, nil, err
	}
	if header.Length < 0 || header.Length > maxGebPayload {
		return header, nil, fmt.Errorf("%w: payload length %d", ErrGebRecord, header.Length)
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return header, nil, err
	}
	return header, payload, nil
}

// Words converts a little endian payload into 16-bit words. An odd trailing
// byte is dropped; NextEvent rejects such payloads before they get here.
func Words(payload []byte) []uint16 {
	words := make([]uint16, len(payload)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}
	return words
}

type FileReader struct {
	reader    io.Reader
	eventType int32
	skip      int
	maxEvents int
	// EvtCount is the index of the last S800 record read, -1 before the first.
	EvtCount int
}

func NewFileReader(r io.Reader, config Configuration) *FileReader {
	return &FileReader{
		reader:    r,
		eventType: int32(config.EventType),
		skip:      config.Skip,
		maxEvents: config.MaxEvents,
		EvtCount:  -1,
	}
}

// NextEvent returns the next S800 event after the skipped ones. Records of
// other types are ignored. io.EOF marks the end of the file or of the
// requested number of events.
func (f *FileReader) NextEvent() (GebHeader, []uint16, error) {
	for {
		header, payload, err := ReadGebRecord(f.reader)
		if err != nil {
			return header, nil, err
		}
		if header.Type != f.eventType {
			if verbosity > 1 {
				message := fmt.Sprintf("Skipping GEB record of type %d", header.Type)
				logger.Info(message, "fileReader")
			}
			continue
		}
		f.EvtCount++
		if f.EvtCount < f.skip {
			if verbosity > 0 {
				message := fmt.Sprintf("Skipping event %d", f.EvtCount)
				logger.Info(message, "fileReader")
			}
			continue
		}
		if f.EvtCount-f.skip >= f.maxEvents {
			if verbosity > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return header, nil, io.EOF
		}
		if len(payload)%2 != 0 {
			return header, nil, fmt.Errorf("%w: event %d has an odd payload of %d bytes", ErrGebRecord, f.EvtCount, len(payload))
		}
		if verbosity > 1 {
			message := fmt.Sprintf("Reading event %d (timestamp %d)", f.EvtCount, header.Timestamp)
			logger.Info(message, "fileReader")
		}
		return header, Words(payload), nil
	}
}

// CountEvents counts the records of the given type and rewinds the file.
func CountEvents(file io.ReadSeeker, eventType int) (int, error) {
	count := 0
	for {
		var header GebHeader
		err := binary.Read(file, binary.LittleEndian, &header)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return count, fmt.Errorf("error reading header counting events: %w", err)
		}
		if header.Length < 0 {
			return count, fmt.Errorf("%w: payload length %d", ErrGebRecord, header.Length)
		}
		if _, err := file.Seek(int64(header.Length), io.SeekCurrent); err != nil {
			return count, err
		}
		if header.Type == int32(eventType) {
			count++
		}
	}
	_, err := file.Seek(0, io.SeekStart)
	return count, err
}

// EventsToProcess is the number of events a run will produce.
func EventsToProcess(fileEvtCount int, skip int, maxEvents int) int {
	n := fileEvtCount - skip
	if n > maxEvents {
		n = maxEvents
	}
	if n < 0 {
		n = 0
	}
	return n
}

// EncodeGebRecord is the inverse of ReadGebRecord for a word payload.
func EncodeGebRecord(w io.Writer, eventType int32, timestamp int64, words []uint16) error {
	header := GebHeader{Type: eventType, Length: int32(2 * len(words)), Timestamp: timestamp}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, words)
}
