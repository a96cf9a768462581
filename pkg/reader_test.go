package s800

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gebFile writes S800 records with payload {i} interleaved with records of
// another type.
func gebFile(t *testing.T, events int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := range events {
		require.NoError(t, EncodeGebRecord(&buf, 1, int64(1000+i), []uint16{0xAAAA, 0xBBBB}))
		require.NoError(t, EncodeGebRecord(&buf, GebTypeS800, int64(i), []uint16{uint16(i), 0x5800}))
	}
	return buf.Bytes()
}

func TestReadGebRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeGebRecord(&buf, GebTypeS800, 123456789, []uint16{0x0102, 0x0304}))
	assert.Equal(t, gebHeaderSize+4, buf.Len())
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, buf.Bytes()[gebHeaderSize:])

	header, payload, err := ReadGebRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, GebHeader{Type: GebTypeS800, Length: 4, Timestamp: 123456789}, header)
	assert.Equal(t, []uint16{0x0102, 0x0304}, Words(payload))

	_, _, err = ReadGebRecord(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadGebRecordTruncated(t *testing.T) {
	data := gebFile(t, 1)
	_, _, err := ReadGebRecord(bytes.NewReader(data[:gebHeaderSize+2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadGebRecord(bytes.NewReader(data[:gebHeaderSize-4]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadGebRecordInvalidLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeGebRecord(&buf, GebTypeS800, 0, []uint16{1}))
	data := buf.Bytes()
	data[4], data[5], data[6], data[7] = 0xFF, 0xFF, 0xFF, 0xFF
	_, _, err := ReadGebRecord(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrGebRecord)
}

func TestWordsDropsOddByte(t *testing.T) {
	assert.Equal(t, []uint16{0x0201}, Words([]byte{0x01, 0x02, 0x03}))
	assert.Empty(t, Words(nil))
}

func TestFileReaderOddPayload(t *testing.T) {
	var buf bytes.Buffer
	// A record of another type may have any length.
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, GebHeader{Type: 1, Length: 3}))
	buf.Write([]byte{1, 2, 3})
	require.NoError(t, EncodeGebRecord(&buf, GebTypeS800, 7, []uint16{0x5800}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, GebHeader{Type: GebTypeS800, Length: 3, Timestamp: 8}))
	buf.Write([]byte{0x00, 0x58, 0x01})

	reader := NewFileReader(&buf, DefaultConfiguration())
	_, words, err := reader.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x5800}, words)

	header, words, err := reader.NextEvent()
	assert.ErrorIs(t, err, ErrGebRecord)
	assert.ErrorContains(t, err, "event 1")
	assert.Nil(t, words)
	assert.Equal(t, int64(8), header.Timestamp)
}

func TestFileReader(t *testing.T) {
	config := DefaultConfiguration()
	reader := NewFileReader(bytes.NewReader(gebFile(t, 3)), config)

	for i := range 3 {
		header, words, err := reader.NextEvent()
		require.NoError(t, err)
		assert.Equal(t, int32(GebTypeS800), header.Type)
		assert.Equal(t, int64(i), header.Timestamp)
		assert.Equal(t, []uint16{uint16(i), 0x5800}, words)
		assert.Equal(t, i, reader.EvtCount)
	}
	_, _, err := reader.NextEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileReaderSkipAndMaxEvents(t *testing.T) {
	config := DefaultConfiguration()
	config.Skip = 2
	config.MaxEvents = 2
	reader := NewFileReader(bytes.NewReader(gebFile(t, 10)), config)

	var read []uint16
	for {
		_, words, err := reader.NextEvent()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		read = append(read, words[0])
	}
	assert.Equal(t, []uint16{2, 3}, read)
}

func TestCountEvents(t *testing.T) {
	file := bytes.NewReader(gebFile(t, 4))
	count, err := CountEvents(file, GebTypeS800)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	position, err := file.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), position)

	count, err = CountEvents(file, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestEventsToProcess(t *testing.T) {
	assert.Equal(t, 8, EventsToProcess(10, 2, 100))
	assert.Equal(t, 5, EventsToProcess(10, 2, 5))
	assert.Equal(t, 0, EventsToProcess(3, 5, 100))
}
