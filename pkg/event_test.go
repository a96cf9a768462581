package s800

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packetWords builds a sub-packet whose length counts the header.
func packetWords(tag uint16, payload ...uint16) []uint16 {
	return append([]uint16{uint16(len(payload) + 2), tag}, payload...)
}

func envelopeWords(packets ...[]uint16) []uint16 {
	body := []uint16{0x0005}
	for _, p := range packets {
		body = append(body, p...)
	}
	return packetWords(0x5800, body...)
}

// padWords hits two neighbouring pads of a fast encoded CRDC.
func padWords(id uint16, channel int) []uint16 {
	return packetWords(0x5810, id, 0,
		EncodeFastReference(0, channel%64), EncodeFastData(channel/64, 100),
		EncodeFastReference(0, channel%64+1), EncodeFastData(channel/64, 100))
}

func anodeWords(id uint16, tac uint16) []uint16 {
	return packetWords(0x5821, id, 0, 500, tac)
}

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	config := DefaultConfiguration()
	config.Stations[0].Outputs = nil
	processor, err := NewProcessor(config, nil, map[string]*OpticsMap{"fp": linearMap()})
	require.NoError(t, err)
	return processor
}

func TestProcessEvent(t *testing.T) {
	processor := testProcessor(t)
	require.Len(t, processor.Stations(), 1)

	buf := envelopeWords(
		padWords(0, 100),
		anodeWords(0, 100),
		padWords(1, 110),
		anodeWords(1, 120),
		packetWords(0x5803, 0x0010, 0, 0, 0),
		packetWords(0x5804, 77, 0, 0),
	)
	event := processor.ProcessEvent(3, buf)
	assert.False(t, event.Error, event.Errors)
	assert.Equal(t, 77, event.EventNumber)
	assert.Equal(t, uint64(0x10), event.Timestamp)

	require.Len(t, event.Planes, 2)
	crdc1, crdc2 := event.Planes[0], event.Planes[1]
	assert.InDelta(t, 100.5*2.54-281.94, crdc1.X, 1e-9)
	assert.InDelta(t, 110.5*2.54-281.94, crdc2.X, 1e-9)
	assert.Equal(t, 100.0, crdc1.Y)
	assert.Equal(t, 120.0, crdc2.Y)

	require.Len(t, event.Trajectories, 1)
	trajectory := event.Trajectories[0]
	ata, ok := trajectory.Value("ata")
	assert.True(t, ok)
	assert.InDelta(t, math.Atan(25.4/1073), ata, 1e-9)
	bta, ok := trajectory.Value("bta")
	assert.True(t, ok)
	assert.InDelta(t, math.Atan(20.0/1073), bta, 1e-9)

	values, valid := event.Values()
	assert.InDelta(t, crdc1.X, values["crdc1.x"], 1e-12)
	assert.True(t, valid["crdc1.x"])
	assert.InDelta(t, 100.5, values["crdc1.pad"], 1e-9)
	assert.Equal(t, ata, values["fp.ata"])
	assert.False(t, valid["tof.obj"])
}

func TestProcessEventMissingPlane(t *testing.T) {
	processor := testProcessor(t)
	event := processor.ProcessEvent(1, envelopeWords(padWords(0, 100)))

	assert.False(t, event.Error)
	assert.Equal(t, 1, event.EventNumber)
	assert.True(t, event.Planes[0].ValidX)
	assert.False(t, event.Planes[1].ValidX)
	for _, valid := range event.Trajectories[0].Valid {
		assert.False(t, valid)
	}
}

func TestProcessEventMalformedPacket(t *testing.T) {
	processor := testProcessor(t)
	buf := envelopeWords(padWords(0, 100), []uint16{50, 0x5801, 1})
	event := processor.ProcessEvent(2, buf)

	require.True(t, event.Error)
	assert.ErrorIs(t, event.Errors[0], ErrMalformedPacket)
	assert.True(t, event.Planes[0].ValidX)
}

func TestProcessEventDecodeError(t *testing.T) {
	processor := testProcessor(t)
	buf := envelopeWords(
		packetWords(0x5810, 0, 0, EncodeFastData(1, 100)),
		padWords(1, 110),
	)
	event := processor.ProcessEvent(4, buf)

	require.True(t, event.Error)
	require.Len(t, event.Errors, 1)
	assert.ErrorIs(t, event.Errors[0], ErrDecode)
	assert.False(t, event.Planes[0].ValidX)
	assert.True(t, event.Planes[1].ValidX)
}

func TestProcessEventWrongEnvelope(t *testing.T) {
	processor := testProcessor(t)
	event := processor.ProcessEvent(5, packetWords(0x5900, 1, 2, 3))
	assert.True(t, event.Error)
	require.Len(t, event.Planes, 2)
	assert.False(t, event.Planes[0].ValidX)
}

func TestNewProcessorNeedsMaps(t *testing.T) {
	_, err := NewProcessor(DefaultConfiguration(), nil, nil)
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "stations.fp.map", configErr.Field)

	config := DefaultConfiguration()
	config.NumWorkers = 0
	_, err = NewProcessor(config, nil, nil)
	assert.ErrorAs(t, err, &configErr)
}

func TestLoadMaps(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfiguration()
	config.Stations[0].MapFormat = MapFormatTable

	config.Stations[0].Map = writeFile(t, dir, "zero.map", "1 0 1\n1\n1.0 0\n")
	_, err := LoadMaps(config)
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)

	config.Stations[0].Map = writeFile(t, dir, "fp.map", tableMap)
	maps, err := LoadMaps(config)
	require.NoError(t, err)
	assert.True(t, maps["fp"].IsLoaded())
	assert.Equal(t, config.Stations[0].Map, maps["fp"].Path())

	config.Stations[0].Map = dir + "/missing.map"
	_, err = LoadMaps(config)
	assert.Error(t, err)
}
