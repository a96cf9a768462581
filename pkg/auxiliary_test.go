package s800

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auxWord(channel int, value int) uint16 {
	return uint16(channel<<12 | value)
}

func auxDecoder(t *testing.T) *AuxDecoder {
	t.Helper()
	decoder, err := NewAuxDecoder(DefaultConfiguration().Aux)
	require.NoError(t, err)
	return decoder
}

func TestAuxTriggerAndTof(t *testing.T) {
	aux, errs := auxDecoder(t).Decode([]SubPacket{
		{Tag: 0x5801, Payload: []uint16{0x0005, auxWord(triggerS800, 1000), auxWord(triggerSecondary, 1200)}},
		{Tag: 0x5802, Payload: []uint16{auxWord(tofOBJ, 1500), auxWord(tofXFP, 1800), auxWord(tofRF, 1100)}},
	})
	assert.Empty(t, errs)

	assert.Equal(t, uint16(0x0005), aux.Trigger.Register)
	assert.Equal(t, 1000.0, aux.Trigger.S800)
	assert.Equal(t, 1200.0, aux.Trigger.Secondary)
	assert.True(t, math.IsNaN(aux.Trigger.External1))

	assert.Equal(t, 500.0, aux.Tof.OBJ)
	assert.Equal(t, 800.0, aux.Tof.XFP)
	assert.Equal(t, 100.0, aux.Tof.RF)
	assert.Equal(t, 300.0, aux.Tof.XfpObj)

	values := aux.Values()
	assert.Equal(t, 500.0, values["tof.obj"])
	assert.Equal(t, 1000.0, values["trigger.s800"])
	assert.True(t, math.IsNaN(values["ic.de"]))
}

func TestAuxTofWithoutTrigger(t *testing.T) {
	aux, errs := auxDecoder(t).Decode([]SubPacket{
		{Tag: 0x5802, Payload: []uint16{auxWord(tofOBJ, 1500)}},
	})
	assert.Empty(t, errs)
	assert.True(t, math.IsNaN(aux.Tof.OBJ))
	assert.True(t, math.IsNaN(aux.Tof.XfpObj))
}

func TestAuxUnknownTriggerChannel(t *testing.T) {
	aux, errs := auxDecoder(t).Decode([]SubPacket{
		{Tag: 0x5801, Payload: []uint16{0x0001, auxWord(triggerS800, 10), auxWord(2, 1)}},
		{Tag: 0x5803, Payload: []uint16{1, 0, 0, 0}},
	})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDecode)
	assert.Equal(t, 10.0, aux.Trigger.S800)
	assert.True(t, aux.HasTimestamp)
}

func TestAuxEmptyTrigger(t *testing.T) {
	_, errs := auxDecoder(t).Decode([]SubPacket{{Tag: 0x5801}})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDecode)
}

func TestAuxIonChamber(t *testing.T) {
	config := DefaultConfiguration().Aux
	config.IonChamber = IonChamberConfig{
		Channels: 4,
		Slopes:   []float64{1, 2, 1, 1},
		Offsets:  []float64{0, 0, 10, 0},
		DESlope:  0.5,
		DEOffset: 1,
	}
	decoder, err := NewAuxDecoder(config)
	require.NoError(t, err)

	aux, errs := decoder.Decode([]SubPacket{
		{Tag: 0x5820, Payload: []uint16{auxWord(0, 100), auxWord(1, 50), auxWord(2, 90)}},
	})
	assert.Empty(t, errs)
	assert.Equal(t, []int{100, 50, 90, 0}, aux.IonChamber.Raw)
	assert.Equal(t, []float64{100, 100, 100, 0}, aux.IonChamber.Cal)
	assert.Equal(t, 100.0, aux.IonChamber.Sum)
	assert.Equal(t, 51.0, aux.IonChamber.DE)

	_, errs = decoder.Decode([]SubPacket{{Tag: 0x5820, Payload: []uint16{auxWord(5, 1)}}})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDecode)
}

func TestAuxTimestampAndEventNumber(t *testing.T) {
	aux, errs := auxDecoder(t).Decode([]SubPacket{
		{Tag: 0x5803, Payload: []uint16{0x3333, 0x2222, 0x1111, 0x0001}},
		{Tag: 0x5804, Payload: []uint16{0x0003, 0x0002, 0x0001}},
	})
	assert.Empty(t, errs)
	assert.True(t, aux.HasTimestamp)
	assert.Equal(t, uint64(0x0001111122223333), aux.Timestamp)
	assert.True(t, aux.HasEventNumber)
	assert.Equal(t, uint64(0x000100020003), aux.EventNumber)

	aux, errs = auxDecoder(t).Decode([]SubPacket{{Tag: 0x5803, Payload: []uint16{1, 2}}})
	require.Len(t, errs, 1)
	assert.False(t, aux.HasTimestamp)
}

func TestNewAuxDecoderErrors(t *testing.T) {
	config := DefaultConfiguration().Aux
	config.IonChamber.Channels = 17
	_, err := NewAuxDecoder(config)
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "aux.ion_chamber.channels", configErr.Field)

	config = DefaultConfiguration().Aux
	config.IonChamber.Slopes = []float64{1, 2}
	_, err = NewAuxDecoder(config)
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "aux.ion_chamber.slopes", configErr.Field)

	config.IonChamberTag = 0
	_, err = NewAuxDecoder(config)
	assert.NoError(t, err)
}
