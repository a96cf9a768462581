package s800

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ChannelCalibration struct {
	Pedestal float64
	Slope    float64
	Offset   float64
	Bad      bool
}

// CalibrationTable holds the per-channel gain/offset of one detector. It is
// read-only once event processing starts and is shared by all workers.
type CalibrationTable struct {
	Detector string
	Channels []ChannelCalibration
}

// UnitCalibration leaves raw amplitudes untouched and marks no channel bad.
func UnitCalibration(detector string, channels int) *CalibrationTable {
	table := &CalibrationTable{
		Detector: detector,
		Channels: make([]ChannelCalibration, channels),
	}
	for i := range table.Channels {
		table.Channels[i].Slope = 1
	}
	return table
}

func (c *CalibrationTable) IsBad(channel int) bool {
	if c == nil || channel < 0 || channel >= len(c.Channels) {
		return false
	}
	return c.Channels[channel].Bad
}

// Apply returns the calibrated amplitude of a channel, never negative.
// A channel without signal stays at zero.
func (c *CalibrationTable) Apply(channel int, raw int) float64 {
	if raw == 0 {
		return 0
	}
	if c == nil || channel < 0 || channel >= len(c.Channels) {
		return float64(raw)
	}
	cal := c.Channels[channel]
	value := (float64(raw)-cal.Pedestal)*cal.Slope + cal.Offset
	if value < 0 {
		return 0
	}
	return value
}

// MarkBad flags channels that must never enter a position calculation.
func (c *CalibrationTable) MarkBad(channels ...int) {
	for _, channel := range channels {
		if channel >= 0 && channel < len(c.Channels) {
			c.Channels[channel].Bad = true
		}
	}
}

// LoadCalibrationCSV reads <dir>/<detector>.csv with header
// Channel,Pedestal,Slope,Offset,Bad. Channels absent from the file keep a
// unit calibration.
func LoadCalibrationCSV(dir string, detector string, channels int) (*CalibrationTable, error) {
	filename := filepath.Join(dir, detector+".csv")
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration CSV %s: %w", filename, err)
	}

	table := UnitCalibration(detector, channels)
	if err := parseCalibrationRecords(records, table); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if verbosity > 0 {
		message := fmt.Sprintf("Calibration for %s read from %s (%d records)", detector, filename, len(records)-1)
		logger.Info(message, "calibration")
	}
	return table, nil
}

func parseCalibrationRecords(records [][]string, table *CalibrationTable) error {
	if len(records) < 1 {
		return fmt.Errorf("empty calibration file")
	}

	expected := []string{"channel", "pedestal", "slope", "offset", "bad"}
	header := records[0]
	if len(header) != len(expected) {
		return fmt.Errorf("invalid header, expected: Channel,Pedestal,Slope,Offset,Bad")
	}
	for i, name := range expected {
		if strings.ToLower(strings.TrimSpace(header[i])) != name {
			return fmt.Errorf("invalid header, expected: Channel,Pedestal,Slope,Offset,Bad")
		}
	}

	for i, record := range records[1:] {
		line := i + 2
		if len(record) != len(expected) {
			return fmt.Errorf("invalid record at line %d: expected %d fields", line, len(expected))
		}
		channel, err := strconv.Atoi(record[0])
		if err != nil {
			return fmt.Errorf("invalid channel number at line %d: %v", line, err)
		}
		if channel < 0 || channel >= len(table.Channels) {
			return fmt.Errorf("channel number %d out of range (0-%d) at line %d", channel, len(table.Channels)-1, line)
		}
		var values [3]float64
		for j := range values {
			values[j], err = strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return fmt.Errorf("invalid %s at line %d: %v", expected[j+1], line, err)
			}
		}
		bad, err := strconv.ParseBool(record[4])
		if err != nil {
			return fmt.Errorf("invalid bad flag at line %d: %v", line, err)
		}
		table.Channels[channel] = ChannelCalibration{
			Pedestal: values[0],
			Slope:    values[1],
			Offset:   values[2],
			Bad:      bad,
		}
	}
	return nil
}
