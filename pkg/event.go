package s800

import (
	"errors"
	"fmt"
	"math"
)

// EventType is everything reconstructed from one S800 event.
type EventType struct {
	EventNumber  int
	RunNumber    int
	Timestamp    uint64
	Planes       []PlanePosition
	Aux          AuxData
	Trajectories []TrajectoryResult
	Errors       []error
	// Error is set when part of the event could not be decoded.
	Error bool
}

func (e *EventType) addError(err error) {
	e.Errors = append(e.Errors, err)
	e.Error = true
}

// PlaneMap indexes the plane positions by plane name.
func (e *EventType) PlaneMap() map[string]PlanePosition {
	planes := make(map[string]PlanePosition, len(e.Planes))
	for _, plane := range e.Planes {
		planes[plane.Name] = plane
	}
	return planes
}

// Values flattens the event into named quantities: <plane>.x, <plane>.y,
// <plane>.pad, <station>.<parameter> and the auxiliary values.
func (e *EventType) Values() (map[string]float64, map[string]bool) {
	values := e.Aux.Values()
	valid := make(map[string]bool, len(values)+4*len(e.Planes))
	for name, value := range values {
		valid[name] = !math.IsNaN(value)
	}
	for _, plane := range e.Planes {
		values[plane.Name+".x"] = plane.X
		valid[plane.Name+".x"] = plane.ValidX
		values[plane.Name+".y"] = plane.Y
		valid[plane.Name+".y"] = plane.ValidY
		values[plane.Name+".pad"] = plane.Pads.X
		valid[plane.Name+".pad"] = plane.Pads.Valid
	}
	for _, trajectory := range e.Trajectories {
		for i, name := range trajectory.Names {
			key := trajectory.Station + "." + name
			values[key] = trajectory.Values[i]
			valid[key] = trajectory.Valid[i]
		}
	}
	return values, valid
}

// Processor runs the decode, calibrate and reconstruct chain on single
// events. It only reads shared state and can be used by several workers.
type Processor struct {
	framing  Framing
	crdcs    []*Crdc
	tppacs   []*TppacPair
	aux      *AuxDecoder
	stations []*Station
}

// LoadMaps loads the inverse map of every station. A map that cannot be
// used is a configuration error.
func LoadMaps(config Configuration) (map[string]*OpticsMap, error) {
	maps := make(map[string]*OpticsMap, len(config.Stations))
	for _, station := range config.Stations {
		opticsMap := NewOpticsMap()
		if err := opticsMap.Load(station.Map, station.MapFormat); err != nil {
			return nil, fmt.Errorf("station %s: %w", station.Name, err)
		}
		if !opticsMap.IsLoaded() {
			return nil, &ConfigError{Field: "stations." + station.Name + ".map",
				Reason: fmt.Sprintf("%s has maximum order 0", station.Map)}
		}
		maps[station.Name] = opticsMap
	}
	return maps, nil
}

func NewProcessor(config Configuration, calibrations map[string]*CalibrationTable, maps map[string]*OpticsMap) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	processor := &Processor{framing: config.Framing}

	for _, d := range config.Detectors {
		switch d.Kind {
		case DetectorCrdc:
			crdc, err := NewCrdc(d, calibrations[d.Name])
			if err != nil {
				return nil, err
			}
			processor.crdcs = append(processor.crdcs, crdc)
		case DetectorTppac:
			pair, err := NewTppacPair(d, calibrations[d.Name])
			if err != nil {
				return nil, err
			}
			processor.tppacs = append(processor.tppacs, pair)
		}
	}

	aux, err := NewAuxDecoder(config.Aux)
	if err != nil {
		return nil, err
	}
	processor.aux = aux

	for _, s := range config.Stations {
		opticsMap, ok := maps[s.Name]
		if !ok {
			return nil, &ConfigError{Field: "stations." + s.Name + ".map", Reason: "map not loaded"}
		}
		station, err := NewStation(s, opticsMap)
		if err != nil {
			return nil, err
		}
		processor.stations = append(processor.stations, station)
	}
	return processor, nil
}

func (p *Processor) Stations() []*Station {
	return p.stations
}

// ProcessEvent reconstructs one event. Failures are local: a malformed
// packet stops the splitting but the packets before it are used, and a
// detector that fails to decode does not affect the others.
func (p *Processor) ProcessEvent(eventNumber int, buf []uint16) EventType {
	event := EventType{EventNumber: eventNumber}

	packets, err := SplitSubPackets(buf, p.framing)
	if err != nil {
		event.addError(fmt.Errorf("event %d: %w", eventNumber, err))
		logger.Error(fmt.Sprintf("event %d: %v", eventNumber, err))
	}

	for _, crdc := range p.crdcs {
		plane, err := crdc.Process(packets)
		if err != nil {
			event.addError(err)
			if verbosity > 0 {
				logger.Info(fmt.Sprintf("Event %d: %v", eventNumber, err), "event")
			}
		}
		event.Planes = append(event.Planes, plane)
	}
	for _, pair := range p.tppacs {
		planes, err := pair.Process(packets)
		if err != nil {
			event.addError(err)
			if verbosity > 0 {
				logger.Info(fmt.Sprintf("Event %d: %v", eventNumber, err), "event")
			}
		}
		event.Planes = append(event.Planes, planes...)
	}

	aux, errs := p.aux.Decode(packets)
	event.Aux = aux
	for _, err := range errs {
		event.addError(err)
	}
	if aux.HasTimestamp {
		event.Timestamp = aux.Timestamp
	}
	if aux.HasEventNumber {
		event.EventNumber = int(aux.EventNumber)
	}

	planes := event.PlaneMap()
	auxValues := aux.Values()
	for _, station := range p.stations {
		trajectory, errs := station.Track(planes, auxValues)
		for _, err := range errs {
			// An undetermined input is an expected outcome, not a failure.
			if errors.Is(err, ErrMissingInput) {
				continue
			}
			event.addError(err)
		}
		event.Trajectories = append(event.Trajectories, trajectory)
	}
	return event
}
