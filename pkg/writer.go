package s800

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

type closer interface {
	Close() error
}

type namedCloser struct {
	name string
	c    closer
}

// Writer stores processed events in an HDF5 file:
//
//	/Run/events            event number, timestamp, error flag
//	/Run/runInfo           run number and processing ID
//	/Planes/positions      [event, plane, (x, y, pad)] in mm, NaN if invalid
//	/Planes/names
//	/Tracking/<station>    [event, parameter], NaN if invalid
//	/Tracking/<station>_names
//	/Aux/values            [event, quantity]
//	/Aux/names
type Writer struct {
	File          *hdf5.File
	Filename      string
	FirstEvt      bool
	RunGroup      *hdf5.Group
	PlanesGroup   *hdf5.Group
	TrackingGroup *hdf5.Group
	AuxGroup      *hdf5.Group
	EventTable    *hdf5.Dataset
	RunInfoTable  *hdf5.Dataset
	PlaneNames    *hdf5.Dataset
	Positions     *hdf5.Dataset
	AuxNames      *hdf5.Dataset
	AuxValues     *hdf5.Dataset
	Trajectories  map[string]*hdf5.Dataset
	EvtCounter    int

	runNumber   int
	processID   string
	planes      []string
	aux         []string
	stations    []string
	parameters  map[string][]string
	compression int
	// opened objects, closed in reverse order
	closers []namedCloser
}

func (w *Writer) track(name string, c closer) {
	w.closers = append(w.closers, namedCloser{name: name, c: c})
}

// NewWriter creates the output file and every dataset whose shape is known
// from the configuration.
func NewWriter(filename string, config Configuration, stations []*Station, processID string) (*Writer, error) {
	hdf5.SetStringLength(STRLEN)

	if verbosity > 0 {
		logger.Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")
	}
	w := &Writer{
		Filename:     filename,
		runNumber:    config.RunNumber,
		processID:    processID,
		planes:       config.PlaneNames(),
		aux:          slices.Sorted(maps.Keys(newAuxData().Values())),
		parameters:   make(map[string][]string, len(stations)),
		Trajectories: make(map[string]*hdf5.Dataset, len(stations)),
		compression:  config.CompressionLevel,
	}
	for _, station := range stations {
		w.stations = append(w.stations, station.Name())
		w.parameters[station.Name()] = station.Names()
	}

	if err := w.create(); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}
	return w, nil
}

func (w *Writer) create() error {
	var err error
	if w.File, err = openFile(w.Filename); err != nil {
		return err
	}
	w.track("file", w.File)

	groups := []struct {
		name  string
		group **hdf5.Group
	}{
		{"Run", &w.RunGroup},
		{"Planes", &w.PlanesGroup},
		{"Tracking", &w.TrackingGroup},
		{"Aux", &w.AuxGroup},
	}
	for _, g := range groups {
		if *g.group, err = createGroup(w.File, g.name); err != nil {
			return err
		}
		w.track(g.name+" group", *g.group)
	}

	tables := []struct {
		group    *hdf5.Group
		name     string
		datatype any
		dset     **hdf5.Dataset
	}{
		{w.RunGroup, "events", EventDataHDF5{}, &w.EventTable},
		{w.RunGroup, "runInfo", RunInfoHDF5{}, &w.RunInfoTable},
		{w.PlanesGroup, "names", NameHDF5{}, &w.PlaneNames},
		{w.AuxGroup, "names", NameHDF5{}, &w.AuxNames},
	}
	for _, t := range tables {
		if *t.dset, err = createTable(t.group, t.name, t.datatype, w.compression); err != nil {
			return err
		}
		w.track(t.name+" table", *t.dset)
	}

	if w.Positions, err = create3dArray(w.PlanesGroup, "positions", len(w.planes), planeColumns, w.compression); err != nil {
		return err
	}
	w.track("plane positions", w.Positions)
	if w.AuxValues, err = create2dArray(w.AuxGroup, "values", len(w.aux), w.compression); err != nil {
		return err
	}
	w.track("aux values", w.AuxValues)

	for _, station := range w.stations {
		dset, err := create2dArray(w.TrackingGroup, station, len(w.parameters[station]), w.compression)
		if err != nil {
			return err
		}
		w.track(station+" trajectories", dset)
		w.Trajectories[station] = dset

		names, err := createTable(w.TrackingGroup, station+"_names", NameHDF5{}, w.compression)
		if err != nil {
			return err
		}
		w.track(station+" names", names)
		entries := namesToHdf5(w.parameters[station])
		if err := writeArrayToTable(names, &entries, 0); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeHeaderTables() error {
	runInfo := RunInfoHDF5{
		run_number: int32(w.runNumber),
		process_id: convertToHdf5String(w.processID),
	}
	if err := writeEntryToTable(w.RunInfoTable, runInfo, 0); err != nil {
		return err
	}
	planeNames := namesToHdf5(w.planes)
	if err := writeArrayToTable(w.PlaneNames, &planeNames, 0); err != nil {
		return err
	}
	auxNames := namesToHdf5(w.aux)
	return writeArrayToTable(w.AuxNames, &auxNames, 0)
}

func (w *Writer) WriteEvent(event *EventType) error {
	if !w.FirstEvt {
		if err := w.writeHeaderTables(); err != nil {
			return fmt.Errorf("%s: %w", w.Filename, err)
		}
		w.FirstEvt = true
	}

	var errFlag int32
	if event.Error {
		errFlag = 1
	}
	evtData := EventDataHDF5{
		evt_number: int32(event.EventNumber),
		timestamp:  event.Timestamp,
		has_error:  errFlag,
	}
	if err := writeEntryToTable(w.EventTable, evtData, w.EvtCounter); err != nil {
		return fmt.Errorf("%s events: %w", w.Filename, err)
	}

	planes := event.PlaneMap()
	positions := make([]float64, len(w.planes)*planeColumns)
	for i, name := range w.planes {
		row := positions[i*planeColumns : (i+1)*planeColumns]
		row[planeX], row[planeY], row[planePad] = math.NaN(), math.NaN(), math.NaN()
		plane, ok := planes[name]
		if !ok {
			continue
		}
		if plane.ValidX {
			row[planeX] = plane.X
		}
		if plane.ValidY {
			row[planeY] = plane.Y
		}
		if plane.Pads.Valid {
			row[planePad] = plane.Pads.X
		}
	}
	if err := writeRow(w.Positions, &positions, w.EvtCounter, len(w.planes), planeColumns); err != nil {
		return fmt.Errorf("%s positions: %w", w.Filename, err)
	}

	auxValues := event.Aux.Values()
	values := make([]float64, len(w.aux))
	for i, name := range w.aux {
		values[i] = auxValues[name]
	}
	if err := writeRow(w.AuxValues, &values, w.EvtCounter, len(w.aux)); err != nil {
		return fmt.Errorf("%s aux: %w", w.Filename, err)
	}

	for _, station := range w.stations {
		names := w.parameters[station]
		row := make([]float64, len(names))
		for i := range row {
			row[i] = math.NaN()
		}
		for _, trajectory := range event.Trajectories {
			if trajectory.Station != station {
				continue
			}
			for i, name := range names {
				if value, ok := trajectory.Value(name); ok {
					row[i] = value
				}
			}
		}
		if err := writeRow(w.Trajectories[station], &row, w.EvtCounter, len(names)); err != nil {
			return fmt.Errorf("%s %s: %w", w.Filename, station, err)
		}
	}

	w.EvtCounter++
	return nil
}

func (w *Writer) Close() error {
	if verbosity > 0 {
		logger.Info(fmt.Sprintf("Closing file %s (%d events)", w.Filename, w.EvtCounter), "hdf5writer")
	}
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", w.closers[i].name, err))
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}

// ProcessDecodedEvent routes an event to its output file. Selected events go
// to writer; with split selection the rejected ones go to writer2.
func ProcessDecodedEvent(event EventType, configuration Configuration, selection *Selection,
	writer *Writer, writer2 *Writer) error {
	if !configuration.WriteData {
		return nil
	}
	if event.Error && configuration.Discard {
		if verbosity > 0 {
			logger.Info(fmt.Sprintf("Discarding event %d", event.EventNumber), "writer")
		}
		return nil
	}
	selected := selection == nil || selection.Select(&event)
	switch {
	case selected:
		return writer.WriteEvent(&event)
	case configuration.SplitSelection && writer2 != nil:
		return writer2.WriteEvent(&event)
	}
	return nil
}
