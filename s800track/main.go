package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	s800 "github.com/s800-analysis/s800go/pkg"
	"github.com/spf13/cobra"
)

var configuration s800.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	logger = NewLogger(os.Stdout, os.Stderr)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "s800track",
		Short:         "S800 event decoder and focal plane tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a GEB file and write positions and trajectories to HDF5",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFilename, _ := cmd.Flags().GetString("config")
			var err error
			configuration, err = loadConfiguration(configFilename)
			if err != nil {
				return fmt.Errorf("error reading configuration file: %w", err)
			}
			if v, _ := cmd.Flags().GetString("in"); v != "" {
				configuration.FileIn = v
			}
			if v, _ := cmd.Flags().GetString("out"); v != "" {
				configuration.FileOut = v
			}
			if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
				configuration.NumWorkers = v
			}
			if v, _ := cmd.Flags().GetInt("run"); v > 0 {
				configuration.RunNumber = v
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return decode(ctx, configFilename)
		},
	}
	decodeCmd.Flags().String("config", "", "Configuration file path")
	decodeCmd.Flags().String("in", "", "Input GEB file (overrides file_in)")
	decodeCmd.Flags().String("out", "", "Output HDF5 file (overrides file_out)")
	decodeCmd.Flags().Int("workers", 0, "Number of workers (overrides num_workers)")
	decodeCmd.Flags().Int("run", 0, "Run number (overrides run_number)")
	rootCmd.AddCommand(decodeCmd)

	mapCmd := &cobra.Command{Use: "map", Short: "Inverse map commands"}
	mapCheckCmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Parse an inverse map and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			format, err := s800.ParseMapFormat(formatName)
			if err != nil {
				return err
			}
			return checkMap(args[0], format)
		},
	}
	mapCheckCmd.Flags().String("format", "cosy", "Map format: cosy|table")
	mapCmd.AddCommand(mapCheckCmd)
	rootCmd.AddCommand(mapCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func decode(ctx context.Context, configFilename string) error {
	VerbosityLevel = configuration.Verbosity
	s800.SetLogger(logger)
	s800.SetVerbosity(VerbosityLevel)
	if VerbosityLevel > 0 {
		logger.Info(fmt.Sprintf("Reading configuration file: %s", configFilename), "main")
		printConfiguration(configuration, logger)
	}
	if err := configuration.Validate(); err != nil {
		return err
	}

	processID := uuid.New().String()
	logger.Info(fmt.Sprintf("Run %d, process ID %s", configuration.RunNumber, processID), "main")

	selection, err := s800.NewSelection(configuration.Selection)
	if err != nil {
		return err
	}
	calibrations, err := s800.LoadCalibrations(configuration)
	if err != nil {
		return err
	}
	maps, err := s800.LoadMaps(configuration)
	if err != nil {
		return err
	}
	processor, err := s800.NewProcessor(configuration, calibrations, maps)
	if err != nil {
		return err
	}

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return &s800.ErrOpenFile{Filename: configuration.FileIn, Err: err}
	}
	defer file.Close()

	evtCount, err := s800.CountEvents(file, configuration.EventType)
	if err != nil {
		return err
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Number of events: %d, to process: %d", evtCount,
			s800.EventsToProcess(evtCount, configuration.Skip, configuration.MaxEvents))
		logger.Info(message, "main")
	}

	var writer, writer2 *s800.Writer
	if configuration.WriteData {
		writer, err = s800.NewWriter(configuration.FileOut, configuration, processor.Stations(), processID)
		if err != nil {
			return err
		}
		defer closeWriter(writer)
		if configuration.SplitSelection {
			writer2, err = s800.NewWriter(configuration.FileOut2, configuration, processor.Stations(), processID)
			if err != nil {
				return err
			}
			defer closeWriter(writer2)
		}
	}

	fileReader := s800.NewFileReader(bufio.NewReaderSize(file, 1<<20), configuration)
	summary, err := runWorkers(ctx, fileReader, processor, selection, writer, writer2)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Processed %d events (%d with errors), %d written in %d ms",
		summary.Read, summary.Errors, summary.Written, summary.Duration.Milliseconds())
	logger.Info(message, "main")

	recordRun(processID, summary)
	return nil
}

func closeWriter(w *s800.Writer) {
	if err := w.Close(); err != nil {
		logger.Error(err.Error())
	}
}

// recordRun keeps the processing summary in the local calibration database.
func recordRun(processID string, summary RunSummary) {
	if configuration.Calibration.Source != "db" || configuration.Calibration.Driver != "sqlite" {
		return
	}
	db, err := s800.OpenCalibrationDatabase(configuration)
	if err != nil {
		logger.Error(fmt.Errorf("error opening run database: %w", err).Error())
		return
	}
	defer db.Close()
	if err := s800.RecordRun(db, configuration.RunNumber, processID, summary.Read, summary.Errors); err != nil {
		logger.Error(err.Error())
	}
}

func checkMap(path string, format s800.MapFormat) error {
	table, err := s800.ParseMapFile(path, format)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s map, maximum order %d, %d variables, %d terms\n",
		path, format, table.MaxOrder, table.Variables, table.Terms())
	if table.MaxOrder == 0 {
		fmt.Println("maximum order 0: the map cannot be used for tracking")
	}
	inputs := make([]float64, table.Variables)
	for i, name := range table.Names {
		value, err := table.Evaluate(table.MaxOrder, i, inputs)
		if err != nil {
			fmt.Printf("  %-8s %3d terms  error: %v\n", name, len(table.Params[i]), err)
			continue
		}
		fmt.Printf("  %-8s %3d terms  value at origin %g\n", name, len(table.Params[i]), value)
	}
	return nil
}
