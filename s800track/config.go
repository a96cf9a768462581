package main

import (
	"fmt"

	s800 "github.com/s800-analysis/s800go/pkg"
)

// loadConfiguration reads the configuration file, if any, and applies the
// S800_* environment overrides.
func loadConfiguration(filename string) (s800.Configuration, error) {
	config := s800.DefaultConfiguration()
	if filename != "" {
		var err error
		config, err = s800.LoadConfiguration(filename)
		if err != nil {
			return config, err
		}
	}
	s800.FromEnv(&config)
	return config, nil
}

func printConfiguration(config s800.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("File out2: %s", config.FileOut2), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("GEB event type: %d", config.EventType), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Selection: %q", config.Selection), "config")
	logger.Info(fmt.Sprintf("Split selection: %t", config.SplitSelection), "config")
	logger.Info(fmt.Sprintf("Discard: %t", config.Discard), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Calibration: %s (%s)", config.Calibration.Source, config.Calibration.Driver), "config")
	if config.Calibration.Driver == "mysql" {
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	}
	for _, d := range config.Detectors {
		logger.Info(fmt.Sprintf("Detector %s: %s tag %s, %d channels, %s encoding",
			d.Name, d.Kind, d.Tag, d.Channels, d.Encoding), "config")
	}
	for _, s := range config.Stations {
		logger.Info(fmt.Sprintf("Station %s: map %s (%s), order %d, outputs %v",
			s.Name, s.Map, s.MapFormat, s.Order, s.Outputs), "config")
	}
}
