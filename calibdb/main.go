package main

import (
	"fmt"
	"log/slog"
	"os"

	sqlx "github.com/jmoiron/sqlx"
	s800 "github.com/s800-analysis/s800go/pkg"
	"github.com/spf13/cobra"
)

type Logger struct {
	log *slog.Logger
}

func (l Logger) Info(message string, module string) {
	l.log.Info(message, "module", module)
}

func (l Logger) Error(message string) {
	l.log.Error(message)
}

var logger = Logger{log: slog.New(slog.NewTextHandler(os.Stderr, nil))}

func openDB(cmd *cobra.Command) (*sqlx.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		return nil, fmt.Errorf("--db is required")
	}
	db, err := s800.OpenLocalDatabase(path)
	if err != nil {
		return nil, &s800.ErrOpenFile{Filename: path, Err: err}
	}
	if err := s800.MigrateLocalDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	s800.SetLogger(logger)

	rootCmd := &cobra.Command{
		Use:          "calibdb",
		Short:        "Manage a local S800 pad calibration database",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("db", "", "SQLite database file")
	rootCmd.PersistentFlags().IntP("verbosity", "v", 0, "Verbosity level")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		v, _ := cmd.Flags().GetInt("verbosity")
		s800.SetVerbosity(v)
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Println("schema up to date")
			return nil
		},
	}
	rootCmd.AddCommand(migrateCmd)

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import <dir>/<detector>.csv for a run range",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			detector, _ := cmd.Flags().GetString("detector")
			channels, _ := cmd.Flags().GetInt("channels")
			minRun, _ := cmd.Flags().GetInt("min-run")
			maxRun, _ := cmd.Flags().GetInt("max-run")
			if detector == "" {
				return fmt.Errorf("--detector is required")
			}

			table, err := s800.LoadCalibrationCSV(dir, detector, channels)
			if err != nil {
				return err
			}
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := s800.StoreCalibration(db, table, minRun, maxRun); err != nil {
				return err
			}
			fmt.Printf("imported %d channels of %s for runs %d-%d\n", len(table.Channels), detector, minRun, maxRun)
			return nil
		},
	}
	importCmd.Flags().String("dir", ".", "Directory with the calibration CSV files")
	importCmd.Flags().String("detector", "", "Detector name")
	importCmd.Flags().Int("channels", 256, "Number of channels")
	importCmd.Flags().Int("min-run", 0, "First run the calibration applies to")
	importCmd.Flags().Int("max-run", 1<<30, "Last run the calibration applies to")
	rootCmd.AddCommand(importCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the calibration of a detector for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			detector, _ := cmd.Flags().GetString("detector")
			channels, _ := cmd.Flags().GetInt("channels")
			run, _ := cmd.Flags().GetInt("run")
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			table, err := s800.LoadCalibrationFromDB(db, run, detector, channels)
			if err != nil {
				return err
			}
			fmt.Println("Channel,Pedestal,Slope,Offset,Bad")
			for ch, cal := range table.Channels {
				fmt.Printf("%d,%g,%g,%g,%t\n", ch, cal.Pedestal, cal.Slope, cal.Offset, cal.Bad)
			}
			return nil
		},
	}
	showCmd.Flags().String("detector", "", "Detector name")
	showCmd.Flags().Int("channels", 256, "Number of channels")
	showCmd.Flags().Int("run", 0, "Run number")
	rootCmd.AddCommand(showCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
