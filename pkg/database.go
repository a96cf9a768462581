package s800

import (
	"embed"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlx "github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectToDatabase opens the experiment calibration database (MySQL).
func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// OpenLocalDatabase opens a local SQLite calibration database.
func OpenLocalDatabase(path string) (*sqlx.DB, error) {
	return sqlx.Connect("sqlite", path)
}

// MigrateLocalDatabase brings the schema of a local database to the latest version.
func MigrateLocalDatabase(db *sqlx.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	if verbosity > 0 {
		version, _, _ := m.Version()
		logger.Info(fmt.Sprintf("Local database at schema version %d", version), "database")
	}
	return nil
}

type PadCalibrationEntry struct {
	Detector string  `db:"Detector"`
	Channel  int     `db:"Channel"`
	Pedestal float64 `db:"Pedestal"`
	Slope    float64 `db:"Slope"`
	Offset   float64 `db:"Offset"`
	Bad      bool    `db:"Bad"`
	MinRun   int     `db:"MinRun"`
	MaxRun   int     `db:"MaxRun"`
}

// LoadCalibrationFromDB reads the calibration of a detector valid for a run.
// Channels without a row keep a unit calibration.
func LoadCalibrationFromDB(db *sqlx.DB, runNumber int, detector string, channels int) (*CalibrationTable, error) {
	query := "SELECT Detector, Channel, Pedestal, Slope, Offset, Bad, MinRun, MaxRun FROM PadCalibration " +
		"WHERE Detector = ? AND MinRun <= ? AND MaxRun >= ? ORDER BY Channel"

	if verbosity > 0 {
		message := fmt.Sprintf("Reading %s calibration for run %d from database", detector, runNumber)
		logger.Info(message, "database")
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}
	rows, err := db.Queryx(query, detector, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	table := UnitCalibration(detector, channels)
	for rows.Next() {
		result := PadCalibrationEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		if result.Channel < 0 || result.Channel >= channels {
			return nil, fmt.Errorf("%s calibration channel %d out of range (0-%d)", detector, result.Channel, channels-1)
		}
		table.Channels[result.Channel] = ChannelCalibration{
			Pedestal: result.Pedestal,
			Slope:    result.Slope,
			Offset:   result.Offset,
			Bad:      result.Bad,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading DB rows: %w", err)
	}
	return table, nil
}

// StoreCalibration writes a calibration table valid for [minRun, maxRun].
func StoreCalibration(db *sqlx.DB, table *CalibrationTable, minRun int, maxRun int) error {
	if minRun > maxRun {
		return fmt.Errorf("invalid run range %d-%d", minRun, maxRun)
	}
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec("DELETE FROM PadCalibration WHERE Detector = ? AND MinRun = ?", table.Detector, minRun)
	if err != nil {
		return fmt.Errorf("error deleting previous calibration: %w", err)
	}
	insert := "INSERT INTO PadCalibration (Detector, Channel, Pedestal, Slope, Offset, Bad, MinRun, MaxRun) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	for channel, cal := range table.Channels {
		_, err := tx.Exec(insert, table.Detector, channel, cal.Pedestal, cal.Slope, cal.Offset, cal.Bad, minRun, maxRun)
		if err != nil {
			return fmt.Errorf("error inserting channel %d: %w", channel, err)
		}
	}
	return tx.Commit()
}

// RecordRun stores the processing summary of a run in a local database.
func RecordRun(db *sqlx.DB, runNumber int, processID string, events int, errorCount int) error {
	_, err := db.Exec("INSERT OR REPLACE INTO Runs (RunNumber, ProcessID, Events, Errors) VALUES (?, ?, ?, ?)",
		runNumber, processID, events, errorCount)
	if err != nil {
		return fmt.Errorf("error recording run %d: %w", runNumber, err)
	}
	return nil
}

// OpenCalibrationDatabase opens the database selected by the calibration configuration.
func OpenCalibrationDatabase(config Configuration) (*sqlx.DB, error) {
	switch config.Calibration.Driver {
	case "mysql":
		return ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
	case "sqlite":
		db, err := OpenLocalDatabase(config.Calibration.Path)
		if err != nil {
			return nil, err
		}
		if err := MigrateLocalDatabase(db); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, &ConfigError{Field: "calibration.driver", Reason: fmt.Sprintf("unknown driver %q", config.Calibration.Driver)}
	}
}

// LoadCalibrations returns the calibration table of every detector.
func LoadCalibrations(config Configuration) (map[string]*CalibrationTable, error) {
	tables := make(map[string]*CalibrationTable, len(config.Detectors))
	switch config.Calibration.Source {
	case "", "none":
		for _, d := range config.Detectors {
			tables[d.Name] = UnitCalibration(d.Name, d.Channels)
		}
	case "csv":
		for _, d := range config.Detectors {
			table, err := LoadCalibrationCSV(config.Calibration.Dir, d.Name, d.Channels)
			if err != nil {
				return nil, err
			}
			tables[d.Name] = table
		}
	case "db":
		db, err := OpenCalibrationDatabase(config)
		if err != nil {
			return nil, fmt.Errorf("error connecting to calibration database: %w", err)
		}
		defer db.Close()
		for _, d := range config.Detectors {
			table, err := LoadCalibrationFromDB(db, config.RunNumber, d.Name, d.Channels)
			if err != nil {
				errMessage := fmt.Errorf("error getting %s calibration from database: %w", d.Name, err)
				logger.Error(errMessage.Error())
				return nil, errMessage
			}
			tables[d.Name] = table
		}
	default:
		return nil, &ConfigError{Field: "calibration.source", Reason: fmt.Sprintf("unknown source %q", config.Calibration.Source)}
	}
	return tables, nil
}
