package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/plenum/config"
)

// OutputManager owns the CSV streams of one run. A nil manager is valid and
// discards everything, so callers never need to branch on whether output is
// enabled.
type OutputManager struct {
	dir string

	telemetryFile *os.File
	vesselsFile   *os.File
	typesFile     *os.File
	eventsFile    *os.File
	perfFile      *os.File

	telemetryHeader bool
	vesselsHeader   bool
	typesHeader     bool
	eventsHeader    bool
	perfHeader      bool
}

// NewOutputManager creates dir and the run's CSV files. An empty dir
// disables output and returns a nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	om := &OutputManager{dir: dir}

	var err error
	if om.telemetryFile, err = os.Create(filepath.Join(dir, "telemetry.csv")); err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	if om.vesselsFile, err = os.Create(filepath.Join(dir, "vessels.csv")); err != nil {
		return nil, fmt.Errorf("creating vessels.csv: %w", err)
	}
	if om.typesFile, err = os.Create(filepath.Join(dir, "types.csv")); err != nil {
		return nil, fmt.Errorf("creating types.csv: %w", err)
	}
	if om.eventsFile, err = os.Create(filepath.Join(dir, "events.csv")); err != nil {
		return nil, fmt.Errorf("creating events.csv: %w", err)
	}
	if om.perfFile, err = os.Create(filepath.Join(dir, "perf.csv")); err != nil {
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	return om, nil
}

// Dir returns the output directory, empty when output is disabled.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteTelemetry appends one window-stats row.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	rows := []*WindowStats{&stats}
	if !om.telemetryHeader {
		om.telemetryHeader = true
		if err := gocsv.Marshal(rows, om.telemetryFile); err != nil {
			return fmt.Errorf("writing telemetry row: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.telemetryFile); err != nil {
		return fmt.Errorf("writing telemetry row: %w", err)
	}
	return nil
}

// WriteVessels appends per-vessel rows for one window boundary.
func (om *OutputManager) WriteVessels(rows []VesselRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}
	if !om.vesselsHeader {
		om.vesselsHeader = true
		if err := gocsv.Marshal(rows, om.vesselsFile); err != nil {
			return fmt.Errorf("writing vessel rows: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.vesselsFile); err != nil {
		return fmt.Errorf("writing vessel rows: %w", err)
	}
	return nil
}

// WriteTypes appends per-type mass rows for one window boundary.
func (om *OutputManager) WriteTypes(rows []TypeRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}
	if !om.typesHeader {
		om.typesHeader = true
		if err := gocsv.Marshal(rows, om.typesFile); err != nil {
			return fmt.Errorf("writing type rows: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.typesFile); err != nil {
		return fmt.Errorf("writing type rows: %w", err)
	}
	return nil
}

// WriteEvents appends event rows.
func (om *OutputManager) WriteEvents(events []Event) error {
	if om == nil || len(events) == 0 {
		return nil
	}
	if !om.eventsHeader {
		om.eventsHeader = true
		if err := gocsv.Marshal(events, om.eventsFile); err != nil {
			return fmt.Errorf("writing event rows: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(events, om.eventsFile); err != nil {
		return fmt.Errorf("writing event rows: %w", err)
	}
	return nil
}

// WritePerf appends one perf summary row.
func (om *OutputManager) WritePerf(row PerfRow) error {
	if om == nil {
		return nil
	}
	rows := []*PerfRow{&row}
	if !om.perfHeader {
		om.perfHeader = true
		if err := gocsv.Marshal(rows, om.perfFile); err != nil {
			return fmt.Errorf("writing perf row: %w", err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.perfFile); err != nil {
		return fmt.Errorf("writing perf row: %w", err)
	}
	return nil
}

// WriteConfig snapshots the active configuration next to the CSVs.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// Close closes all streams, returning the first error encountered.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.telemetryFile, om.vesselsFile, om.typesFile, om.eventsFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
