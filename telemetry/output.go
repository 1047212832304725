package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// csvStream appends rows to one CSV file, writing the header only on
// the first call. Its methods require a non-nil, opened stream; the
// unopened case is handled by OutputManager's own nil receiver checks.
type csvStream struct {
	file          *os.File
	headerWritten bool
}

func openCSVStream(dir, name string) (*csvStream, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &csvStream{file: f}, nil
}

func (cs *csvStream) append(rows interface{}) error {
	if cs.headerWritten {
		return gocsv.MarshalWithoutHeaders(rows, cs.file)
	}
	if err := gocsv.Marshal(rows, cs.file); err != nil {
		return err
	}
	cs.headerWritten = true
	return nil
}

func (cs *csvStream) close() error {
	return cs.file.Close()
}

// OutputManager owns the CSV files a run writes to: one row per
// DoStep in telemetry.csv, one row per perf-window flush in perf.csv.
type OutputManager struct {
	dir       string
	telemetry *csvStream
	perf      *csvStream
}

// NewOutputManager creates dir if needed and opens telemetry.csv and
// perf.csv inside it. Returns nil, nil if dir is empty, so callers can
// treat telemetry as opt-in without branching on it everywhere
// (every OutputManager method is nil-receiver safe).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	telemetry, err := openCSVStream(dir, "telemetry.csv")
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}

	perf, err := openCSVStream(dir, "perf.csv")
	if err != nil {
		telemetry.close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}

	return &OutputManager{dir: dir, telemetry: telemetry, perf: perf}, nil
}

// WriteStep appends one StepRecord row to telemetry.csv.
func (om *OutputManager) WriteStep(rec StepRecord) error {
	if om == nil {
		return nil
	}
	if err := om.telemetry.append([]StepRecord{rec}); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf appends one PerfStats snapshot to perf.csv, labeled with
// windowEnd (the step count at which the rolling window was read).
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	if err := om.perf.append([]PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes both CSV files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	if err := om.telemetry.close(); err != nil {
		firstErr = err
	}
	if err := om.perf.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
