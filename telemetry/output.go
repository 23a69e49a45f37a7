package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/sim"
)

// maxSuffix bounds the search for a free numbered path.
const maxSuffix = 10000

// numbered returns path with "_n" inserted before the extension.
func numbered(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// createUnique creates a new file at path or its first free numbered
// variant, never truncating an existing file.
func createUnique(path string) (*os.File, error) {
	for n := 0; n < maxSuffix; n++ {
		f, err := os.OpenFile(numbered(path, n), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("no free path for %s", path)
}

// WriteStats writes the summary as 4-space indented JSON without
// overwriting existing files. It returns the path actually written.
func WriteStats(path string, s Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshaling stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating stats directory: %w", err)
	}

	f, err := createUnique(path)
	if err != nil {
		return "", fmt.Errorf("creating stats file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}

// WriteSeriesCSV writes the per-step series of the aggregate.
func WriteSeriesCSV(path string, a *Aggregator) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating series csv: %w", err)
	}
	rows := a.SeriesRows()
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing series csv: %w", err)
	}
	return f.Close()
}

// WriteSnapshot saves an obstacle layout as JSON.
func WriteSnapshot(path string, snap obstacle.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling obstacle snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// TrajectoryRow is one accepted step of one walker in one run.
type TrajectoryRow struct {
	Run    int     `csv:"run"`
	Walker string  `csv:"walker"`
	Step   int     `csv:"step"`
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
}

// TrajectoryWriter appends run trajectories to a CSV file.
// A nil writer discards everything.
type TrajectoryWriter struct {
	path          string
	file          *os.File
	headerWritten bool
	snapshotSaved bool
}

// NewTrajectoryWriter creates the CSV at path. Returns nil if path is empty
// (output disabled).
func NewTrajectoryWriter(path string) (*TrajectoryWriter, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating trajectory directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trajectory csv: %w", err)
	}
	return &TrajectoryWriter{path: path, file: f}, nil
}

// WriteRun appends every record of run. The first call also saves the
// run's obstacle layout next to the CSV.
func (tw *TrajectoryWriter) WriteRun(run sim.Run) error {
	if tw == nil {
		return nil
	}

	var rows []TrajectoryRow
	for _, rec := range run.Records {
		for i, p := range rec.Trajectory {
			rows = append(rows, TrajectoryRow{
				Run:    run.Index,
				Walker: rec.Walker,
				Step:   i + 1,
				X:      p.X,
				Y:      p.Y,
				Z:      p.Z,
			})
		}
	}
	if len(rows) > 0 {
		if !tw.headerWritten {
			// First write includes headers
			if err := gocsv.Marshal(rows, tw.file); err != nil {
				return fmt.Errorf("writing trajectories: %w", err)
			}
			tw.headerWritten = true
		} else {
			if err := gocsv.MarshalWithoutHeaders(rows, tw.file); err != nil {
				return fmt.Errorf("writing trajectories: %w", err)
			}
		}
	}

	if !tw.snapshotSaved {
		if err := WriteSnapshot(tw.SnapshotPath(), run.Obstacles); err != nil {
			return err
		}
		tw.snapshotSaved = true
	}
	return nil
}

// SnapshotPath returns where the obstacle layout is saved.
func (tw *TrajectoryWriter) SnapshotPath() string {
	if tw == nil {
		return ""
	}
	ext := filepath.Ext(tw.path)
	return strings.TrimSuffix(tw.path, ext) + "_obstacles.json"
}

// Close closes the CSV file.
func (tw *TrajectoryWriter) Close() error {
	if tw == nil {
		return nil
	}
	return tw.file.Close()
}
