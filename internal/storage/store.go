package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	traceFile    = "trace.csv"
)

// Store keeps one directory per saved run under baseDir.
type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Timestamp    time.Time          `json:"timestamp"`
	TraceVersion int                `json:"trace_version"`
	FineStep     float64            `json:"fine_step"`
	Duration     float64            `json:"duration"`
	Steps        int                `json:"steps"`
	Inverter     string             `json:"inverter"`
	Channels     []string           `json:"channels"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Save writes the configuration, metadata and trace of a run and returns
// its id.
func (s *Store) Save(cfg *config.Config, p sim.Params, result *sim.Result) (string, error) {
	ts := s.now()
	runID := fmt.Sprintf("%s_%d", cfg.Name, ts.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Name:         cfg.Name,
		Timestamp:    ts,
		TraceVersion: result.Trace.Version,
		FineStep:     p.FineStep(),
		Duration:     result.Time,
		Steps:        result.Steps,
		Inverter:     string(p.Inverter),
		Metrics:      make(map[string]float64, len(result.Metrics)),
	}
	for _, ch := range result.Trace.Channels {
		meta.Channels = append(meta.Channels, ch.Name())
	}
	for _, m := range result.Metrics {
		meta.Metrics[m.Name] = m.Value
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, traceFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := result.Trace.WriteCSV(f); err != nil {
		return "", err
	}
	return runID, f.Close()
}

// List returns saved runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadConfig returns the configuration a run was made with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// Trace is a saved trace read back column-wise.
type Trace struct {
	Names   []string
	Time    []float64
	Columns [][]float64
}

// Column returns the values of the named channel.
func (t *Trace) Column(name string) ([]float64, bool) {
	for i, n := range t.Names {
		if n == name {
			return t.Columns[i], true
		}
	}
	return nil, false
}

func (s *Store) LoadTrace(runID string) (*Trace, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("run %s: empty trace", runID)
	}

	header := records[0]
	tr := &Trace{
		Names:   append([]string(nil), header[1:]...),
		Time:    make([]float64, 0, len(records)-1),
		Columns: make([][]float64, len(header)-1),
	}
	for i := 1; i < len(records); i++ {
		record := records[i]
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("run %s: row %d: %w", runID, i, err)
		}
		tr.Time = append(tr.Time, t)
		for j := 1; j < len(record); j++ {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: row %d: %w", runID, i, err)
			}
			tr.Columns[j-1] = append(tr.Columns[j-1], v)
		}
	}
	return tr, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}
