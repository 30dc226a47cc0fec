package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/acmsim/internal/sim"
)

type ExportData struct {
	Name         string               `json:"name"`
	TraceVersion int                  `json:"trace_version"`
	Steps        int                  `json:"steps"`
	Duration     float64              `json:"duration"`
	Times        []float64            `json:"times"`
	Channels     map[string][]float64 `json:"channels"`
	Metrics      []sim.MetricValue    `json:"metrics"`
}

// ExportJSON writes a run as one json document with a column per channel.
func ExportJSON(w io.Writer, name string, result *sim.Result) error {
	buf := result.Trace
	data := ExportData{
		Name:         name,
		TraceVersion: buf.Version,
		Steps:        result.Steps,
		Duration:     result.Time,
		Times:        buf.Time,
		Channels:     make(map[string][]float64, len(buf.Channels)),
		Metrics:      result.Metrics,
	}
	for _, ch := range buf.Channels {
		data.Channels[ch.Name()], _ = buf.Column(ch)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
