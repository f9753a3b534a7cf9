// Package beatmapfile loads beat maps from YAML files and StepMania charts
// and keeps them in a catalog keyed by track ID.
package beatmapfile

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
)

// File is the YAML layout of a beat map:
//
//	track:
//	  id: warmup
//	  title: Warmup
//	  length: 8s
//	grid:
//	  bpm: 120
//	  offset: 500ms
//	  beats: 16
//	events:
//	  - {at: 1250ms, kind: note, lane: left}
//
// Grid beats and listed events are merged in time order.
type File struct {
	Track  beatmap.Track `yaml:"track"`
	Grid   *Grid         `yaml:"grid,omitempty"`
	Events []Event       `yaml:"events"`
}

// Grid generates Beat events at a fixed tempo.
type Grid struct {
	BPM    float64       `yaml:"bpm"`
	Offset time.Duration `yaml:"offset"`
	Beats  int           `yaml:"beats"`
	Weight float64       `yaml:"weight,omitempty"`
}

// Event is one listed event.
type Event struct {
	At     time.Duration   `yaml:"at"`
	Kind   model.EventKind `yaml:"kind"`
	Lane   model.Action    `yaml:"lane,omitempty"`
	Weight float64         `yaml:"weight,omitempty"`
}

// DecodeYAML parses a YAML beat map.
func DecodeYAML(r io.Reader) (*beatmap.BeatMap, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode yaml: %v: %w", err, ErrFormat)
	}
	return f.BeatMap()
}

// LoadYAML reads a YAML beat map from path.
func LoadYAML(path string) (*beatmap.BeatMap, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	m, err := DecodeYAML(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// BeatMap validates f and builds the beat map.
func (f File) BeatMap() (*beatmap.BeatMap, error) {
	if f.Track.ID == "" {
		return nil, fmt.Errorf("missing track id: %w", ErrFormat)
	}

	events := make([]model.BeatMapEvent, 0, len(f.Events))
	if g := f.Grid; g != nil {
		if g.BPM <= 0 || math.IsNaN(g.BPM) || g.Beats < 0 || g.Offset < 0 {
			return nil, fmt.Errorf("grid bpm %v beats %d offset %v: %w", g.BPM, g.Beats, g.Offset, ErrFormat)
		}
		period := 60 / g.BPM * float64(time.Second)
		for i := 0; i < g.Beats; i++ {
			events = append(events, model.BeatMapEvent{
				At:     g.Offset + time.Duration(math.Round(float64(i)*period)),
				Kind:   model.Beat,
				Weight: g.Weight,
			})
		}
	}
	for _, e := range f.Events {
		events = append(events, model.BeatMapEvent{At: e.At, Kind: e.Kind, Lane: e.Lane, Weight: e.Weight})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	return beatmap.New(f.Track, events)
}

// EncodeYAML writes f as YAML.
func EncodeYAML(w io.Writer, f File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
