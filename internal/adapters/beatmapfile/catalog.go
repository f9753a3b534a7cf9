package beatmapfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/logger"
)

// Catalog is a concurrency-safe set of beat maps keyed by track ID.
type Catalog struct {
	mu         sync.RWMutex
	maps       map[model.TrackID]*beatmap.BeatMap
	difficulty string
	logger     logger.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithDifficulty selects the StepMania chart imported from .sm files.
func WithDifficulty(d string) CatalogOption {
	return func(c *Catalog) { c.difficulty = d }
}

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog returns an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		maps:   make(map[model.TrackID]*beatmap.BeatMap),
		logger: logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("catalog")
	return c
}

// Add registers m. Track IDs are unique.
func (c *Catalog) Add(m *beatmap.BeatMap) error {
	id := m.Track().ID
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.maps[id]; ok {
		return fmt.Errorf("track %q: %w", id, ErrDuplicate)
	}
	c.maps[id] = m
	return nil
}

// Load adds every .yaml, .yml and .sm file in dir and returns how many were
// loaded. Other files are ignored. The first bad file aborts the load.
func (c *Catalog) Load(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())

		var m *beatmap.BeatMap
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			m, err = LoadYAML(path)
		case ".sm":
			m, err = LoadSM(path, c.difficulty)
		default:
			continue
		}
		if err != nil {
			return n, err
		}
		if err := c.Add(m); err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		c.logger.Debug(ctx, "beat map loaded",
			logger.String("track", string(m.Track().ID)),
			logger.Int("events", m.Len()),
			logger.Duration("length", m.End()),
		)
		n++
	}
	c.logger.Info(ctx, "catalog loaded", logger.String("dir", dir), logger.Int("tracks", n))
	return n, nil
}

// Lookup returns the beat map of a track.
func (c *Catalog) Lookup(id model.TrackID) (*beatmap.BeatMap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.maps[id]
	if !ok {
		return nil, fmt.Errorf("track %q: %w", id, ErrUnknownTrack)
	}
	return m, nil
}

// List returns the catalog's tracks ordered by ID.
func (c *Catalog) List() []beatmap.Track {
	c.mu.RLock()
	out := make([]beatmap.Track, 0, len(c.maps))
	for _, m := range c.maps {
		out = append(out, m.Track())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.maps)
}
