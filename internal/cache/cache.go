// Package cache provides caching for datasets, rendered plots and fit results.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	PlotCacheSizeMB int
	PlotTTL         time.Duration
	FitCacheSize    int
}

// Manager manages plot and fit-result caches.
type Manager struct {
	plotCache *bigcache.BigCache
	fitCache  *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.FitCacheSize <= 0 {
		cfg.FitCacheSize = 256
	}

	plotCacheConfig := bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.PlotTTL,
		CleanWindow:        cfg.PlotTTL / 2,
		MaxEntriesInWindow: 256,
		MaxEntrySize:       256 * 1024, // 256KB per plot
		HardMaxCacheSize:   cfg.PlotCacheSizeMB,
		Verbose:            false,
	}

	plotCache, err := bigcache.New(context.Background(), plotCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create plot cache: %w", err)
	}

	fitCache, err := lru.New[string, []byte](cfg.FitCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fit cache: %w", err)
	}

	return &Manager{
		plotCache: plotCache,
		fitCache:  fitCache,
	}, nil
}

// GetPlot retrieves a rendered plot from cache.
func (m *Manager) GetPlot(key string) ([]byte, bool) {
	data, err := m.plotCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetPlot stores a rendered plot in cache.
func (m *Manager) SetPlot(key string, data []byte) error {
	return m.plotCache.Set(key, data)
}

// GetFit retrieves an encoded fit result from cache.
func (m *Manager) GetFit(key string) ([]byte, bool) {
	return m.fitCache.Get(key)
}

// SetFit stores an encoded fit result in cache.
func (m *Manager) SetFit(key string, data []byte) {
	m.fitCache.Add(key, data)
}

// Selection is the part of a request that determines its output.
type Selection struct {
	Stages      []string // nil means unfiltered
	Samples     []string // nil means unfiltered
	ValueColumn string
	End1        float64
	End2        float64
	Baseline    bool
	Convention  string
	Strict      bool
}

// Key generates a cache key for one output of a dataset selection.
// Filter order does not matter; nil and empty filters differ.
func Key(kind, datasetID string, sel Selection) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(datasetID)

	h := xxhash.New()
	writeFilter(h, "stages", sel.Stages)
	writeFilter(h, "samples", sel.Samples)
	fmt.Fprintf(h, "value=%s;end1=%s;end2=%s;baseline=%t;conv=%s;strict=%t",
		sel.ValueColumn,
		strconv.FormatFloat(sel.End1, 'g', -1, 64),
		strconv.FormatFloat(sel.End2, 'g', -1, 64),
		sel.Baseline, sel.Convention, sel.Strict)

	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	return b.String()
}

func writeFilter(h *xxhash.Digest, name string, values []string) {
	if values == nil {
		fmt.Fprintf(h, "%s=*;", name)
		return
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	fmt.Fprintf(h, "%s=%d", name, len(sorted))
	for _, v := range sorted {
		h.WriteString("\x00")
		h.WriteString(v)
	}
	h.WriteString(";")
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"plot_cache_len": m.plotCache.Len(),
		"plot_cache_cap": m.plotCache.Capacity(),
		"fit_cache_len":  m.fitCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.plotCache.Close()
}
