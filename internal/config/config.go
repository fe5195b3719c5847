// Package config handles configuration loading for the scaling dashboard.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Built-in dataset archives.
const (
	JulyDatasetID    = "dataset_july_2021"
	JulyDatasetURL   = "https://drive.google.com/uc?export=download&id=1o2oT2uBrRZ55cRzaQFe8KWRKPG3P75Lb"
	AugustDatasetID  = "dataset_august_2021"
	AugustDatasetURL = "https://drive.google.com/uc?export=download&id=1k1dVkCUt4BT9rlBCMHtJzdQUjg6UJWJQ"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Fit    FitConfig    `yaml:"fit"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DatasetConfig describes one dataset archive.
type DatasetConfig struct {
	URL         string `yaml:"url"`
	Path        string `yaml:"path"`
	ValueColumn string `yaml:"value_column"`
}

// DataConfig contains data source settings. Datasets keep their YAML order.
type DataConfig struct {
	ArchiveDir     string
	ManifestPath   string
	DefaultDataset string
	Datasets       map[string]DatasetConfig

	order []string
}

// UnmarshalYAML decodes the data section, recording dataset order.
func (d *DataConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ArchiveDir     string    `yaml:"archive_dir"`
		ManifestPath   string    `yaml:"manifest_path"`
		DefaultDataset string    `yaml:"default_dataset"`
		Datasets       yaml.Node `yaml:"datasets"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d.ArchiveDir = raw.ArchiveDir
	d.ManifestPath = raw.ManifestPath
	d.DefaultDataset = raw.DefaultDataset

	if raw.Datasets.Kind == 0 {
		return nil
	}
	if raw.Datasets.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: data.datasets must be a mapping", raw.Datasets.Line)
	}
	d.Datasets = make(map[string]DatasetConfig, len(raw.Datasets.Content)/2)
	d.order = d.order[:0]
	for i := 0; i+1 < len(raw.Datasets.Content); i += 2 {
		id := raw.Datasets.Content[i].Value
		var ds DatasetConfig
		if err := raw.Datasets.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("dataset %q: %w", id, err)
		}
		if _, dup := d.Datasets[id]; dup {
			return fmt.Errorf("line %d: duplicate dataset %q", raw.Datasets.Content[i].Line, id)
		}
		d.Datasets[id] = ds
		d.order = append(d.order, id)
	}
	return nil
}

// DatasetIDs returns dataset IDs in configuration order.
func (d *DataConfig) DatasetIDs() []string {
	return append([]string(nil), d.order...)
}

// FitConfig contains default fit parameters.
type FitConfig struct {
	End1   float64 `yaml:"end1"`
	End2   float64 `yaml:"end2"`
	Strict bool    `yaml:"strict"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	PlotSizeMB     int `yaml:"plot_size_mb"`
	PlotTTLMinutes int `yaml:"plot_ttl_minutes"`
	FitCacheSize   int `yaml:"fit_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Palette string `yaml:"palette"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Hi-C scaling",
		},
		Data: DataConfig{
			ArchiveDir:     "./data",
			ManifestPath:   "./data/manifest.sqlite",
			DefaultDataset: JulyDatasetID,
			Datasets: map[string]DatasetConfig{
				JulyDatasetID:   {URL: JulyDatasetURL},
				AugustDatasetID: {URL: AugustDatasetURL},
			},
			order: []string{JulyDatasetID, AugustDatasetID},
		},
		Fit: FitConfig{
			End1: 1e5,
			End2: 1e6,
		},
		Cache: CacheConfig{
			PlotSizeMB:     64,
			PlotTTLMinutes: 10,
			FitCacheSize:   256,
		},
		Render: RenderConfig{
			Width:   800,
			Height:  600,
			Palette: "deep",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Data.ArchiveDir == "" {
		cfg.Data.ArchiveDir = defaults.Data.ArchiveDir
	}
	if cfg.Data.ManifestPath == "" {
		cfg.Data.ManifestPath = filepath.Join(cfg.Data.ArchiveDir, "manifest.sqlite")
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data.Datasets = defaults.Data.Datasets
		cfg.Data.order = defaults.Data.order
	}
	if cfg.Data.DefaultDataset == "" {
		// First dataset in YAML order
		cfg.Data.DefaultDataset = cfg.Data.order[0]
	}
	if cfg.Fit.End1 == 0 {
		cfg.Fit.End1 = defaults.Fit.End1
	}
	if cfg.Fit.End2 == 0 {
		cfg.Fit.End2 = defaults.Fit.End2
	}
	if cfg.Cache.PlotSizeMB == 0 {
		cfg.Cache.PlotSizeMB = defaults.Cache.PlotSizeMB
	}
	if cfg.Cache.PlotTTLMinutes == 0 {
		cfg.Cache.PlotTTLMinutes = defaults.Cache.PlotTTLMinutes
	}
	if cfg.Cache.FitCacheSize == 0 {
		cfg.Cache.FitCacheSize = defaults.Cache.FitCacheSize
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.Palette == "" {
		cfg.Render.Palette = defaults.Render.Palette
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
}

// Validate reports configuration values that cannot be served.
func (c *Config) Validate() error {
	if _, ok := c.Data.Datasets[c.Data.DefaultDataset]; !ok {
		return fmt.Errorf("default dataset %q is not configured", c.Data.DefaultDataset)
	}
	if c.Fit.End1 < 0 || c.Fit.End2 < 0 {
		return fmt.Errorf("fit breakpoints must be positive, got %v and %v", c.Fit.End1, c.Fit.End2)
	}
	return nil
}
