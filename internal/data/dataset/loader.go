// Package dataset resolves configured datasets to parsed tables.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/scaling-viz/server/internal/archivestore"
	"github.com/scaling-viz/server/internal/cache"
	"github.com/scaling-viz/server/internal/data/remote"
	"github.com/scaling-viz/server/internal/data/table"
)

// Source describes where a dataset comes from.
type Source struct {
	ID          string
	URL         string // remote archive; empty for local-only datasets
	Path        string // local archive; defaults to <archive_dir>/<id>.csv.zip
	ValueColumn string // preferred fit target column
}

// LoaderConfig contains loader dependencies.
type LoaderConfig struct {
	ArchiveDir string
	Fetcher    *remote.Fetcher
	Manifest   *archivestore.Store // optional
	Tables     *cache.Tables
}

// Loader downloads missing archives and parses them once per process.
type Loader struct {
	archiveDir string
	fetcher    *remote.Fetcher
	manifest   *archivestore.Store
	tables     *cache.Tables
}

// NewLoader creates a new loader.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Fetcher == nil {
		cfg.Fetcher = remote.NewFetcher(nil)
	}
	if cfg.Tables == nil {
		cfg.Tables = cache.NewTables()
	}
	return &Loader{
		archiveDir: cfg.ArchiveDir,
		fetcher:    cfg.Fetcher,
		manifest:   cfg.Manifest,
		tables:     cfg.Tables,
	}
}

// ArchivePath returns the local archive path for src.
func (l *Loader) ArchivePath(src Source) string {
	if src.Path != "" {
		return src.Path
	}
	return filepath.Join(l.archiveDir, src.ID+".csv.zip")
}

// Load returns the parsed table for src, fetching the archive first if
// it is not present locally.
func (l *Loader) Load(ctx context.Context, src Source) (*table.Table, error) {
	return l.tables.Get(src.ID, func() (*table.Table, error) {
		path, err := l.Ensure(ctx, src)
		if err != nil {
			return nil, err
		}
		t, err := table.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset %q: %w", src.ID, err)
		}
		log.Info().Str("component", "loader").Str("dataset", src.ID).Int("rows", t.Len()).Msg("dataset loaded")
		return t, nil
	})
}

// Ensure makes sure the archive for src exists locally and returns its path.
// A cached archive whose checksum no longer matches the manifest is fetched again.
func (l *Loader) Ensure(ctx context.Context, src Source) (string, error) {
	path := l.ArchivePath(src)

	present, err := l.verified(src, path)
	if err != nil {
		return "", err
	}
	if present {
		return path, nil
	}
	if src.URL == "" {
		return "", fmt.Errorf("dataset %q: archive %s not found and no url configured", src.ID, path)
	}

	res, err := l.fetcher.Fetch(ctx, src.URL, path)
	if err != nil {
		return "", fmt.Errorf("dataset %q: %w", src.ID, err)
	}
	if l.manifest != nil {
		if err := l.manifest.Put(&archivestore.Archive{
			DatasetID: src.ID,
			URL:       src.URL,
			Path:      res.Path,
			Size:      res.Size,
			Checksum:  res.Checksum,
		}); err != nil {
			log.Warn().Str("component", "loader").Err(err).Str("dataset", src.ID).Msg("failed to record archive")
		}
	}
	return path, nil
}

// Fetch downloads the archive for src unconditionally.
func (l *Loader) Fetch(ctx context.Context, src Source) (*remote.Result, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("dataset %q has no url", src.ID)
	}
	res, err := l.fetcher.Fetch(ctx, src.URL, l.ArchivePath(src))
	if err != nil {
		return nil, err
	}
	if l.manifest != nil {
		err = l.manifest.Put(&archivestore.Archive{
			DatasetID: src.ID,
			URL:       src.URL,
			Path:      res.Path,
			Size:      res.Size,
			Checksum:  res.Checksum,
		})
	}
	return res, err
}

// Loaded reports whether src has already been parsed.
func (l *Loader) Loaded(id string) bool {
	return l.tables.Loaded(id)
}

func (l *Loader) verified(src Source, path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("dataset %q: %s is a directory", src.ID, path)
	}
	if l.manifest == nil || src.URL == "" {
		return true, nil
	}

	entry, err := l.manifest.Get(src.ID)
	if err != nil {
		return false, fmt.Errorf("failed to read archive manifest: %w", err)
	}
	if entry == nil || entry.Checksum == "" || entry.Path != path {
		return true, nil
	}
	sum, _, err := remote.FileChecksum(path)
	if err != nil {
		return false, err
	}
	if sum != entry.Checksum {
		log.Warn().Str("component", "loader").Str("dataset", src.ID).
			Str("want", entry.Checksum).Str("got", sum).Msg("archive checksum mismatch, fetching again")
		return false, nil
	}
	return true, nil
}
