// Package remote downloads dataset archives.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// ErrDownloadFailure is returned when an archive could not be fetched.
var ErrDownloadFailure = errors.New("download failed")

// Result describes a completed download.
type Result struct {
	Path     string
	Size     int64
	Checksum string
}

// Fetcher performs blocking downloads. There is no retry; a failure
// aborts the request that triggered it.
type Fetcher struct {
	Client *http.Client
}

// NewFetcher creates a fetcher using client, or http.DefaultClient if nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Client: client}
}

// Fetch downloads url to dest. The body is streamed into a temporary
// file next to dest and renamed into place once complete.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}

	log.Info().Str("component", "remote").Str("url", url).Str("dest", dest).Msg("downloading archive")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrDownloadFailure, url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	log.Info().Str("component", "remote").Str("dest", dest).Int64("bytes", n).Msg("archive downloaded")

	return &Result{
		Path:     dest,
		Size:     n,
		Checksum: formatSum(h.Sum64()),
	}, nil
}

// FileChecksum returns the xxhash64 of a file as 16 hex digits.
func FileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return formatSum(h.Sum64()), n, nil
}

func formatSum(v uint64) string {
	s := strconv.FormatUint(v, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
