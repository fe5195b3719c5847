package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFile loads a delimited table. The compression is chosen by suffix:
// .zip (first .csv/.tsv/.txt member), .gz, .zst, .lz4, or none.
// Files whose inner name ends in .tsv are tab separated; all others use commas.
func ReadFile(filePath string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".zip" {
		return readZip(filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inner := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	var r io.Reader
	switch ext {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	case ".lz4":
		r = lz4.NewReader(f)
	default:
		inner = filePath
		r = f
	}

	t, err := Read(r, delimiterFor(inner))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(filePath), err)
	}
	return t, nil
}

func readZip(filePath string) (*Table, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	var member *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(path.Base(zf.Name), ".") {
			continue
		}
		switch strings.ToLower(path.Ext(zf.Name)) {
		case ".csv", ".tsv", ".txt":
			member = zf
		}
		if member != nil {
			break
		}
	}
	if member == nil {
		return nil, errors.New("zip archive contains no delimited table")
	}

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in archive: %w", member.Name, err)
	}
	defer rc.Close()

	t, err := Read(rc, delimiterFor(member.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", member.Name, err)
	}
	return t, nil
}

func delimiterFor(name string) rune {
	if strings.EqualFold(path.Ext(filepath.ToSlash(name)), ".tsv") {
		return '\t'
	}
	return ','
}

// Read parses a delimited stream whose first record is the header.
func Read(r io.Reader, delimiter rune) (*Table, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty table")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return New(header, rows), nil
}

// Write renders t as CSV with a leading unnamed index column holding
// each row's source index.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{""}, t.Header()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		rec[0] = fmt.Sprint(t.Index(i))
		copy(rec[1:], t.Row(i))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
