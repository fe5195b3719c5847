package table

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const sampleCSV = "dist,int,stg,sample\n1000,0.5,G1,WT\n2000,0.25,G1,WT\n1000,0.6,M,cohesin\nbad,x,M,cohesin\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestReadFile_Formats(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(sampleCSV))
	gw.Close()

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zw.Write([]byte(sampleCSV))
	zw.Close()

	var l4 bytes.Buffer
	lw := lz4.NewWriter(&l4)
	lw.Write([]byte(sampleCSV))
	lw.Close()

	var zp bytes.Buffer
	zipw := zip.NewWriter(&zp)
	fw, err := zipw.Create("dataset_july_2021.csv")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	fw.Write([]byte(sampleCSV))
	zipw.Close()

	tests := []struct {
		name string
		data []byte
	}{
		{"plain.csv", []byte(sampleCSV)},
		{"bom.csv", append(append([]byte(nil), utf8BOM...), sampleCSV...)},
		{"data.csv.gz", gz.Bytes()},
		{"data.csv.zst", zs.Bytes()},
		{"data.csv.lz4", l4.Bytes()},
		{"data.csv.zip", zp.Bytes()},
		{"data.tsv", []byte(strings.ReplaceAll(sampleCSV, ",", "\t"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ReadFile(writeFile(t, tt.name, tt.data))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if tbl.Len() != 4 {
				t.Fatalf("expected 4 rows, got %d", tbl.Len())
			}
			if !tbl.Has("dist") || !tbl.Has("sample") {
				t.Fatalf("unexpected header: %v", tbl.Header())
			}
		})
	}
}

func TestReadFile_ZipWithoutTable(t *testing.T) {
	var zp bytes.Buffer
	zipw := zip.NewWriter(&zp)
	fw, _ := zipw.Create("README.md")
	fw.Write([]byte("nothing here"))
	zipw.Close()

	if _, err := ReadFile(writeFile(t, "empty.zip", zp.Bytes())); err == nil {
		t.Fatal("expected error for archive without a table")
	}
}

func TestFloats_MalformedIsNaN(t *testing.T) {
	tbl, err := Read(strings.NewReader(sampleCSV), ',')
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	dist, err := tbl.Floats("dist")
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if dist[0] != 1000 || !math.IsNaN(dist[3]) {
		t.Fatalf("unexpected floats: %v", dist)
	}
}

func TestColumn_Missing(t *testing.T) {
	tbl := New([]string{"dist"}, [][]string{{"1"}})
	_, err := tbl.Column("stg")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	var mc *MissingColumnError
	if !errors.As(err, &mc) || mc.Column != "stg" {
		t.Fatalf("expected MissingColumnError for stg, got %v", err)
	}
}

func TestFilterKeepsSourceIndex(t *testing.T) {
	tbl, _ := Read(strings.NewReader(sampleCSV), ',')
	samples, _ := tbl.Column("sample")
	sub := tbl.Filter(func(i int) bool { return samples[i] == "cohesin" })

	if sub.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", sub.Len())
	}
	if sub.Index(0) != 2 || sub.Index(1) != 3 {
		t.Fatalf("unexpected source index: %d, %d", sub.Index(0), sub.Index(1))
	}

	var buf bytes.Buffer
	if err := Write(&buf, sub); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := ",dist,int,stg,sample\n2,1000,0.6,M,cohesin\n3,bad,x,M,cohesin\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestUniqueAndWithColumn(t *testing.T) {
	tbl, _ := Read(strings.NewReader(sampleCSV), ',')

	stages, err := tbl.Unique("stg")
	if err != nil {
		t.Fatalf("Unique: %v", err)
	}
	if len(stages) != 2 || stages[0] != "G1" || stages[1] != "M" {
		t.Fatalf("unexpected stages: %v", stages)
	}

	cond := []string{"a", "b", "c", "d"}
	next, err := tbl.WithColumn("condition", cond)
	if err != nil {
		t.Fatalf("WithColumn: %v", err)
	}
	if tbl.Has("condition") {
		t.Fatal("WithColumn must not modify the receiver")
	}
	if next.Value(2, "condition") != "c" || next.Value(2, "sample") != "cohesin" {
		t.Fatalf("unexpected row: %v", next.Row(2))
	}

	if _, err := tbl.WithColumn("x", []string{"1"}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}
