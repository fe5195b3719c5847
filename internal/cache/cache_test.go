package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scaling-viz/server/internal/data/table"
)

func TestKey(t *testing.T) {
	base := Selection{End1: 50, End2: 500, ValueColumn: "int"}

	t.Run("stableFilterOrder", func(t *testing.T) {
		a := base
		a.Stages = []string{"G1", "M"}
		b := base
		b.Stages = []string{"M", "G1"}
		if Key("fit", "ds", a) != Key("fit", "ds", b) {
			t.Fatalf("expected stable key for reordered filters")
		}
	})

	t.Run("nilVsEmpty", func(t *testing.T) {
		a := base
		b := base
		b.Samples = []string{}
		if Key("fit", "ds", a) == Key("fit", "ds", b) {
			t.Fatalf("nil and empty filters must not share a key")
		}
	})

	t.Run("kindAndDataset", func(t *testing.T) {
		if Key("fit", "ds", base) == Key("png", "ds", base) {
			t.Fatalf("kinds must not share a key")
		}
		if Key("fit", "a", base) == Key("fit", "b", base) {
			t.Fatalf("datasets must not share a key")
		}
	})

	t.Run("breakpoints", func(t *testing.T) {
		other := base
		other.End2 = 501
		if Key("fit", "ds", base) == Key("fit", "ds", other) {
			t.Fatalf("breakpoints must be part of the key")
		}
	})
}

func TestManager_PlotAndFit(t *testing.T) {
	m, err := NewManager(Config{PlotCacheSizeMB: 8, PlotTTL: time.Minute, FitCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetPlot("p"); ok {
		t.Fatal("unexpected hit on empty plot cache")
	}
	if err := m.SetPlot("p", []byte("png")); err != nil {
		t.Fatalf("SetPlot: %v", err)
	}
	if got, ok := m.GetPlot("p"); !ok || string(got) != "png" {
		t.Fatalf("unexpected plot: %q %v", got, ok)
	}

	m.SetFit("a", []byte("1"))
	m.SetFit("b", []byte("2"))
	m.SetFit("c", []byte("3"))
	if _, ok := m.GetFit("a"); ok {
		t.Fatal("expected oldest fit to be evicted")
	}
	if got, ok := m.GetFit("c"); !ok || string(got) != "3" {
		t.Fatalf("unexpected fit: %q %v", got, ok)
	}
}

func TestTables_LoadOnce(t *testing.T) {
	c := NewTables()
	var calls int32
	load := func() (*table.Table, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return table.New([]string{"dist"}, [][]string{{"1"}}), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get("ds", load); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := c.Get("ds", load); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single load, got %d", n)
	}
	if !c.Loaded("ds") || c.Len() != 1 {
		t.Fatal("expected ds to be cached")
	}
}

func TestTables_ErrorNotCached(t *testing.T) {
	c := NewTables()
	boom := errors.New("boom")
	if _, err := c.Get("ds", func() (*table.Table, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Loaded("ds") {
		t.Fatal("failed load must not be cached")
	}
	if _, err := c.Get("ds", func() (*table.Table, error) { return table.New(nil, nil), nil }); err != nil {
		t.Fatalf("retry: %v", err)
	}
}
