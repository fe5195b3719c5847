package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/scaling-viz/server/internal/regime"
	"github.com/scaling-viz/server/internal/service"
)

func TestParseCategoryFilter(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		filter, ok := parseCategoryFilter(url.Values{}, "samples")
		if ok {
			t.Fatalf("expected ok=false, got true")
		}
		if filter != nil {
			t.Fatalf("expected nil filter, got %#v", filter)
		}
	})

	t.Run("commaSeparated", func(t *testing.T) {
		q, _ := url.ParseQuery("samples=WT,KO")
		filter, ok := parseCategoryFilter(q, "samples")
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"WT", "KO"}
		if !reflect.DeepEqual(filter, want) {
			t.Fatalf("expected %#v, got %#v", want, filter)
		}
	})

	t.Run("jsonArray", func(t *testing.T) {
		q, _ := url.ParseQuery(`stages=["G1","M"]`)
		filter, ok := parseCategoryFilter(q, "stages")
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"G1", "M"}
		if !reflect.DeepEqual(filter, want) {
			t.Fatalf("expected %#v, got %#v", want, filter)
		}
	})

	t.Run("jsonEmpty", func(t *testing.T) {
		q, _ := url.ParseQuery(`stages=[]`)
		filter, ok := parseCategoryFilter(q, "stages")
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		if filter == nil || len(filter) != 0 {
			t.Fatalf("expected non-nil empty filter, got %#v", filter)
		}
	})

	t.Run("emptyString", func(t *testing.T) {
		q, _ := url.ParseQuery(`samples=`)
		filter, ok := parseCategoryFilter(q, "samples")
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		if filter == nil || len(filter) != 0 {
			t.Fatalf("expected non-nil empty filter, got %#v", filter)
		}
	})

	t.Run("repeatedParams", func(t *testing.T) {
		q := url.Values{"samples": {"WT", "KO"}}
		filter, ok := parseCategoryFilter(q, "samples")
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"WT", "KO"}
		if !reflect.DeepEqual(filter, want) {
			t.Fatalf("expected %#v, got %#v", want, filter)
		}
	})
}

func TestParseRequest(t *testing.T) {
	defaults := service.Defaults{End1: 1e5, End2: 1e6, Strict: true}

	t.Run("defaults", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/d/x/api/fit", nil)
		req, err := parseRequest(r, defaults)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if req.Stages != nil || req.Samples != nil || !req.Strict || req.End1 != 0 {
			t.Fatalf("unexpected request: %+v", req)
		}
	})

	t.Run("query", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/d/x/api/fit?end1=2e4&end2=3e5&strict=false&baseline=1&convention=alpha_d&value=tamsd&stages=G1", nil)
		req, err := parseRequest(r, defaults)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if req.End1 != 2e4 || req.End2 != 3e5 || req.Strict || !req.SubtractBaseline {
			t.Fatalf("unexpected request: %+v", req)
		}
		if req.Convention != regime.ConventionAlphaD || req.ValueColumn != "tamsd" {
			t.Fatalf("unexpected request: %+v", req)
		}
		if !reflect.DeepEqual(req.Stages, []string{"G1"}) {
			t.Fatalf("unexpected stages: %#v", req.Stages)
		}
	})

	t.Run("jsonBody", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/x/api/fit", strings.NewReader(`{"stages":null,"samples":[],"strict":false}`))
		req, err := parseRequest(r, defaults)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if req.Stages != nil {
			t.Fatalf("expected nil stages, got %#v", req.Stages)
		}
		if req.Samples == nil || len(req.Samples) != 0 {
			t.Fatalf("expected non-nil empty samples, got %#v", req.Samples)
		}
		if req.Strict {
			t.Fatalf("expected strict=false from body")
		}
	})

	t.Run("queryOverridesBody", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/x/api/fit?samples=KO", strings.NewReader(`{"samples":["WT"]}`))
		req, err := parseRequest(r, defaults)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if !reflect.DeepEqual(req.Samples, []string{"KO"}) {
			t.Fatalf("unexpected samples: %#v", req.Samples)
		}
	})

	t.Run("invalidBody", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/x/api/fit", strings.NewReader(`{"stages":`))
		if _, err := parseRequest(r, defaults); err == nil {
			t.Fatal("expected error")
		}
	})
}
