// Package api provides HTTP handlers for the scaling dashboard.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/scaling-viz/server/internal/data/remote"
	"github.com/scaling-viz/server/internal/data/table"
	"github.com/scaling-viz/server/internal/regime"
	"github.com/scaling-viz/server/internal/render"
	"github.com/scaling-viz/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/d/"+url.PathEscape(cfg.Registry.DefaultDatasetID())+"/", http.StatusFound)
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Get("/", dashboardHandler(cfg.Registry))
		r.Get("/plot.png", plotPNGHandler)
		r.Get("/plot.svg", plotSVGHandler)
		r.Get("/table.csv", tableCSVHandler)
		r.Get("/fit.csv", fitCSVHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/selectors", selectorsHandler)
			r.Get("/fit", fitHandler)
			r.Post("/fit", fitHandler)
			r.Get("/links", linksHandler)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("component", "api").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects the scaling service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				writeError(w, r, fmt.Errorf("%w: %s", service.ErrUnknownDataset, datasetID))
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.ScalingService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.ScalingService); ok {
		return svc
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownDataset):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, table.ErrMissingColumn):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrDownloadFailure):
		return http.StatusBadGateway
	case errors.Is(err, regime.ErrInsufficientData), errors.Is(err, render.ErrNoData):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("component", "api").
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Err(err).
		Msg("request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		})
	}
}

func selectorsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	sel, err := svc.Selectors(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, sel)
}

func fitHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	req, err := parseRequest(r, svc.Defaults())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := svc.FitJSON(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBytes(w, "application/json", data)
}

func linksHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	req, err := parseRequest(r, svc.Defaults())
	if err != nil {
		writeError(w, r, err)
		return
	}
	links, err := svc.Links(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, links)
}

// exportHandler serves one rendered output of the requested selection.
func exportHandler(contentType string, produce func(*service.ScalingService, context.Context, service.Request) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		req, err := parseRequest(r, svc.Defaults())
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := produce(svc, r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeBytes(w, contentType, data)
	}
}

// dashboardHandler serves the dashboard page. A dataset parameter naming
// another dataset redirects to that dataset's page, keeping the breakpoints.
func dashboardHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if target := q.Get("dataset"); target != "" && target != chi.URLParam(r, "dataset") {
			if registry.Get(target) == nil {
				writeError(w, r, fmt.Errorf("%w: %s", service.ErrUnknownDataset, target))
				return
			}
			next := url.Values{}
			for _, name := range []string{"end1", "end2", "convention", "strict"} {
				if v := q.Get(name); v != "" {
					next.Set(name, v)
				}
			}
			location := "/d/" + url.PathEscape(target) + "/"
			if len(next) > 0 {
				location += "?" + next.Encode()
			}
			http.Redirect(w, r, location, http.StatusFound)
			return
		}

		svc := getDatasetService(r)
		req, err := parseRequest(r, svc.Defaults())
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := svc.Dashboard(r.Context(), req, registry.DatasetIDs())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeBytes(w, "text/html; charset=utf-8", data)
	}
}

var (
	plotPNGHandler  = exportHandler("image/png", (*service.ScalingService).PlotPNG)
	plotSVGHandler  = exportHandler("image/svg+xml", (*service.ScalingService).PlotSVG)
	tableCSVHandler = exportHandler("text/csv", (*service.ScalingService).TableCSV)
	fitCSVHandler   = exportHandler("text/csv", (*service.ScalingService).FitCSV)
)

// parseRequest reads the selection from the query string, or for POST
// requests from a JSON body.
func parseRequest(r *http.Request, defaults service.Defaults) (service.Request, error) {
	req := service.Request{Strict: defaults.Strict}
	q := r.URL.Query()

	if r.Method == http.MethodPost {
		if err := parseRequestBody(r, &req); err != nil {
			return req, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
		}
	}

	if stages, ok := parseCategoryFilter(q, "stages"); ok {
		req.Stages = stages
	}
	if samples, ok := parseCategoryFilter(q, "samples"); ok {
		req.Samples = samples
	}
	if v := strings.TrimSpace(q.Get("value")); v != "" {
		req.ValueColumn = v
	}

	var err error
	if req.End1, err = parseBreakpoint(q, "end1", req.End1); err != nil {
		return req, err
	}
	if req.End2, err = parseBreakpoint(q, "end2", req.End2); err != nil {
		return req, err
	}
	if raw := q.Get("convention"); raw != "" {
		if req.Convention, err = regime.ParseConvention(raw); err != nil {
			return req, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
		}
	}
	if req.Strict, err = parseBool(q, "strict", req.Strict); err != nil {
		return req, err
	}
	if req.SubtractBaseline, err = parseBool(q, "baseline", req.SubtractBaseline); err != nil {
		return req, err
	}
	return req, nil
}

func parseBreakpoint(q url.Values, name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", service.ErrInvalidRequest, name, raw)
	}
	return v, nil
}

func parseBool(q url.Values, name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", service.ErrInvalidRequest, name, raw)
	}
	return v, nil
}

// parseCategoryFilter reads a category filter from the query string.
// It returns (nil, false) when the parameter is absent and a non-nil,
// possibly empty, slice when present.
func parseCategoryFilter(query url.Values, name string) ([]string, bool) {
	rawValues, present := query[name]
	if !present {
		return nil, false
	}

	// Support repeated query parameters:
	//   ?samples=WT&samples=KO
	if len(rawValues) > 1 {
		out := make([]string, 0, len(rawValues))
		for _, v := range rawValues {
			v = strings.TrimSpace(v)
			if v != "" {
				out = append(out, v)
			}
		}
		return out, true
	}

	raw := strings.TrimSpace(rawValues[0])
	if raw == "" {
		// Explicit "filter to none".
		return make([]string, 0), true
	}

	// JSON array, e.g. ["G1","M"] (allows commas in values).
	if strings.HasPrefix(raw, "[") {
		var values []string
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			if values == nil {
				return make([]string, 0), true
			}
			return values, true
		}
		// Fall through to comma-separated parsing for tolerance.
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

const maxRequestBodyBytes = 1 << 20

// fitRequestBody is the POST form of a fit request. Absent or null
// filters leave the selection unfiltered.
type fitRequestBody struct {
	Stages      *[]string `json:"stages"`
	Samples     *[]string `json:"samples"`
	ValueColumn string    `json:"value"`
	End1        float64   `json:"end1"`
	End2        float64   `json:"end2"`
	Convention  string    `json:"convention"`
	Strict      *bool     `json:"strict"`
	Baseline    bool      `json:"baseline"`
}

func parseRequestBody(r *http.Request, req *service.Request) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBodyBytes {
		return errors.New("request body too large")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var payload fitRequestBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	if payload.Stages != nil {
		req.Stages = nonNil(*payload.Stages)
	}
	if payload.Samples != nil {
		req.Samples = nonNil(*payload.Samples)
	}
	if payload.End1 < 0 || payload.End2 < 0 {
		return errors.New("breakpoints must be positive")
	}
	req.ValueColumn = payload.ValueColumn
	req.End1 = payload.End1
	req.End2 = payload.End2
	req.SubtractBaseline = payload.Baseline
	if payload.Strict != nil {
		req.Strict = *payload.Strict
	}
	if payload.Convention != "" {
		if req.Convention, err = regime.ParseConvention(payload.Convention); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return make([]string, 0)
	}
	return values
}
