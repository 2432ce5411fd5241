// Package router turns HTTP requests into calculation service calls.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/config"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
	mylog "github.com/mohammed-shakir/hazard-impact/internal/logger"
	"github.com/mohammed-shakir/hazard-impact/internal/service"
)

const maxBody = 1 << 20

// Calculator is implemented by *service.Service.
type Calculator interface {
	Calculate(ctx context.Context, req service.Request) (service.Response, error)
	Functions(ctx context.Context, hazardServer, hazard, exposureServer, exposure string) ([]service.FunctionInfo, error)
}

type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// HandleCalculate accepts a form or JSON body and runs one calculation.
func HandleCalculate(logger *slog.Logger, cfg config.Config, calc Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/calculate", sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseCalculateRequest(r, cfg.GeoServerURL)
		if err != nil {
			writeError(r.Context(), logger, sw, err)
			return
		}
		ctx := mylog.WithCalculationID(r.Context(), mylog.NewID())
		logger.InfoContext(ctx, "calculation requested", "request", req.String())
		resp, err := calc.Calculate(ctx, req)
		if err != nil {
			writeError(ctx, logger, sw, err)
			return
		}
		writeJSON(sw, http.StatusOK, resp)
	}
}

// HandleFunctions lists impact functions, optionally only those admissible for
// the hazard and exposure query parameters.
func HandleFunctions(logger *slog.Logger, cfg config.Config, calc Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/functions", sw.code, time.Since(start).Seconds())
		}()

		q := r.URL.Query()
		fns, err := calc.Functions(r.Context(),
			orDefault(q.Get("hazard_server"), cfg.GeoServerURL), strings.TrimSpace(q.Get("hazard")),
			orDefault(q.Get("exposure_server"), cfg.GeoServerURL), strings.TrimSpace(q.Get("exposure")))
		if err != nil {
			writeError(r.Context(), logger, sw, err)
			return
		}
		writeJSON(sw, http.StatusOK, map[string]any{"functions": fns})
	}
}

type calculateBody struct {
	Function       string `json:"impact_function"`
	HazardServer   string `json:"hazard_server"`
	Hazard         string `json:"hazard"`
	ExposureServer string `json:"exposure_server"`
	Exposure       string `json:"exposure"`
	BBox           string `json:"bbox"`

	SummaryResolution *int `json:"summary_resolution"`
}

// ParseCalculateRequest reads a JSON body or form values. Missing servers
// default to defaultServer.
func ParseCalculateRequest(r *http.Request, defaultServer string) (service.Request, error) {
	var b calculateBody
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return service.Request{}, apperr.Validation("invalid JSON body: %v", err)
		}
	} else {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBody)
		if err := r.ParseForm(); err != nil {
			return service.Request{}, apperr.Validation("invalid form: %v", err)
		}
		b = calculateBody{
			Function:       r.Form.Get("impact_function"),
			HazardServer:   r.Form.Get("hazard_server"),
			Hazard:         r.Form.Get("hazard"),
			ExposureServer: r.Form.Get("exposure_server"),
			Exposure:       r.Form.Get("exposure"),
			BBox:           r.Form.Get("bbox"),
		}
		if v := strings.TrimSpace(r.Form.Get("summary_resolution")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return service.Request{}, apperr.Validation("summary_resolution %q is not an integer", v)
			}
			b.SummaryResolution = &n
		}
	}

	var missing []string
	for _, f := range []struct{ name, val string }{
		{"impact_function", b.Function},
		{"hazard", b.Hazard},
		{"exposure", b.Exposure},
		{"bbox", b.BBox},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return service.Request{}, apperr.Validation("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	bbox, err := geom.ParseBBox(b.BBox)
	if err != nil {
		return service.Request{}, err
	}
	return service.Request{
		Function:       strings.TrimSpace(b.Function),
		HazardServer:   orDefault(b.HazardServer, defaultServer),
		Hazard:         strings.TrimSpace(b.Hazard),
		ExposureServer: orDefault(b.ExposureServer, defaultServer),
		Exposure:       strings.TrimSpace(b.Exposure),
		BBox:           bbox,

		SummaryResolution: b.SummaryResolution,
	}, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAlignment, apperr.KindPlugin:
		return http.StatusUnprocessableEntity
	case apperr.KindIO:
		return http.StatusBadGateway
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	status := StatusOf(err)
	body := ErrorBody{Kind: apperr.KindOf(err), Message: err.Error()}
	if status >= 500 {
		logger.ErrorContext(ctx, "request failed", "kind", string(body.Kind), "err", err)
		if body.Kind == apperr.KindInternal {
			body.Message = "internal error"
		}
	} else {
		logger.InfoContext(ctx, "request rejected", "kind", string(body.Kind), "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "err", fmt.Sprint(err))
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
