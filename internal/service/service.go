// Package service runs impact calculations against remote map servers: it
// fetches both layers' metadata, agrees on extent and resolution, downloads the
// layers and hands them to the runner.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/hazard-impact/internal/align"
	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/geom"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/resolution"
	"github.com/mohammed-shakir/hazard-impact/internal/runner"
	"github.com/mohammed-shakir/hazard-impact/internal/storage"
	"github.com/mohammed-shakir/hazard-impact/internal/summary"
)

type Options struct {
	OutputDir        string
	GeotransformRTol float64
	Scaling          model.ScalingMode
	// H3Resolution of the impact summary. Negative disables the summary.
	H3Resolution int
	Writer       runner.Writer
}

type Service struct {
	store    storage.Store
	registry *plugin.Registry
	opts     Options
	logger   *slog.Logger
}

func New(store storage.Store, reg *plugin.Registry, opts Options, logger *slog.Logger) *Service {
	if reg == nil {
		reg = plugin.Default
	}
	if opts.Scaling == "" {
		opts.Scaling = model.ScalingAuto
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, registry: reg, opts: opts, logger: logger}
}

type Request struct {
	Function       string     `json:"impact_function"`
	HazardServer   string     `json:"hazard_server"`
	Hazard         string     `json:"hazard"`
	ExposureServer string     `json:"exposure_server"`
	Exposure       string     `json:"exposure"`
	BBox           model.BBox `json:"-"`
	// SummaryResolution rolls the H3 summary up to a coarser resolution.
	SummaryResolution *int `json:"summary_resolution,omitempty"`
}

type Response struct {
	Function      string           `json:"impact_function"`
	Path          string           `json:"path"`
	StylePath     string           `json:"style_path"`
	Style         string           `json:"style"`
	Caption       string           `json:"caption,omitempty"`
	ImpactSummary string           `json:"impact_summary,omitempty"`
	Keywords      *model.Keywords  `json:"keywords"`
	BBox          string           `json:"bbox"`
	Summary       *summary.Summary `json:"summary,omitempty"`
	Duration      string           `json:"duration"`
}

// Calculate runs req end to end. Metadata and download failures are io errors
// and reach the caller unchanged.
func (s *Service) Calculate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	fn, err := s.registry.Lookup(req.Function)
	if err != nil {
		return Response{}, err
	}
	if req.HazardServer == "" || req.ExposureServer == "" {
		return Response{}, apperr.Validation("hazard_server and exposure_server are required")
	}
	if err := s.checkRollup(req.SummaryResolution); err != nil {
		return Response{}, err
	}

	stage := time.Now()
	hm, err := s.store.GetMetadata(ctx, req.HazardServer, req.Hazard)
	if err != nil {
		return Response{}, err
	}
	em, err := s.store.GetMetadata(ctx, req.ExposureServer, req.Exposure)
	if err != nil {
		return Response{}, err
	}
	observability.ObserveStage("metadata", time.Since(stage).Seconds())

	if !plugin.Satisfied(fn.Requirements(), []plugin.Descriptor{
		plugin.DescriptorFromMetadata(hm), plugin.DescriptorFromMetadata(em),
	}) {
		return Response{}, apperr.Validation("impact function %q does not accept hazard %q and exposure %q",
			fn.Name(), hm.ID, em.ID)
	}

	boxes, err := resolution.BoundingBoxes(hm, em, req.BBox)
	if err != nil {
		return Response{}, err
	}
	res, err := resolution.Reconcile(hm, em)
	if err != nil {
		return Response{}, err
	}
	s.logger.InfoContext(ctx, "downloading layers",
		"hazard", hm.ID, "exposure", em.ID, "bbox", boxes.Impact.String(), "resolution", res)

	stage = time.Now()
	hazard, err := s.store.Download(ctx, req.HazardServer, hm.ID, boxes.Hazard, res)
	if err != nil {
		return Response{}, err
	}
	exposure, err := s.store.Download(ctx, req.ExposureServer, em.ID, boxes.Exposure, res)
	if err != nil {
		return Response{}, err
	}
	observability.ObserveStage("download", time.Since(stage).Seconds())

	out, err := s.run(ctx, fn, hazard, exposure, boxes.Impact, req.SummaryResolution)
	if err != nil {
		return Response{}, err
	}
	out.BBox = geom.FormatBBox(boxes.Impact, 6)
	out.Duration = time.Since(start).String()
	return out, nil
}

// RunLayers runs the named function over layers that are already loaded.
// A non-nil summaryRes rolls the H3 summary up to that resolution.
func (s *Service) RunLayers(ctx context.Context, function string, hazard, exposure model.Layer, summaryRes *int) (Response, error) {
	fn, err := s.registry.Lookup(function)
	if err != nil {
		return Response{}, err
	}
	if err := s.checkRollup(summaryRes); err != nil {
		return Response{}, err
	}
	start := time.Now()
	bb := hazard.BoundingBox()
	if common, ok, err := geom.Intersection(bb, exposure.BoundingBox()); err == nil && ok {
		bb = common
	}
	out, err := s.run(ctx, fn, hazard, exposure, bb, summaryRes)
	if err != nil {
		return Response{}, err
	}
	out.BBox = geom.FormatBBox(bb, 6)
	out.Duration = time.Since(start).String()
	return out, nil
}

func (s *Service) run(ctx context.Context, fn plugin.Function, hazard, exposure model.Layer, bb model.BBox, summaryRes *int) (Response, error) {
	var err error
	if hazard, err = s.scale(hazard); err != nil {
		return Response{}, err
	}
	if exposure, err = s.scale(exposure); err != nil {
		return Response{}, err
	}

	alignOpts := align.DefaultOptions()
	if s.opts.GeotransformRTol > 0 {
		alignOpts.GeotransformRTol = s.opts.GeotransformRTol
	}
	res, err := runner.Calculate(ctx, fn, hazard, exposure, runner.Options{
		Dir:    s.opts.OutputDir,
		Align:  alignOpts,
		Writer: s.opts.Writer,
	}, s.logger)
	if err != nil {
		return Response{}, err
	}

	kw := res.Layer.Keywords()
	out := Response{
		Function:  fn.Name(),
		Path:      res.Path,
		StylePath: res.StylePath,
		Style:     res.Style,
		Keywords:  kw,
	}
	out.Caption, _ = kw.Get("caption")
	out.ImpactSummary, _ = kw.Get("impact_summary")

	out.Summary = s.summarize(ctx, res.Layer, bb, summaryRes)
	return out, nil
}

func (s *Service) checkRollup(res *int) error {
	if res == nil {
		return nil
	}
	if s.opts.H3Resolution < 0 {
		return apperr.Validation("summary_resolution given but the impact summary is disabled")
	}
	if *res < 0 || *res > s.opts.H3Resolution {
		return apperr.Validation("summary_resolution must be in 0..%d, got %d", s.opts.H3Resolution, *res)
	}
	return nil
}

// summarize builds the H3 summary of the impact layer over bb. Failures are
// logged only: the impact layer is already packaged.
func (s *Service) summarize(ctx context.Context, l model.Layer, bb model.BBox, rollup *int) *summary.Summary {
	if s.opts.H3Resolution < 0 {
		return nil
	}
	sum, err := summary.Of(l, "", s.opts.H3Resolution)
	if err == nil && rollup != nil && *rollup != sum.Resolution {
		sum, err = sum.Rollup(*rollup)
	}
	if err == nil {
		err = sum.Cover(bb)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "impact summary failed", "err", err)
		return nil
	}
	return &sum
}

func (s *Service) scale(l model.Layer) (model.Layer, error) {
	r, ok := l.(*model.Raster)
	if !ok {
		return l, nil
	}
	scaled, err := model.ScaleDensity(r, s.opts.Scaling)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return scaled, nil
}

type FunctionInfo struct {
	Name         string               `json:"name"`
	Requirements []plugin.Requirement `json:"requirements"`
}

// Functions lists the registered impact functions. When both layers are given
// only the functions admissible for them are returned.
func (s *Service) Functions(ctx context.Context, hazardServer, hazard, exposureServer, exposure string) ([]FunctionInfo, error) {
	if hazard == "" && exposure == "" {
		names := s.registry.Names()
		out := make([]FunctionInfo, 0, len(names))
		for _, n := range names {
			fn, err := s.registry.Lookup(n)
			if err != nil {
				return nil, err
			}
			out = append(out, info(fn))
		}
		return out, nil
	}
	if hazard == "" || exposure == "" {
		return nil, apperr.Validation("both hazard and exposure are needed to filter functions")
	}
	hm, err := s.store.GetMetadata(ctx, hazardServer, hazard)
	if err != nil {
		return nil, err
	}
	em, err := s.store.GetMetadata(ctx, exposureServer, exposure)
	if err != nil {
		return nil, err
	}
	fns := s.registry.Admissible(plugin.DescriptorFromMetadata(hm), plugin.DescriptorFromMetadata(em))
	out := make([]FunctionInfo, 0, len(fns))
	for _, fn := range fns {
		out = append(out, info(fn))
	}
	return out, nil
}

func info(fn plugin.Function) FunctionInfo {
	reqs := fn.Requirements()
	if reqs == nil {
		reqs = []plugin.Requirement{}
	}
	return FunctionInfo{Name: fn.Name(), Requirements: reqs}
}

func (r Request) String() string {
	return fmt.Sprintf("%s(%s/%s, %s/%s, %v)", r.Function, r.HazardServer, r.Hazard, r.ExposureServer, r.Exposure, r.BBox.Slice())
}
