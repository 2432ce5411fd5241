// Package runner drives one impact function invocation through validation,
// execution and packaging.
//
// A run moves READY → VALIDATED → EXECUTED → PACKAGED → DONE. Any failure moves
// it to FAILED, which is final. Nothing is retried and no partial output is
// left behind: files written by a failed packaging step are removed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammed-shakir/hazard-impact/internal/align"
	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/layerio"
	mylog "github.com/mohammed-shakir/hazard-impact/internal/logger"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
)

type State int

const (
	Ready State = iota
	Validated
	Executed
	Packaged
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Validated:
		return "VALIDATED"
	case Executed:
		return "EXECUTED"
	case Packaged:
		return "PACKAGED"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Writer persists the impact layer and its style.
type Writer interface {
	WriteLayer(l model.Layer, path string) error
	WriteStyle(style, path string) error
}

type Options struct {
	// Dir receives the output files. Empty means os.TempDir().
	Dir    string
	Align  align.Options
	Writer Writer
}

type Result struct {
	Path      string
	StylePath string
	Layer     model.Layer
	Style     string
}

// Run is a single invocation. It is not safe for concurrent use.
type Run struct {
	fn     plugin.Function
	layers []model.Layer
	opts   Options
	logger *slog.Logger

	state  State
	err    error
	output model.Layer
	style  string
	path   string
}

// New prepares a run of fn over the hazard and exposure layers.
func New(fn plugin.Function, layers []model.Layer, opts Options, logger *slog.Logger) *Run {
	if opts.Writer == nil {
		opts.Writer = layerio.FileStore{}
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Run{fn: fn, layers: layers, opts: opts, logger: logger}
}

func (r *Run) State() State { return r.state }

// Err is the failure that moved the run to FAILED.
func (r *Run) Err() error { return r.err }

// Execute performs every remaining transition and returns the packaged output.
func (r *Run) Execute(ctx context.Context) (Result, error) {
	if r.fn == nil {
		return Result{}, r.fail(ctx, apperr.Validation("no impact function selected"))
	}
	ctx = mylog.WithPlugin(ctx, r.fn.Name())
	steps := []struct {
		from State
		name string
		do   func(context.Context) error
	}{
		{Ready, "validate", r.validate},
		{Validated, "execute", r.execute},
		{Executed, "package", r.pack},
	}
	for _, s := range steps {
		if r.state == Failed {
			return Result{}, r.err
		}
		if r.state != s.from {
			continue
		}
		start := time.Now()
		err := s.do(ctx)
		observability.ObserveStage(s.name, time.Since(start).Seconds())
		if err != nil {
			return Result{}, r.fail(ctx, err)
		}
		r.state++
		r.logger.DebugContext(ctx, "impact run advanced", "state", r.state.String())
	}
	if r.state == Failed {
		return Result{}, r.err
	}
	r.state = Done
	observability.IncImpactRun(r.fn.Name(), Done.String())
	return Result{
		Path:      r.path,
		StylePath: layerio.Sibling(r.path, layerio.ExtStyle),
		Layer:     r.output,
		Style:     r.style,
	}, nil
}

func (r *Run) fail(ctx context.Context, err error) error {
	name := ""
	if r.fn != nil {
		name = r.fn.Name()
	}
	r.logger.WarnContext(ctx, "impact run failed", "state", r.state.String(), "err", err)
	r.state = Failed
	r.err = err
	observability.IncImpactRun(name, Failed.String())
	return err
}

func (r *Run) validate(ctx context.Context) error {
	if len(r.layers) != 2 {
		return apperr.Validation("expected exactly two layers (hazard, exposure), got %d", len(r.layers))
	}
	for i, l := range r.layers {
		if l == nil {
			return apperr.Validation("layer %d is missing", i)
		}
	}
	if err := align.Check(r.layers, r.opts.Align); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "layers aligned",
		"hazard", align.Describe(r.layers[0]), "exposure", align.Describe(r.layers[1]))
	return nil
}

func (r *Run) execute(ctx context.Context) error {
	out, err := r.call(func() (model.Layer, error) { return r.fn.Run(r.layers) })
	if err != nil {
		return err
	}
	if out == nil {
		return apperr.Plugin(r.fn.Name(), errors.New("returned no layer"))
	}
	r.output = out
	r.logger.InfoContext(ctx, "impact function finished", "output", out.Name(), "type", string(out.Type()))
	return nil
}

// call runs a plugin method, turning errors and panics into plugin execution
// errors.
func (r *Run) call(f func() (model.Layer, error)) (out model.Layer, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, apperr.Plugin(r.fn.Name(), fmt.Errorf("panic: %v", p))
		}
	}()
	out, err = f()
	if err != nil {
		return nil, apperr.Plugin(r.fn.Name(), err)
	}
	return out, nil
}

func (r *Run) pack(ctx context.Context) (err error) {
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return apperr.IO("create output directory", err)
	}
	f, err := os.CreateTemp(r.opts.Dir, "impact-*"+layerio.Extension(r.output.Type()))
	if err != nil {
		return apperr.IO("create output file", err)
	}
	path := f.Name()
	_ = f.Close()

	defer func() {
		if err != nil {
			removeOutputs(path)
		}
	}()

	if err := r.opts.Writer.WriteLayer(r.output, path); err != nil {
		return apperr.IO("write impact layer", err)
	}

	var style string
	_, err = r.call(func() (model.Layer, error) {
		s, err := r.fn.GenerateStyle(r.output)
		style = s
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("generate style: %w", err)
	}
	if err := r.opts.Writer.WriteStyle(style, layerio.Sibling(path, layerio.ExtStyle)); err != nil {
		return apperr.IO("write style", err)
	}
	r.style = style
	r.path = path
	r.logger.InfoContext(ctx, "impact layer packaged", "path", filepath.Base(path))
	return nil
}

func removeOutputs(path string) {
	_ = os.Remove(path)
	for _, ext := range []string{layerio.ExtKeywords, layerio.ExtStyle, layerio.ExtProj} {
		_ = os.Remove(layerio.Sibling(path, ext))
	}
}

// Calculate runs fn over hazard and exposure and returns the packaged result.
func Calculate(ctx context.Context, fn plugin.Function, hazard, exposure model.Layer, opts Options, logger *slog.Logger) (Result, error) {
	return New(fn, []model.Layer{hazard, exposure}, opts, logger).Execute(ctx)
}
