// Command impact runs an impact function over local hazard and exposure files
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/layerio"
	"github.com/mohammed-shakir/hazard-impact/internal/logger"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/catalog"
	_ "github.com/mohammed-shakir/hazard-impact/internal/plugin/earthquake"
	"github.com/mohammed-shakir/hazard-impact/internal/service"
	"github.com/mohammed-shakir/hazard-impact/internal/summary"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	function string
	hazard   string
	exposure string
	out      string
	catalog  string
	scaling  string
	rtol     float64
	h3Res    int
	rollup   int
	list     bool
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("impact", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.function, "function", "", "impact function name")
	fs.StringVar(&o.hazard, "hazard", "", "hazard layer file (.asc or .geojson)")
	fs.StringVar(&o.exposure, "exposure", "", "exposure layer file (.asc or .geojson)")
	fs.StringVar(&o.out, "out", ".", "output directory")
	fs.StringVar(&o.catalog, "catalog", "", "HCL file of extra impact functions")
	fs.StringVar(&o.scaling, "density-scaling", string(model.ScalingAuto), "density scaling: auto, on or off")
	fs.Float64Var(&o.rtol, "rtol", 0.1, "relative geotransform tolerance")
	fs.IntVar(&o.h3Res, "h3-res", summary.DefaultResolution, "H3 resolution of the summary, -1 to disable")
	fs.IntVar(&o.rollup, "summary-res", -1, "roll the H3 summary up to this coarser resolution, -1 to keep -h3-res")
	fs.BoolVar(&o.list, "list", false, "list functions admissible for -hazard and -exposure (all when omitted)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.list {
		return o, nil
	}
	if o.function == "" || o.hazard == "" || o.exposure == "" {
		return o, errors.New("-function, -hazard and -exposure are required")
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stderr, "impact:", err)
		}
		return 2
	}

	zl := logger.Build(logger.Config{Level: o.logLevel, Console: true, Service: "impact", Component: "cli"}, stderr)
	log := logger.NewSlog(&zl)

	reg := plugin.Default
	if o.catalog != "" {
		fns, err := catalog.Load(o.catalog)
		if err == nil {
			err = catalog.Register(reg, fns)
		}
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "impact:", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithCalculationID(ctx, logger.NewID())

	if o.list {
		return list(ctx, reg, o, stdout, stderr)
	}

	scaling, err := model.ParseScalingMode(o.scaling)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "impact:", err)
		return 2
	}

	hazard, exposure, err := load(o.hazard, o.exposure)
	if err != nil {
		return fail(stderr, log, err)
	}
	svc := service.New(nil, reg, service.Options{
		OutputDir:        o.out,
		GeotransformRTol: o.rtol,
		Scaling:          scaling,
		H3Resolution:     o.h3Res,
	}, log)
	var rollup *int
	if o.rollup >= 0 {
		rollup = &o.rollup
	}
	resp, err := svc.RunLayers(ctx, o.function, hazard, exposure, rollup)
	if err != nil {
		return fail(stderr, log, err)
	}
	return encode(stdout, stderr, resp)
}

func load(hazardPath, exposurePath string) (model.Layer, model.Layer, error) {
	fs := layerio.FileStore{}
	hazard, err := fs.ReadLayer(hazardPath)
	if err != nil {
		return nil, nil, apperr.IO("read hazard", err)
	}
	exposure, err := fs.ReadLayer(exposurePath)
	if err != nil {
		return nil, nil, apperr.IO("read exposure", err)
	}
	return hazard, exposure, nil
}

func list(_ context.Context, reg *plugin.Registry, o options, stdout, stderr io.Writer) int {
	var fns []plugin.Function
	if o.hazard != "" && o.exposure != "" {
		hazard, exposure, err := load(o.hazard, o.exposure)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "impact:", err)
			return 1
		}
		fns = reg.Admissible(plugin.DescriptorOf(hazard), plugin.DescriptorOf(exposure))
	} else {
		for _, n := range reg.Names() {
			f, _ := reg.Lookup(n)
			fns = append(fns, f)
		}
	}
	names := make([]string, 0, len(fns))
	for _, f := range fns {
		names = append(names, f.Name())
	}
	return encode(stdout, stderr, map[string][]string{"functions": names})
}

func fail(stderr io.Writer, log *slog.Logger, err error) int {
	log.Debug("calculation failed", "err", err)
	b, _ := json.Marshal(map[string]string{"kind": string(apperr.KindOf(err)), "message": err.Error()})
	_, _ = fmt.Fprintln(stderr, string(b))
	return 1
}

func encode(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintln(stderr, "impact:", err)
		return 1
	}
	return 0
}
