// Package logger builds the zerolog root logger and carries request-scoped
// fields through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root zerolog logger.
type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxCalcID    ctxKey = "calculation_id"
	ctxComponent ctxKey = "component"
	ctxPlugin    ctxKey = "plugin"
)

// context fields copied onto every record, in output order
var ctxFields = []ctxKey{ctxReqIDKey, ctxCalcID, ctxComponent, ctxPlugin}

// WithRequestID stores reqID, minting a fresh id when it is empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxReqIDKey).(string)
	return s
}

// WithCalculationID tags one impact calculation.
func WithCalculationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxCalcID, id)
}

// WithPlugin records the impact function being run.
func WithPlugin(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxPlugin, name)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > int(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(n)
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)

	if cfg.SampleN > 0 {
		n := safeUint32(cfg.SampleN)
		if n > 0 {
			base = base.Sample(&zerolog.BasicSampler{N: n})
		}
	}

	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch lvl {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := base.With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
