package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestSlogBridge_ContextFieldsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "riskd"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCalculationID(ctx, "calc-9")
	ctx = WithPlugin(ctx, "Earthquake Building Damage (BNPB guidelines)")
	l.WithGroup("layer").InfoContext(ctx, "downloaded", "name", "shakemap", "err", errors.New("boom"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"request_id":     "req-1",
		"calculation_id": "calc-9",
		"plugin":         "Earthquake Building Damage (BNPB guidelines)",
		"service":        "riskd",
		"layer.name":     "shakemap",
		"layer.err":      "boom",
		"msg":            "downloaded",
		"level":          "info",
	}
	for k, v := range want {
		if got, _ := rec[k].(string); got != v {
			t.Fatalf("%s=%q want %q (record %v)", k, got, v, rec)
		}
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn record missing")
	}
	Build(Config{Level: "info"}, &buf)
}
