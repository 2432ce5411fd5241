// Package invalidation describes layer update events. A map server publishes
// one whenever a layer is uploaded, replaced or removed so that cached
// metadata for that layer can be dropped.
package invalidation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	OpPublish = "publish"
	OpUpdate  = "update"
	OpDelete  = "delete"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Layer   string    `json:"layer"`
	TS      time.Time `json:"ts"`
	// Server limits the eviction to one map server; empty means all servers.
	Server string `json:"server,omitempty"`
	Source string `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpPublish, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be publish|update|delete")
	}
	layer := strings.TrimSpace(e.Layer)
	if layer == "" {
		return fmt.Errorf("layer is required")
	}
	if ws, name, ok := strings.Cut(layer, ":"); !ok || ws == "" || name == "" {
		return fmt.Errorf("layer must have the form workspace:name")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Server != "" && !strings.Contains(e.Server, "://") {
		return fmt.Errorf("server must be an absolute URL")
	}
	return nil
}

// Evictor drops cached state for a layer. It returns how many entries were removed.
type Evictor interface {
	Invalidate(ctx context.Context, server, layer string) (int, error)
}
