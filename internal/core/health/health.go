// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter is implemented by the layer-update consumer, which is
// ready once it holds partitions of the update topic.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Always is a reporter for deployments without cache invalidation.
type Always struct{}

func (Always) Readiness() (bool, []int32) { return true, nil }

type readiness struct {
	Status            string  `json:"status"`
	ClaimedPartitions []int32 `json:"claimed_partitions,omitempty"`
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ready, parts := rr.Readiness()
		out := readiness{Status: "not_ready"}
		code := http.StatusServiceUnavailable
		if ready {
			out = readiness{Status: "ready", ClaimedPartitions: parts}
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(out)
	}
}
