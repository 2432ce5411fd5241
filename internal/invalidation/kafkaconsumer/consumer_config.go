package kafkaconsumer

import (
	"strings"
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	RetryBackoff        time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds the per-layer memory of applied event times.
	DedupeSize int
}

// NewConfig fills the group timeouts with their defaults. brokers is a comma
// separated list.
func NewConfig(brokers, topic, group string) Config {
	return Config{
		Brokers:             splitCSV(brokers),
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		RetryBackoff:        2 * time.Second,
		InitialOffsetOldest: false,
		DedupeSize:          4096,
	}
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
