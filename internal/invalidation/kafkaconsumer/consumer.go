// Package kafkaconsumer applies layer update events from a Kafka topic to the
// metadata cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/invalidation"
	mylog "github.com/mohammed-shakir/hazard-impact/internal/logger"
)

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	evictor invalidation.Evictor
	seen    *tsDedupe

	mu     sync.Mutex
	claims []int32
	ready  bool
}

func New(cfg Config, logger *slog.Logger, evictor invalidation.Evictor) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, evictor: evictor, seen: newTSDedupe(cfg.DedupeSize)}
}

// Start consumes events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.evictor == nil {
		return errors.New("kafkaconsumer: missing evictor")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne, onAssign: c.setClaims}

	c.logger.InfoContext(ctx, "layer update consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "layer update consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.ErrorContext(ctx, "kafka consumer error",
					"err", err, "brokers", c.cfg.Brokers, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(c.cfg.RetryBackoff):
				}
			}
		}
	}
}

// ProcessOne applies a single event. Undecodable or invalid events are logged
// and skipped; eviction failures are returned so the offset is not committed.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidation("decode_error")
		c.logger.WarnContext(ctx, "skipping undecodable layer event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidation("invalid")
		c.logger.WarnContext(ctx, "skipping invalid layer event",
			"layer", ev.Layer, "offset", msg.Offset, "err", err)
		return nil
	}

	key := ev.Server + "|" + ev.Layer
	if c.seen.stale(key, ev.TS) {
		obs.IncInvalidation("duplicate")
		c.logger.DebugContext(ctx, "skipping stale layer event", "layer", ev.Layer, "ts", ev.TS)
		return nil
	}

	n, err := c.evictor.Invalidate(ctx, ev.Server, ev.Layer)
	if err != nil {
		obs.IncInvalidation("evict_error")
		return fmt.Errorf("invalidate %s: %w", ev.Layer, err)
	}
	c.seen.applied(key, ev.TS)
	obs.IncInvalidation("applied")
	c.logger.DebugContext(ctx, "layer metadata invalidated",
		"layer", ev.Layer, "op", ev.Op, "server", ev.Server, "entries", n)
	return nil
}

func (c *Consumer) setClaims(parts []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = slices.Clone(parts)
	slices.Sort(c.claims)
	c.ready = parts != nil
}

// Readiness implements health.ReadinessReporter.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, slices.Clone(c.claims)
}
