package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-impact/internal/invalidation"
)

type call struct{ server, layer string }

type fakeEvictor struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	calls     []call
}

func (f *fakeEvictor) Invalidate(_ context.Context, server, layer string) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{server, layer})
	f.mu.Unlock()
	if f.failFirst.CompareAndSwap(true, false) {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func (f *fakeEvictor) seen() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type sess struct {
	ctx    context.Context
	claims map[string][]int32
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return s.claims }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "layer-updates" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

var tick atomic.Int64

// eventBytes stamps each event one second after the previous one.
func eventBytes(layer, server string) []byte {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(tick.Add(1)) * time.Second)
	return eventAt(layer, server, ts)
}

func eventAt(layer, server string, ts time.Time) []byte {
	ev := invalidation.Event{Version: 1, Op: invalidation.OpUpdate, Layer: layer, TS: ts, Server: server}
	b, _ := json.Marshal(ev)
	return b
}

func msg(part int32, off int64, value []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "layer-updates", Partition: part, Offset: off, Value: value}
}

func newConsumerForTest(ev *fakeEvictor) *Consumer {
	cfg := NewConfig("x", "layer-updates", "g")
	return New(cfg, slog.New(slog.DiscardHandler), ev)
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	ev := &fakeEvictor{}
	c := newConsumerForTest(ev)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msg(0, 10, eventBytes("geonode:shakemap", "http://gs/geoserver"))
	ch <- msg(0, 11, eventBytes("geonode:buildings", ""))
	close(ch)

	require.NoError(t, g.ConsumeClaim(s, &claim{part: 0, msgs: ch}))
	assert.Equal(t, []int64{10, 11}, s.marked)
	assert.Equal(t, []call{
		{"http://gs/geoserver", "geonode:shakemap"},
		{"", "geonode:buildings"},
	}, ev.seen())
}

func TestBadEventsAreSkipped(t *testing.T) {
	ev := &fakeEvictor{}
	c := newConsumerForTest(ev)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- msg(0, 1, []byte("{not json"))
	ch <- msg(0, 2, eventBytes("no-workspace", ""))
	ch <- msg(0, 3, eventBytes("geonode:ok", ""))
	close(ch)

	require.NoError(t, g.ConsumeClaim(s, &claim{part: 0, msgs: ch}))
	assert.Equal(t, []int64{1, 2, 3}, s.marked)
	assert.Equal(t, []call{{"", "geonode:ok"}}, ev.seen())
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	ev := &fakeEvictor{}
	ev.failFirst.Store(true)
	c := newConsumerForTest(ev)
	ctx := context.Background()

	m := msg(0, 5, eventBytes("geonode:shakemap", ""))
	require.Error(t, c.ProcessOne(ctx, m))

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- m
	close(ch)
	require.NoError(t, g.ConsumeClaim(s, &claim{part: 0, msgs: ch}))
	assert.Equal(t, []int64{5}, s.marked)
}

func TestFailedEvictionStopsClaim(t *testing.T) {
	ev := &fakeEvictor{}
	ev.failFirst.Store(true)
	c := newConsumerForTest(ev)
	s := &sess{ctx: t.Context()}
	g := &groupHandler{process: c.ProcessOne}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msg(0, 7, eventBytes("geonode:a", ""))
	ch <- msg(0, 8, eventBytes("geonode:b", ""))
	close(ch)

	err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "off=7")
	assert.Empty(t, s.marked)
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	ev := &fakeEvictor{}
	c := newConsumerForTest(ev)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- msg(0, 1, eventBytes("geonode:a", ""))
	p0 <- msg(0, 2, eventBytes("geonode:a", ""))
	p1 <- msg(1, 1, eventBytes("geonode:b", ""))
	p1 <- msg(1, 2, eventBytes("geonode:b", ""))
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	assert.Len(t, s.marked, 4)
	assert.Len(t, ev.seen(), 4)
}

func TestStaleEventsAreSkipped(t *testing.T) {
	ev := &fakeEvictor{}
	c := newConsumerForTest(ev)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.ProcessOne(ctx, msg(0, 1, eventAt("geonode:a", "", t0.Add(time.Minute)))))
	// redelivery and an older event for the same layer
	require.NoError(t, c.ProcessOne(ctx, msg(0, 2, eventAt("geonode:a", "", t0.Add(time.Minute)))))
	require.NoError(t, c.ProcessOne(ctx, msg(0, 3, eventAt("geonode:a", "", t0))))
	// same layer on another server is tracked separately
	require.NoError(t, c.ProcessOne(ctx, msg(0, 4, eventAt("geonode:a", "http://gs2/geoserver", t0))))
	require.NoError(t, c.ProcessOne(ctx, msg(0, 5, eventAt("geonode:a", "", t0.Add(2*time.Minute)))))

	assert.Equal(t, []call{
		{"", "geonode:a"},
		{"http://gs2/geoserver", "geonode:a"},
		{"", "geonode:a"},
	}, ev.seen())
}

func TestReadinessFollowsClaims(t *testing.T) {
	c := newConsumerForTest(&fakeEvictor{})
	g := &groupHandler{process: c.ProcessOne, onAssign: c.setClaims}

	ready, parts := c.Readiness()
	assert.False(t, ready)
	assert.Empty(t, parts)

	s := &sess{ctx: t.Context(), claims: map[string][]int32{"layer-updates": {2, 0}}}
	require.NoError(t, g.Setup(s))
	ready, parts = c.Readiness()
	assert.True(t, ready)
	assert.Equal(t, []int32{0, 2}, parts)

	require.NoError(t, g.Cleanup(s))
	ready, _ = c.Readiness()
	assert.False(t, ready)
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(" a:9092, ,b:9092 ", "t", "g")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.Equal(t, 30*time.Second, cfg.SessionTimeout)
}

func TestStartWithoutEvictor(t *testing.T) {
	c := New(NewConfig("x", "t", "g"), nil, nil)
	require.Error(t, c.Start(context.Background()))
}
