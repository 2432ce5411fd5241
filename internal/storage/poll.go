package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
)

const (
	DefaultPollAttempts = 4
	DefaultPollBackoff  = 300 * time.Millisecond
)

// Poller waits for a freshly published layer to show up in the server's
// capabilities. It retries a fixed number of times with a fixed backoff and
// then fails for good.
type Poller struct {
	Store    Store
	Attempts int
	Backoff  time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

func NewPoller(s Store, logger *slog.Logger) *Poller {
	return &Poller{
		Store:    s,
		Attempts: DefaultPollAttempts,
		Backoff:  DefaultPollBackoff,
		Clock:    clockwork.NewRealClock(),
		Logger:   logger,
	}
}

// PollMetadata returns the layer's metadata once it is available and valid.
func (p *Poller) PollMetadata(ctx context.Context, server, name string) (model.Metadata, error) {
	attempts := max(p.Attempts, 1)
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		m, err := p.Store.GetMetadata(ctx, server, name)
		if err == nil {
			err = m.Validate()
		}
		if err == nil {
			observability.IncMetadataPoll("ok")
			return m, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		observability.IncMetadataPoll("retry")
		logger.DebugContext(ctx, "metadata not ready", "layer", name, "attempt", i, "err", err)

		select {
		case <-ctx.Done():
			return model.Metadata{}, apperr.IO(fmt.Sprintf("polling metadata for %q", name), ctx.Err())
		case <-clock.After(p.Backoff):
		}
	}
	observability.IncMetadataPoll("exhausted")
	return model.Metadata{}, apperr.IO(
		fmt.Sprintf("metadata for %q unavailable after %d attempts", name, attempts), lastErr)
}

// GetMetadata implements Store.
func (p *Poller) GetMetadata(ctx context.Context, server, name string) (model.Metadata, error) {
	return p.PollMetadata(ctx, server, name)
}

// Download implements Store, polling for the metadata first.
func (p *Poller) Download(ctx context.Context, server, name string, bbox model.BBox, res *model.Resolution) (model.Layer, error) {
	if err := checkDownload(name, bbox, res); err != nil {
		return nil, err
	}
	m, err := p.PollMetadata(ctx, server, name)
	if err != nil {
		return nil, err
	}
	return p.DownloadLayer(ctx, server, m, bbox, res)
}

// DownloadLayer implements Fetcher when the polled store does.
func (p *Poller) DownloadLayer(ctx context.Context, server string, m model.Metadata, bbox model.BBox, res *model.Resolution) (model.Layer, error) {
	f, ok := p.Store.(Fetcher)
	if !ok {
		return p.Store.Download(ctx, server, m.ID, bbox, res)
	}
	return f.DownloadLayer(ctx, server, m, bbox, res)
}
