// Package ingest pulls market indicators from the configured feeds and
// persists them in batches.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/metrics"
)

const channelBuffer = 2000

// Sink persists a batch of indicators. *services.MarketService satisfies it.
type Sink interface {
	Record(ctx context.Context, indicators []domain.MarketIndicator) error
}

type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxConcurrent int
}

// FromConfig maps ingest settings onto Options.
func FromConfig(cfg config.IngestConfig) Options {
	return Options{
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushIntervalSecs) * time.Second,
		MaxConcurrent: cfg.MaxConcurrentFeeds,
	}
}

// Result summarises one ingestion pass.
type Result struct {
	Feeds       int `json:"feeds"`
	FailedFeeds int `json:"failed_feeds"`
	Fetched     int `json:"fetched"`
	Saved       int `json:"saved"`
}

type Ingester struct {
	providers []ports.MarketDataProvider
	sink      Sink
	opts      Options
}

func New(providers []ports.MarketDataProvider, sink Sink, opts Options) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Ingester{providers: providers, sink: sink, opts: opts}
}

type item struct {
	feed      string
	indicator domain.MarketIndicator
}

// RunOnce fetches every feed concurrently and saves what they return. A failing
// feed is logged and skipped; an error is returned only when every feed failed
// or ctx ended.
func (i *Ingester) RunOnce(ctx context.Context) (Result, error) {
	res := Result{Feeds: len(i.providers)}
	if len(i.providers) == 0 {
		return res, nil
	}

	items := make(chan item, channelBuffer)
	var failed, fetched atomic.Int64

	var g errgroup.Group
	g.SetLimit(i.opts.MaxConcurrent)

	go func() {
		for _, p := range i.providers {
			p := p
			g.Go(func() error {
				zap.L().Info("fetching market feed", zap.String("feed", p.Name()))

				indicators, err := p.FetchIndicators(ctx)
				if err != nil {
					failed.Add(1)
					metrics.RecordOutboundError(p.Name(), "fetch")
					zap.L().Error("market feed failed", zap.String("feed", p.Name()), zap.Error(err))
					return nil
				}
				fetched.Add(int64(len(indicators)))
				zap.L().Info("market feed fetched", zap.String("feed", p.Name()), zap.Int("indicators", len(indicators)))

				for _, ind := range indicators {
					select {
					case items <- item{feed: p.Name(), indicator: ind}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			})
		}
		_ = g.Wait()
		close(items)
	}()

	res.Saved = i.persist(ctx, items)
	res.FailedFeeds = int(failed.Load())
	res.Fetched = int(fetched.Load())

	zap.L().Info("market ingestion finished",
		zap.Int("feeds", res.Feeds),
		zap.Int("failed_feeds", res.FailedFeeds),
		zap.Int("fetched", res.Fetched),
		zap.Int("saved", res.Saved),
	)

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "ingest: run interrupted")
	}
	if res.FailedFeeds == res.Feeds {
		return res, eris.Errorf("ingest: all %d feeds failed", res.Feeds)
	}
	return res, nil
}

// persist drains items, flushing when the batch is full or the ticker fires.
func (i *Ingester) persist(ctx context.Context, items <-chan item) int {
	batch := make([]item, 0, i.opts.BatchSize)
	saved := 0

	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		indicators := make([]domain.MarketIndicator, len(batch))
		perFeed := make(map[string]int)
		for n, it := range batch {
			indicators[n] = it.indicator
			perFeed[it.feed]++
		}
		if err := i.sink.Record(ctx, indicators); err != nil {
			zap.L().Error("failed to save indicator batch", zap.String("reason", reason), zap.Int("size", len(batch)), zap.Error(err))
		} else {
			saved += len(batch)
			for feed, n := range perFeed {
				metrics.RecordIndicatorsIngested(feed, n)
			}
			zap.L().Debug("indicator batch saved", zap.String("reason", reason), zap.Int("size", len(batch)), zap.Int("total", saved))
		}
		batch = batch[:0]
	}

	ticker := time.NewTicker(i.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case it, ok := <-items:
			if !ok {
				flush("final")
				return saved
			}
			batch = append(batch, it)
			if len(batch) >= i.opts.BatchSize {
				flush("size")
			}
		case <-ticker.C:
			flush("interval")
		}
	}
}

// Run ingests immediately and then every interval until ctx is done.
func (i *Ingester) Run(ctx context.Context, interval time.Duration) error {
	if _, err := i.RunOnce(ctx); err != nil && ctx.Err() == nil {
		zap.L().Warn("ingestion pass failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := i.RunOnce(ctx); err != nil && ctx.Err() == nil {
				zap.L().Warn("ingestion pass failed", zap.Error(err))
			}
		}
	}
}
