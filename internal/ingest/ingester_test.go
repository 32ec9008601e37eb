package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/adapter/repository"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/core/services"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeFeed struct {
	name     string
	count    int
	err      error
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) FetchIndicators(ctx context.Context) ([]domain.MarketIndicator, error) {
	if f.inFlight != nil {
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.MarketIndicator, f.count)
	for i := range out {
		out[i] = domain.MarketIndicator{
			Sector:        f.name,
			Region:        "global",
			Metric:        fmt.Sprintf("m%d", i),
			Value:         float64(i + 1),
			PreviousValue: 1,
			AsOf:          time.Now().UTC(),
			Source:        f.name,
		}
	}
	return out, nil
}

type recordingSink struct {
	mu      sync.Mutex
	batches []int
	total   int
	err     error
}

func (s *recordingSink) Record(ctx context.Context, indicators []domain.MarketIndicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, len(indicators))
	s.total += len(indicators)
	return nil
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(config.IngestConfig{BatchSize: 50, FlushIntervalSecs: 2, MaxConcurrentFeeds: 3})
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 2*time.Second, opts.FlushInterval)
	assert.Equal(t, 3, opts.MaxConcurrent)
}

func TestRunOnce_BatchesAllFeeds(t *testing.T) {
	sink := &recordingSink{}
	feeds := []ports.MarketDataProvider{
		&fakeFeed{name: "software", count: 7},
		&fakeFeed{name: "energy", count: 5},
	}

	res, err := New(feeds, sink, Options{BatchSize: 4, FlushInterval: time.Hour}).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Feeds: 2, Fetched: 12, Saved: 12}, res)
	assert.Equal(t, 12, sink.total)
	for _, size := range sink.batches {
		assert.LessOrEqual(t, size, 4)
	}
	assert.Len(t, sink.batches, 3)
}

func TestRunOnce_FailingFeedIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	feeds := []ports.MarketDataProvider{
		&fakeFeed{name: "broken", err: errors.New("status 503")},
		&fakeFeed{name: "ok", count: 3},
	}

	res, err := New(feeds, sink, Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedFeeds)
	assert.Equal(t, 3, res.Saved)
}

func TestRunOnce_AllFeedsFail(t *testing.T) {
	feeds := []ports.MarketDataProvider{
		&fakeFeed{name: "a", err: errors.New("boom")},
		&fakeFeed{name: "b", err: errors.New("boom")},
	}
	res, err := New(feeds, &recordingSink{}, Options{}).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 feeds failed")
	assert.Equal(t, 2, res.FailedFeeds)
}

func TestRunOnce_SinkErrorNotCounted(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	res, err := New([]ports.MarketDataProvider{&fakeFeed{name: "a", count: 2}}, sink, Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.Saved)
}

func TestRunOnce_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	feeds := make([]ports.MarketDataProvider, 6)
	for i := range feeds {
		feeds[i] = &fakeFeed{name: fmt.Sprintf("f%d", i), count: 1, inFlight: &inFlight, peak: &peak}
	}

	res, err := New(feeds, &recordingSink{}, Options{MaxConcurrent: 2}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Saved)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunOnce_NoFeeds(t *testing.T) {
	res, err := New(nil, &recordingSink{}, Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Feeds)
}

func TestRunOnce_FeedsIntoSnapshot(t *testing.T) {
	repo := repository.NewMemoryRepository()
	market := services.NewMarketService(repo, 0, nil)

	_, err := New([]ports.MarketDataProvider{&fakeFeed{name: "software", count: 2}}, market, Options{}).RunOnce(context.Background())
	require.NoError(t, err)

	snap, err := market.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Indicators)
	assert.Equal(t, []string{"software"}, snap.TopSectors)
}

func TestRun_StopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- New([]ports.MarketDataProvider{&fakeFeed{name: "a", count: 1}}, sink, Options{}).Run(ctx, 10*time.Millisecond)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.GreaterOrEqual(t, sink.total, 1)
}
