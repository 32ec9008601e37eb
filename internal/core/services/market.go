package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

// DefaultMarketWindow bounds how old an indicator may be to enter a snapshot.
const DefaultMarketWindow = 90 * 24 * time.Hour

type MarketService struct {
	repo   ports.MarketRepository
	window time.Duration
	now    func() time.Time
}

func NewMarketService(repo ports.MarketRepository, window time.Duration, now func() time.Time) *MarketService {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = DefaultMarketWindow
	}
	return &MarketService{repo: repo, window: window, now: now}
}

// Snapshot summarises the indicators observed inside the window.
func (s *MarketService) Snapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	now := s.now().UTC()
	indicators, err := s.repo.LatestIndicators(ctx, now.Add(-s.window))
	if err != nil {
		return nil, eris.Wrap(err, "services: load market indicators")
	}
	snap := domain.BuildMarketSnapshot(indicators, now)
	return &snap, nil
}

// Record persists indicators fetched by a feed.
func (s *MarketService) Record(ctx context.Context, indicators []domain.MarketIndicator) error {
	if len(indicators) == 0 {
		return nil
	}
	if err := s.repo.SaveIndicators(ctx, indicators); err != nil {
		return eris.Wrapf(err, "services: save %d market indicators", len(indicators))
	}
	return nil
}
