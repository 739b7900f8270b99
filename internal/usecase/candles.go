package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

const maxCandleWindow = 5000

var ErrInvalidRequest = errors.New("invalid request")

// CandlesUseCase exposes the bar window a cycle would see.
type CandlesUseCase struct {
	store domrepo.FeatureStore
}

func NewCandlesUseCase(store domrepo.FeatureStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesResult struct {
	Pair      string          `json:"pair"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// Latest returns up to n bars for pair in ascending time order. A non-zero
// since drops bars whose bucket opens before it.
func (uc *CandlesUseCase) Latest(ctx context.Context, pair, timeframe string, n int, since time.Time) (*GetCandlesResult, error) {
	if pair == "" {
		return nil, fmt.Errorf("%w: pair required", ErrInvalidRequest)
	}
	if timeframe != "" && !domrepo.IsValidTimeframe(domrepo.Timeframe(timeframe)) {
		return nil, fmt.Errorf("%w: timeframe %q", ErrInvalidRequest, timeframe)
	}
	if n <= 0 {
		n = 200
	}
	if n > maxCandleWindow {
		n = maxCandleWindow
	}
	tf := domrepo.NormalizeTimeframe(timeframe)
	candles, err := uc.store.GetLatestNCandles(ctx, pair, n, tf)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if !since.IsZero() {
		kept := candles[:0:0]
		for _, c := range candles {
			if !c.Bucket.Before(since) {
				kept = append(kept, c)
			}
		}
		candles = kept
	}
	return &GetCandlesResult{Pair: pair, Timeframe: string(tf), Count: len(candles), Candles: candles}, nil
}
