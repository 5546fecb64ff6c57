// Package dataset loads preprocessed candle series for the engine. A dataset
// is a JSON array of candles carrying the full input contract (OHLCV plus
// dailyReturn, intradayVolatility, trueRange, rollingVolatility, index); the
// loader validates shape and ordering but never derives those fields itself.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// Load reads a candle series from a local JSON file.
func Load(path string) ([]domain.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	candles, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return candles, nil
}

// Fetch reads a candle series from blob storage under the given key.
func Fetch(ctx context.Context, blobs domain.BlobReader, key string) ([]domain.Candle, error) {
	data, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dataset: fetch %s: %w", key, err)
	}
	candles, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", key, err)
	}
	return candles, nil
}

// Resolve loads a dataset from either a local path or, when a blob reader is
// available and the key carries the "s3://" prefix, from object storage.
func Resolve(ctx context.Context, blobs domain.BlobReader, key string) ([]domain.Candle, error) {
	if strings.HasPrefix(key, "s3://") {
		if blobs == nil {
			return nil, fmt.Errorf("dataset: %s requires blob storage, which is not configured", key)
		}
		return Fetch(ctx, blobs, strings.TrimPrefix(key, "s3://"))
	}
	return Load(key)
}

// Parse decodes and validates a JSON candle array.
func Parse(data []byte) ([]domain.Candle, error) {
	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	if err := Validate(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// Validate checks the invariants the engine depends on: a non-empty series,
// contiguous zero-based indices, and strictly positive closes (the ledger
// divides by entry price).
func Validate(candles []domain.Candle) error {
	if len(candles) == 0 {
		return domain.ErrDatasetEmpty
	}
	for i, c := range candles {
		if c.Index != i {
			return fmt.Errorf("candle %d carries index %d: %w", i, c.Index, domain.ErrDatasetInvalid)
		}
		if c.Close <= 0 {
			return fmt.Errorf("candle %d has non-positive close %f: %w", i, c.Close, domain.ErrDatasetInvalid)
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d has high %f below low %f: %w", i, c.High, c.Low, domain.ErrDatasetInvalid)
		}
	}
	return nil
}
