// Package marketdata provides historical price storage and the
// conversion of daily price series into monthly return records.
package marketdata

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/advisordesk/portfolio-backend/pkg/types"
	"github.com/advisordesk/portfolio-backend/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store provides access to historical daily close prices per symbol.
// Series are cached in memory and persisted as JSON files under the
// data directory. When no file exists for a symbol, a deterministic
// synthetic series is generated so backtests stay reproducible offline.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.PricePoint
}

// NewStore creates a new price store
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Store{
		logger:  logger,
		dataDir: dataDir,
		cache:   make(map[string][]types.PricePoint),
	}, nil
}

// DailyPrices returns the daily close series for a symbol within
// [start, end], chronologically ordered.
func (s *Store) DailyPrices(symbol string, start, end time.Time) ([]types.PricePoint, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol must not be empty")
	}

	series, err := s.loadSeries(symbol, start, end)
	if err != nil {
		return nil, err
	}

	filtered := filterByDateRange(series, start, end)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("no price data for %s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	return filtered, nil
}

// LatestPrice returns the most recent close price for a symbol
func (s *Store) LatestPrice(symbol string) (decimal.Decimal, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("symbol must not be empty")
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	series, err := s.loadSeries(symbol, end.AddDate(0, -1, 0), end)
	if err != nil {
		return decimal.Zero, err
	}
	if len(series) == 0 {
		return decimal.Zero, fmt.Errorf("no price data available for %s", symbol)
	}

	latest := series[len(series)-1].Close
	if latest.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("invalid closing price for %s: %s", symbol, latest)
	}

	return latest, nil
}

// SaveDailyPrices persists a daily close series for a symbol
func (s *Store) SaveDailyPrices(symbol string, series []types.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol = utils.NormalizeSymbol(symbol)

	sorted := make([]types.PricePoint, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal price series: %w", err)
	}

	if err := os.WriteFile(s.seriesPath(symbol), data, 0644); err != nil {
		return fmt.Errorf("failed to write price file: %w", err)
	}

	s.cache[symbol] = sorted
	return nil
}

// Symbols returns the symbols with a persisted series
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil
	}

	var symbols []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			symbols = append(symbols, name[:len(name)-len(".json")])
		}
	}
	sort.Strings(symbols)
	return symbols
}

// ClearCache clears the in-memory cache
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.PricePoint)
}

func (s *Store) seriesPath(symbol string) string {
	return filepath.Join(s.dataDir, symbol+".json")
}

func (s *Store) loadSeries(symbol string, start, end time.Time) ([]types.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[symbol]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(s.seriesPath(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("Generating synthetic price series",
				zap.String("symbol", symbol),
				zap.String("start", start.Format("2006-01-02")),
				zap.String("end", end.Format("2006-01-02")),
			)
			series := syntheticSeries(symbol, start, end)
			s.cache[symbol] = series
			return series, nil
		}
		return nil, fmt.Errorf("failed to read price file for %s: %w", symbol, err)
	}

	var series []types.PricePoint
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("failed to parse price file for %s: %w", symbol, err)
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})

	s.cache[symbol] = series
	return series, nil
}

func filterByDateRange(series []types.PricePoint, start, end time.Time) []types.PricePoint {
	var filtered []types.PricePoint
	for _, point := range series {
		if !point.Date.Before(start) && !point.Date.After(end) {
			filtered = append(filtered, point)
		}
	}
	return filtered
}

// syntheticSeries generates a deterministic daily close series for a
// symbol. The generator is seeded from the symbol name, so the same
// symbol and date range always produce the same prices.
func syntheticSeries(symbol string, start, end time.Time) []types.PricePoint {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 50.0 + rng.Float64()*150.0
	drift := 0.0002 + rng.Float64()*0.0003

	var series []types.PricePoint
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		// Weekdays only, matching exchange trading days.
		if wd := current.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		price *= 1 + drift + (rng.Float64()-0.5)*0.02
		series = append(series, types.PricePoint{
			Date:  current,
			Close: decimal.NewFromFloat(price).Round(4),
		})
	}

	return series
}
