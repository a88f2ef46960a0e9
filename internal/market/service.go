package market

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/youjaegwon/coinwatch/internal/observability"
)

// Cached entries live well past the freshness window so a flapping upstream
// can be served stale instead of failing the request.
const staleRetention = 24 * time.Hour

// Service is the read-through cache in front of the upstream gateway. With no
// redis client configured every request goes straight upstream.
type Service struct {
	client Client
	cache  redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

func NewService(client Client, cache redis.UniversalClient, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{client: client, cache: cache, logger: logger, ttl: ttl}
}

func (s *Service) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrSymbolNotFound
	}
	key := "market:quote:" + symbol

	var cached Quote
	hasCached := s.readCache(ctx, key, &cached)
	if hasCached && time.Since(cached.FetchedAt) < s.ttl {
		return &cached, nil
	}

	quote, err := s.client.FetchQuote(ctx, symbol)
	if err != nil {
		observability.RecordMarketFetch(ctx, "error")
		if errors.Is(err, ErrSymbolNotFound) {
			return nil, err
		}
		if hasCached {
			s.logger.WarnContext(ctx, "serving stale quote, upstream failed", "symbol", symbol, "error", err)
			return &cached, nil
		}
		return nil, err
	}
	observability.RecordMarketFetch(ctx, "success")
	s.writeCache(ctx, key, quote)
	return quote, nil
}

func (s *Service) GetCoins(ctx context.Context) ([]Coin, error) {
	const key = "market:coins"

	var cached coinList
	hasCached := s.readCache(ctx, key, &cached)
	if hasCached && time.Since(cached.FetchedAt) < s.ttl {
		return cached.Coins, nil
	}

	coins, err := s.client.FetchCoins(ctx)
	if err != nil {
		observability.RecordMarketFetch(ctx, "error")
		if hasCached {
			s.logger.WarnContext(ctx, "serving stale coin list, upstream failed", "error", err)
			return cached.Coins, nil
		}
		return nil, err
	}
	observability.RecordMarketFetch(ctx, "success")
	s.writeCache(ctx, key, coinList{Coins: coins, FetchedAt: time.Now().UTC()})
	return coins, nil
}

type coinList struct {
	Coins     []Coin    `json:"coins"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (s *Service) readCache(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "market cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.WarnContext(ctx, "market cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.WarnContext(ctx, "market cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, staleRetention).Err(); err != nil {
		s.logger.WarnContext(ctx, "market cache write failed", "key", key, "error", err)
	}
}
