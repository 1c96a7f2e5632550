// Package catalog maintains the process-wide coin catalog: a shared
// refresh-if-stale snapshot, the symbol→name dictionary used by mention
// extraction, and the symbol tie-break used for display.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/models"
)

// peggedMarker identifies wrapped/pegged token listings, which only win a
// symbol tie when no other candidate is available.
const peggedMarker = "binance-peg"

// Fetcher retrieves catalog data: the market snapshot used for display
// and, as a degraded fallback, the bare symbol/name list.
type Fetcher interface {
	CoinsMarkets(ctx context.Context, vsCurrency string, limit int) ([]models.Coin, error)
	CoinsList(ctx context.Context) ([]models.Coin, error)
}

// Cache is a shared, read-mostly coin catalog snapshot with a staleness
// timestamp. All trackers use the same instance; whichever cycle first
// observes the snapshot stale triggers the refresh.
type Cache struct {
	fetcher    Fetcher
	vsCurrency string
	limit      int
	ttl        time.Duration

	mu        sync.Mutex
	coins     []models.Coin
	dict      *Dict
	fetchedAt time.Time
}

// NewCache creates a catalog cache refreshed at most once per ttl.
func NewCache(fetcher Fetcher, vsCurrency string, limit int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		fetcher:    fetcher,
		vsCurrency: vsCurrency,
		limit:      limit,
		ttl:        ttl,
	}
}

// Snapshot returns the current coins and dictionary, refreshing first if
// the snapshot is absent or older than the ttl. On refresh failure a
// previous non-empty snapshot is served stale rather than failing the
// caller's cycle.
func (c *Cache) Snapshot(ctx context.Context) ([]models.Coin, *Dict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coins != nil && time.Since(c.fetchedAt) <= c.ttl {
		return c.coins, c.dict, nil
	}

	coins, err := c.fetcher.CoinsMarkets(ctx, c.vsCurrency, c.limit)
	if err != nil {
		if c.coins != nil {
			logger.Warn("Catalog refresh failed, serving stale snapshot: %v", err)
			return c.coins, c.dict, nil
		}
		// No snapshot yet: the bare list still carries the symbols and
		// names extraction needs, just without market caps. Not stamped
		// as fresh, so the next cycle retries the market snapshot.
		logger.Warn("Market snapshot unavailable, falling back to bare coin list: %v", err)
		coins, err = c.fetcher.CoinsList(ctx)
		if err != nil {
			return nil, nil, err
		}
		c.coins = coins
		c.dict = NewDict(coins)
		return c.coins, c.dict, nil
	}

	c.coins = coins
	c.dict = NewDict(coins)
	c.fetchedAt = time.Now()
	logger.Info("Catalog refreshed: %d coins", len(coins))
	return c.coins, c.dict, nil
}

// SymbolName is one symbol→name dictionary entry.
type SymbolName struct {
	Symbol string
	Name   string
}

// Dict is an ordered symbol→name dictionary. The first catalog entry per
// symbol wins; iteration order is catalog order, which keeps the
// name-substring scan and the resulting tie ordering deterministic.
type Dict struct {
	names   map[string]string
	entries []SymbolName
}

// NewDict builds the dictionary from a catalog snapshot. Entries without
// a symbol or name are skipped.
func NewDict(coins []models.Coin) *Dict {
	d := &Dict{names: make(map[string]string, len(coins))}
	for _, coin := range coins {
		symbol := strings.ToLower(coin.Symbol)
		name := strings.ToLower(coin.Name)
		if symbol == "" || name == "" {
			continue
		}
		if _, ok := d.names[symbol]; ok {
			continue
		}
		d.names[symbol] = name
		d.entries = append(d.entries, SymbolName{Symbol: symbol, Name: name})
	}
	return d
}

// HasSymbol reports whether the lowercase symbol is a known ticker.
func (d *Dict) HasSymbol(symbol string) bool {
	_, ok := d.names[symbol]
	return ok
}

// Entries returns the dictionary in catalog order.
func (d *Dict) Entries() []SymbolName {
	return d.entries
}

// Len returns the number of distinct symbols.
func (d *Dict) Len() int {
	return len(d.entries)
}

// BestBySymbol picks the coin to display for a ticker when several
// catalog entries share its symbol: pegged listings are replaced by any
// later candidate, a strictly larger market cap wins, and otherwise the
// first encountered entry is kept.
func BestBySymbol(symbol string, coins []models.Coin) *models.Coin {
	symbol = strings.ToLower(symbol)
	var best *models.Coin
	for i := range coins {
		c := &coins[i]
		if strings.ToLower(c.Symbol) != symbol {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		if strings.Contains(strings.ToLower(best.Name), peggedMarker) {
			best = c
			continue
		}
		if best.MarketCap != nil && c.MarketCap != nil && *c.MarketCap > *best.MarketCap {
			best = c
		}
	}
	return best
}
