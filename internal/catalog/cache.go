// Package catalog materializes the on-ledger artwork state into a local
// snapshot so reads never pay ledger latency. The snapshot is rebuilt in
// full only on cold start or detected drift; confirmed mutations this
// service orchestrated are applied incrementally, one token at a time.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/galleryops/internal/ledger"
	"github.com/punchamoorthee/galleryops/internal/models"
	"go.uber.org/zap"
)

var (
	rebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_catalog_rebuilds_total",
		Help: "Full catalog rebuilds from the ledger",
	})

	tokensGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_catalog_tokens",
		Help: "Tokens currently held in the catalog snapshot",
	})
)

// ErrNotFound reports that the token is not present in the snapshot.
var ErrNotFound = errors.New("artwork not in catalog")

type Cache struct {
	client ledger.Client
	log    *zap.Logger

	// Writers (rebuild, apply, refresh) serialize on wmu; readers only
	// touch mu, so they never block on ledger I/O beyond the swap.
	wmu sync.Mutex
	mu  sync.RWMutex

	arts   map[int64]models.Artwork
	supply int64
}

func New(client ledger.Client, log *zap.Logger) *Cache {
	return &Cache{
		client: client,
		log:    log,
		arts:   make(map[int64]models.Artwork),
	}
}

// List returns the snapshot ordered by token id.
func (c *Cache) List() []models.Artwork {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Artwork, 0, len(c.arts))
	for _, art := range c.arts {
		out = append(out, art)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Get returns a single artwork from the snapshot.
func (c *Cache) Get(tokenID int64) (models.Artwork, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	art, ok := c.arts[tokenID]
	if !ok {
		return models.Artwork{}, ErrNotFound
	}
	return art, nil
}

// Supply returns the ledger token supply the snapshot accounts for.
func (c *Cache) Supply() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supply
}

// Rebuild enumerates token ids 1..totalSupply and re-reads each one. The
// fresh snapshot is built off-lock and swapped in atomically; concurrent
// readers keep seeing the previous snapshot until the swap.
func (c *Cache) Rebuild(ctx context.Context) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	supply, err := c.client.TotalSupply(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[int64]models.Artwork, supply)
	for id := int64(1); id <= supply; id++ {
		art, err := c.client.ReadArtwork(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return err
		}
		fresh[id] = normalize(*art)
	}

	c.mu.Lock()
	c.arts = fresh
	c.supply = supply
	c.mu.Unlock()

	rebuildsTotal.Inc()
	tokensGauge.Set(float64(len(fresh)))
	c.log.Info("catalog rebuilt",
		zap.Int64("total_supply", supply),
		zap.Int("tokens", len(fresh)))
	return nil
}

// Apply folds one confirmed mutation's effect into the snapshot. This is
// the cheap path taken for every confirmation this service orchestrated
// itself; the update is atomic per token.
func (c *Cache) Apply(art models.Artwork) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	art = normalize(art)
	c.mu.Lock()
	c.arts[art.TokenID] = art
	if art.TokenID > c.supply {
		c.supply = art.TokenID
	}
	tokensGauge.Set(float64(len(c.arts)))
	c.mu.Unlock()
}

// RefreshToken re-reads a single token from the ledger, replacing (or
// dropping) its snapshot entry. Used after a revert to resolve the
// staleness that likely caused it.
func (c *Cache) RefreshToken(ctx context.Context, tokenID int64) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	art, err := c.client.ReadArtwork(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.mu.Lock()
			delete(c.arts, tokenID)
			tokensGauge.Set(float64(len(c.arts)))
			c.mu.Unlock()
			return nil
		}
		return err
	}

	c.mu.Lock()
	c.arts[tokenID] = normalize(*art)
	c.mu.Unlock()
	return nil
}

// CheckDrift compares the ledger's token supply against what the snapshot
// accounts for and rebuilds on mismatch. A mismatch means tokens were
// minted outside this service (or a timed-out mint landed late).
func (c *Cache) CheckDrift(ctx context.Context) (bool, error) {
	supply, err := c.client.TotalSupply(ctx)
	if err != nil {
		return false, err
	}
	if supply == c.Supply() {
		return false, nil
	}
	c.log.Warn("catalog drift detected",
		zap.Int64("ledger_supply", supply),
		zap.Int64("cached_supply", c.Supply()))
	if err := c.Rebuild(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run checks for drift on the given interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CheckDrift(ctx); err != nil {
				c.log.Error("drift check failed", zap.Error(err))
			}
		}
	}
}

// normalize upholds the snapshot invariant: a token that is not for sale
// carries no price, and for_sale is never true with a non-positive price.
func normalize(art models.Artwork) models.Artwork {
	if art.ForSale && art.Price <= 0 {
		art.ForSale = false
	}
	if !art.ForSale {
		art.Price = 0
	}
	return art
}
