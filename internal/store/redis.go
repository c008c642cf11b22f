package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: commodity lookups during settlement and portfolio
// position queries. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Cached reads ---

func (s *CachedStore) GetCommodityByName(ctx context.Context, name string) (*model.Commodity, error) {
	if id, err := s.rdb.Get(ctx, nameKey(name)).Result(); err == nil {
		if c := s.cachedCommodity(ctx, id); c != nil {
			return c, nil
		}
	}

	c, err := s.primary.GetCommodityByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cacheCommodity(ctx, c)
	return c, nil
}

func (s *CachedStore) GetCommodityBySlug(ctx context.Context, slug string) (*model.Commodity, error) {
	if id, err := s.rdb.Get(ctx, slugKey(slug)).Result(); err == nil {
		if c := s.cachedCommodity(ctx, id); c != nil {
			return c, nil
		}
	}

	c, err := s.primary.GetCommodityBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.cacheCommodity(ctx, c)
	return c, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Writes (go to primary, invalidate cache) ---

func (s *CachedStore) CreateCommodity(ctx context.Context, c *model.Commodity) error {
	if err := s.primary.CreateCommodity(ctx, c); err != nil {
		return err
	}
	s.cacheCommodity(ctx, c)
	return nil
}

func (s *CachedStore) RenameCommodity(ctx context.Context, id, name, slug string) error {
	if err := s.primary.RenameCommodity(ctx, id, name, slug); err != nil {
		return err
	}
	// The old name/slug mappings go stale; drop everything for this ID.
	s.rdb.Del(ctx, commodityKey(id))
	return nil
}

func (s *CachedStore) DecrementInventory(ctx context.Context, commodityID string, qty int64) error {
	if err := s.primary.DecrementInventory(ctx, commodityID, qty); err != nil {
		return err
	}
	s.rdb.Del(ctx, commodityKey(commodityID))
	return nil
}

func (s *CachedStore) AddInventory(ctx context.Context, commodityID string, qty int64) error {
	if err := s.primary.AddInventory(ctx, commodityID, qty); err != nil {
		return err
	}
	s.rdb.Del(ctx, commodityKey(commodityID))
	return nil
}

func (s *CachedStore) AddPrice(ctx context.Context, p *model.Price) error {
	if err := s.primary.AddPrice(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, commodityKey(p.CommodityID))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, userID, commodityName string, qtyDelta int64, amount decimal.Decimal, color string) (*model.Position, error) {
	p, err := s.primary.UpsertPosition(ctx, userID, commodityName, qtyDelta, amount, color)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, positionsKey(userID))
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.primary.ListUserIDs(ctx)
}

func (s *CachedStore) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	return s.primary.ListCommodities(ctx)
}

func (s *CachedStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	return s.primary.InsertTransaction(ctx, t)
}

func (s *CachedStore) SetTransactionStatus(ctx context.Context, id, status string) error {
	return s.primary.SetTransactionStatus(ctx, id, status)
}

func (s *CachedStore) GetTransactionByReference(ctx context.Context, userID, reference string) (*model.Transaction, error) {
	return s.primary.GetTransactionByReference(ctx, userID, reference)
}

func (s *CachedStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.ListTransactionsByUser(ctx, userID)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, commodityName string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, commodityName)
}

func (s *CachedStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	return s.primary.InsertNotification(ctx, n)
}

func (s *CachedStore) InsertNotifications(ctx context.Context, ns []model.Notification) error {
	return s.primary.InsertNotifications(ctx, ns)
}

func (s *CachedStore) ListNotificationsByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.primary.ListNotificationsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheCommodity(ctx context.Context, c *model.Commodity) {
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, commodityKey(c.ID), data, s.ttl)
		s.rdb.Set(ctx, nameKey(c.Name), c.ID, s.ttl)
		s.rdb.Set(ctx, slugKey(c.Slug), c.ID, s.ttl)
	}
}

func (s *CachedStore) cachedCommodity(ctx context.Context, id string) *model.Commodity {
	data, err := s.rdb.Get(ctx, commodityKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var c model.Commodity
	if json.Unmarshal(data, &c) != nil {
		return nil
	}
	return &c
}

func commodityKey(id string) string { return fmt.Sprintf("commodity:%s", id) }

func nameKey(name string) string { return fmt.Sprintf("commodity:name:%s", name) }

func slugKey(slug string) string { return fmt.Sprintf("commodity:slug:%s", slug) }

func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
