package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/inventory"
	"github.com/commodex/trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// All mutations happen under one lock, so the conditional decrement and the
// position upsert are atomic here just as they are in PostgreSQL.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	commodities   map[string]*model.Commodity // by ID
	transactions  []model.Transaction
	positions     map[string]*model.Position // key: userID + "\x00" + commodityName
	notifications []model.Notification
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*model.User),
		commodities: make(map[string]*model.Commodity),
		positions:   make(map[string]*model.Position),
	}
}

func posKey(userID, commodityName string) string {
	return userID + "\x00" + commodityName
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
	}
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- Commodities ---

func (s *MemoryStore) CreateCommodity(_ context.Context, c *model.Commodity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.commodities {
		if existing.Name == c.Name || existing.Slug == c.Slug {
			return fmt.Errorf("commodity %s: %w", c.Name, ErrAlreadyExists)
		}
	}

	copy := *c
	copy.Prices = append([]model.Price(nil), c.Prices...)
	s.commodities[c.ID] = &copy
	return nil
}

func (s *MemoryStore) GetCommodityByName(_ context.Context, name string) (*model.Commodity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.commodities {
		if c.Name == name {
			return copyCommodity(c), nil
		}
	}
	return nil, fmt.Errorf("commodity %s: %w", name, ErrNotFound)
}

func (s *MemoryStore) GetCommodityBySlug(_ context.Context, slug string) (*model.Commodity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.commodities {
		if c.Slug == slug {
			return copyCommodity(c), nil
		}
	}
	return nil, fmt.Errorf("commodity slug %s: %w", slug, ErrNotFound)
}

func (s *MemoryStore) ListCommodities(_ context.Context) ([]model.Commodity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commodities := make([]model.Commodity, 0, len(s.commodities))
	for _, c := range s.commodities {
		commodities = append(commodities, *copyCommodity(c))
	}
	sort.Slice(commodities, func(i, j int) bool {
		return commodities[i].CreatedAt.After(commodities[j].CreatedAt)
	})
	return commodities, nil
}

func (s *MemoryStore) RenameCommodity(_ context.Context, id, name, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commodities[id]
	if !ok {
		return fmt.Errorf("commodity %s: %w", id, ErrNotFound)
	}
	for _, other := range s.commodities {
		if other.ID != id && (other.Name == name || other.Slug == slug) {
			return fmt.Errorf("commodity %s: %w", name, ErrAlreadyExists)
		}
	}
	c.Name = name
	c.Slug = slug
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DecrementInventory(_ context.Context, commodityID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commodities[commodityID]
	if !ok {
		return fmt.Errorf("commodity %s: %w", commodityID, ErrNotFound)
	}
	// Same rule as the advisory check, re-applied under the write lock.
	if err := inventory.Check(c.AvailableQuantity, qty); err != nil {
		return err
	}
	c.AvailableQuantity -= qty
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AddInventory(_ context.Context, commodityID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commodities[commodityID]
	if !ok {
		return fmt.Errorf("commodity %s: %w", commodityID, ErrNotFound)
	}
	c.AvailableQuantity += qty
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Prices ---

func (s *MemoryStore) AddPrice(_ context.Context, p *model.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commodities[p.CommodityID]
	if !ok {
		return fmt.Errorf("commodity %s: %w", p.CommodityID, ErrNotFound)
	}
	c.Prices = append(c.Prices, *p)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Transactions ---

func (s *MemoryStore) InsertTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, *t)
	return nil
}

func (s *MemoryStore) SetTransactionStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		if s.transactions[i].ID != id {
			continue
		}
		// Terminal statuses stick; only PENDING may move.
		if s.transactions[i].Status != model.StatusPending {
			return nil
		}
		s.transactions[i].Status = status
		s.transactions[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) GetTransactionByReference(_ context.Context, userID, reference string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.transactions {
		t := s.transactions[i]
		if t.UserID == userID && t.Reference == reference {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("transaction reference %s: %w", reference, ErrNotFound)
}

func (s *MemoryStore) ListTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- { // newest first
		if s.transactions[i].UserID == userID {
			result = append(result, s.transactions[i])
		}
	}
	return result, nil
}

// --- Positions ---

func (s *MemoryStore) UpsertPosition(_ context.Context, userID, commodityName string, qtyDelta int64, amount decimal.Decimal, color string) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := posKey(userID, commodityName)

	p, ok := s.positions[key]
	if !ok {
		p = &model.Position{
			ID:            uuid.New().String(),
			UserID:        userID,
			CommodityName: commodityName,
			TotalQuantity: qtyDelta,
			Balance:       amount,
			Color:         color,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.positions[key] = p
	} else {
		p.TotalQuantity += qtyDelta
		p.Balance = p.Balance.Add(amount)
		p.UpdatedAt = now
	}

	copy := *p
	return &copy, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, commodityName string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey(userID, commodityName)]
	if !ok {
		return nil, fmt.Errorf("position %s/%s: %w", userID, commodityName, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CommodityName < result[j].CommodityName
	})
	return result, nil
}

// --- Notifications ---

func (s *MemoryStore) InsertNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *MemoryStore) InsertNotifications(_ context.Context, ns []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, ns...)
	return nil
}

func (s *MemoryStore) ListNotificationsByUser(_ context.Context, userID string) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- { // newest first
		if s.notifications[i].UserID == userID {
			result = append(result, s.notifications[i])
		}
	}
	return result, nil
}

func copyCommodity(c *model.Commodity) *model.Commodity {
	copy := *c
	copy.Prices = append([]model.Price(nil), c.Prices...)
	return &copy
}
