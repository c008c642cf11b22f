// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a uniqueness constraint is violated,
	// canonically a duplicate commodity name or slug.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Settlement relies on two atomic operations here rather than on caller-side
// read-then-write: DecrementInventory (conditional, closes the oversell race)
// and UpsertPosition (increment-or-create, closes the lost-update race).
type Store interface {
	// --- Users ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUserIDs returns every user ID, for broadcast notifications.
	ListUserIDs(ctx context.Context) ([]string, error)

	// --- Commodities ---

	// CreateCommodity persists a new commodity. Returns ErrAlreadyExists
	// when the name or slug is taken.
	CreateCommodity(ctx context.Context, c *model.Commodity) error

	// GetCommodityByName retrieves a commodity with its price history.
	GetCommodityByName(ctx context.Context, name string) (*model.Commodity, error)

	// GetCommodityBySlug retrieves a commodity with its price history.
	GetCommodityBySlug(ctx context.Context, slug string) (*model.Commodity, error)

	// ListCommodities returns all commodities with price history,
	// newest-created first.
	ListCommodities(ctx context.Context) ([]model.Commodity, error)

	// RenameCommodity changes a commodity's display name and its derived slug.
	RenameCommodity(ctx context.Context, id, name, slug string) error

	// DecrementInventory atomically subtracts qty from available stock,
	// failing with inventory.ErrInsufficient — and changing nothing — unless
	// at least qty units remain. The committed quantity is never negative.
	DecrementInventory(ctx context.Context, commodityID string, qty int64) error

	// AddInventory atomically adds qty units of stock (admin restock).
	AddInventory(ctx context.Context, commodityID string, qty int64) error

	// --- Prices (append-only) ---

	// AddPrice appends an immutable price record to a commodity's history.
	AddPrice(ctx context.Context, p *model.Price) error

	// --- Transactions (immutable ledger) ---

	// InsertTransaction appends a settlement record.
	InsertTransaction(ctx context.Context, t *model.Transaction) error

	// SetTransactionStatus moves a PENDING transaction to COMPLETED or
	// FAILED. Terminal statuses are never overwritten.
	SetTransactionStatus(ctx context.Context, id, status string) error

	// GetTransactionByReference finds a user's transaction by idempotency
	// key. Returns ErrNotFound when the key has not been seen.
	GetTransactionByReference(ctx context.Context, userID, reference string) (*model.Transaction, error)

	// ListTransactionsByUser returns a user's transactions newest-first.
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// --- Positions ---

	// UpsertPosition atomically applies a buy delta to the (user, commodity)
	// position, creating it with the given color on first encounter.
	// Negative deltas are used only for settlement compensation.
	UpsertPosition(ctx context.Context, userID, commodityName string, qtyDelta int64, amount decimal.Decimal, color string) (*model.Position, error)

	// GetPosition retrieves one position by (user, commodity).
	GetPosition(ctx context.Context, userID, commodityName string) (*model.Position, error)

	// ListPositionsByUser returns all of a user's positions.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// --- Notifications ---

	// InsertNotification appends a notification record.
	InsertNotification(ctx context.Context, n *model.Notification) error

	// InsertNotifications appends a batch, used for listing broadcasts.
	InsertNotifications(ctx context.Context, ns []model.Notification) error

	// ListNotificationsByUser returns a user's notifications newest-first.
	ListNotificationsByUser(ctx context.Context, userID string) ([]model.Notification, error)
}
