// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Quantities are whole units and stay int64 end to end.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TxBought   = "BOUGHT"
	TxSold     = "SOLD"
	TxSwap     = "SWAP"
	TxSent     = "SENT"
	TxReceived = "RECEIVED"
)

// Transaction statuses. A transaction is created PENDING and moves to
// COMPLETED or FAILED exactly once; no other field ever changes.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// User roles.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User is the slice of the account record the engine needs: identity for
// settlement, role for catalog mutation. Credentials live elsewhere.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Role      string    `json:"role" db:"role"` // "ADMIN" or "USER"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Commodity is a tradable good listed in the catalog.
// AvailableQuantity is mutated only by settlement decrements and admin
// restocks, and is never negative in any committed state.
type Commodity struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"` // unique
	Slug              string    `json:"slug" db:"slug"` // unique, derived from Name
	Description       string    `json:"description" db:"description"`
	Unit              string    `json:"unit" db:"unit"`
	Color             string    `json:"color" db:"color"`
	AvailableQuantity int64     `json:"available_quantity" db:"available_quantity"`
	UserID            string    `json:"user_id" db:"user_id"` // listing owner
	Prices            []Price   `json:"prices"`               // append-only history, oldest first
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Price is an immutable point in a commodity's price history.
// Never updated or deleted once written.
type Price struct {
	ID          string          `json:"id" db:"id"`
	CommodityID string          `json:"commodity_id" db:"commodity_id"`
	Value       decimal.Decimal `json:"value" db:"value"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Position is a user's cumulative holding in one commodity: one row per
// (user, commodity) pair. Balance accumulates the raw price paid per trade.
type Position struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	CommodityName string          `json:"commodity_name" db:"commodity_name"`
	TotalQuantity int64           `json:"total_quantity" db:"total_quantity"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Color         string          `json:"color" db:"color"` // display hue, set on first buy
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable record of one settlement attempt.
// Reference is an optional client-supplied idempotency key; replays carrying
// the same (user, reference) pair return the original record.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	CommodityName string          `json:"commodity_name" db:"commodity_name"`
	Unit          string          `json:"unit" db:"unit"`
	Quantity      int64           `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Type          string          `json:"type" db:"type"`
	Status        string          `json:"status" db:"status"`
	Reference     string          `json:"reference,omitempty" db:"reference"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Notification is a fire-and-forget record of an event relevant to a user.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Portfolio bundles a user's positions with portfolio-wide totals.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	Positions     []Position      `json:"positions"`
	TotalBalance  decimal.Decimal `json:"total_balance"`  // Σ position.Balance
	TotalQuantity int64           `json:"total_quantity"` // Σ position.TotalQuantity
}
