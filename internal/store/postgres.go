package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/inventory"
	"github.com/commodex/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Expected schema: users, commodities (UNIQUE name, UNIQUE slug), prices,
// transactions, positions (UNIQUE (user_id, commodity_name)), notifications.
// The unique indexes are what make ErrAlreadyExists authoritative; the
// service-level existence checks are only a friendlier first line.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// uniqueViolation reports whether err is a PostgreSQL unique-constraint error.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, role, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.Role, u.CreatedAt,
	)
	if uniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Commodities ---

func (s *PostgresStore) CreateCommodity(ctx context.Context, c *model.Commodity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO commodities (id, name, slug, description, unit, color, available_quantity, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, c.Slug, c.Description, c.Unit, c.Color,
		c.AvailableQuantity, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if uniqueViolation(err) {
		return fmt.Errorf("commodity %s: %w", c.Name, ErrAlreadyExists)
	}
	return err
}

const commodityColumns = `id, name, slug, description, unit, color, available_quantity, user_id, created_at, updated_at`

func (s *PostgresStore) getCommodity(ctx context.Context, where string, arg any) (*model.Commodity, error) {
	var c model.Commodity
	err := s.pool.QueryRow(ctx,
		`SELECT `+commodityColumns+` FROM commodities WHERE `+where+` = $1`, arg).
		Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Unit, &c.Color,
			&c.AvailableQuantity, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("commodity %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get commodity %v: %w", arg, err)
	}

	prices, err := s.listPrices(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Prices = prices
	return &c, nil
}

func (s *PostgresStore) GetCommodityByName(ctx context.Context, name string) (*model.Commodity, error) {
	return s.getCommodity(ctx, "name", name)
}

func (s *PostgresStore) GetCommodityBySlug(ctx context.Context, slug string) (*model.Commodity, error) {
	return s.getCommodity(ctx, "slug", slug)
}

func (s *PostgresStore) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commodityColumns+` FROM commodities ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commodities []model.Commodity
	byID := make(map[string]int)
	for rows.Next() {
		var c model.Commodity
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Unit, &c.Color,
			&c.AvailableQuantity, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		byID[c.ID] = len(commodities)
		commodities = append(commodities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach price history in one pass.
	priceRows, err := s.pool.Query(ctx,
		`SELECT id, commodity_id, value::TEXT, created_at FROM prices ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer priceRows.Close()

	for priceRows.Next() {
		var p model.Price
		var valueS string
		if err := priceRows.Scan(&p.ID, &p.CommodityID, &valueS, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Value, _ = decimal.NewFromString(valueS)
		if i, ok := byID[p.CommodityID]; ok {
			commodities[i].Prices = append(commodities[i].Prices, p)
		}
	}
	return commodities, priceRows.Err()
}

func (s *PostgresStore) RenameCommodity(ctx context.Context, id, name, slug string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE commodities SET name = $2, slug = $3, updated_at = now() WHERE id = $1`,
		id, name, slug,
	)
	if uniqueViolation(err) {
		return fmt.Errorf("commodity %s: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commodity %s: %w", id, ErrNotFound)
	}
	return nil
}

// DecrementInventory is the authoritative oversell gate: the WHERE clause
// makes check-and-subtract one atomic statement, so concurrent settlements
// cannot both take the last units.
func (s *PostgresStore) DecrementInventory(ctx context.Context, commodityID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: got %d", inventory.ErrNonPositiveQuantity, qty)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE commodities
		 SET available_quantity = available_quantity - $2, updated_at = now()
		 WHERE id = $1 AND available_quantity >= $2`,
		commodityID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement inventory %s: %w", commodityID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is missing or stock is short; tell them apart.
		var available int64
		err := s.pool.QueryRow(ctx,
			`SELECT available_quantity FROM commodities WHERE id = $1`, commodityID).
			Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("commodity %s: %w", commodityID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("decrement inventory %s: %w", commodityID, err)
		}
		return fmt.Errorf("%w: have %d, want %d", inventory.ErrInsufficient, available, qty)
	}
	return nil
}

func (s *PostgresStore) AddInventory(ctx context.Context, commodityID string, qty int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE commodities
		 SET available_quantity = available_quantity + $2, updated_at = now()
		 WHERE id = $1`,
		commodityID, qty,
	)
	if err != nil {
		return fmt.Errorf("add inventory %s: %w", commodityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commodity %s: %w", commodityID, ErrNotFound)
	}
	return nil
}

// --- Prices ---

func (s *PostgresStore) AddPrice(ctx context.Context, p *model.Price) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prices (id, commodity_id, value, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		p.ID, p.CommodityID, p.Value.String(), p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) listPrices(ctx context.Context, commodityID string) ([]model.Price, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, commodity_id, value::TEXT, created_at
		 FROM prices WHERE commodity_id = $1 ORDER BY created_at`, commodityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []model.Price
	for rows.Next() {
		var p model.Price
		var valueS string
		if err := rows.Scan(&p.ID, &p.CommodityID, &valueS, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Value, _ = decimal.NewFromString(valueS)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// --- Transactions ---

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, commodity_name, unit, quantity, price, type, status, reference, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, NULLIF($9, ''), $10, $11)`,
		t.ID, t.UserID, t.CommodityName, t.Unit, t.Quantity,
		t.Price.String(), t.Type, t.Status, t.Reference, t.CreatedAt, t.UpdatedAt,
	)
	if uniqueViolation(err) {
		return fmt.Errorf("transaction reference %s: %w", t.Reference, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) SetTransactionStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, status, model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("set transaction status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).
			Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		// Already terminal; leave it alone.
	}
	return nil
}

const transactionColumns = `id, user_id, commodity_name, unit, quantity, price::TEXT, type, status, COALESCE(reference, ''), created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var priceS string
	if err := row.Scan(&t.ID, &t.UserID, &t.CommodityName, &t.Unit, &t.Quantity,
		&priceS, &t.Type, &t.Status, &t.Reference, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Price, _ = decimal.NewFromString(priceS)
	return &t, nil
}

func (s *PostgresStore) GetTransactionByReference(ctx context.Context, userID, reference string) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE user_id = $1 AND reference = $2`, userID, reference)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction reference %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// --- Positions ---

// UpsertPosition relies on the UNIQUE (user_id, commodity_name) index:
// INSERT ... ON CONFLICT DO UPDATE makes increment-or-create one atomic
// statement, so concurrent buys of the same pair cannot lose an update.
func (s *PostgresStore) UpsertPosition(ctx context.Context, userID, commodityName string, qtyDelta int64, amount decimal.Decimal, color string) (*model.Position, error) {
	var p model.Position
	var balanceS string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO positions (id, user_id, commodity_name, total_quantity, balance, color, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, now(), now())
		 ON CONFLICT (user_id, commodity_name) DO UPDATE
		 SET total_quantity = positions.total_quantity + EXCLUDED.total_quantity,
		     balance = positions.balance + EXCLUDED.balance,
		     updated_at = now()
		 RETURNING id, user_id, commodity_name, total_quantity, balance::TEXT, color, created_at, updated_at`,
		uuid.NewString(), userID, commodityName, qtyDelta, amount.String(), color,
	).Scan(&p.ID, &p.UserID, &p.CommodityName, &p.TotalQuantity, &balanceS,
		&p.Color, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert position %s/%s: %w", userID, commodityName, err)
	}
	p.Balance, _ = decimal.NewFromString(balanceS)
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, commodityName string) (*model.Position, error) {
	var p model.Position
	var balanceS string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, commodity_name, total_quantity, balance::TEXT, color, created_at, updated_at
		 FROM positions WHERE user_id = $1 AND commodity_name = $2`, userID, commodityName).
		Scan(&p.ID, &p.UserID, &p.CommodityName, &p.TotalQuantity, &balanceS,
			&p.Color, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %s/%s: %w", userID, commodityName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	p.Balance, _ = decimal.NewFromString(balanceS)
	return &p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, commodity_name, total_quantity, balance::TEXT, color, created_at, updated_at
		 FROM positions WHERE user_id = $1 ORDER BY commodity_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var balanceS string
		if err := rows.Scan(&p.ID, &p.UserID, &p.CommodityName, &p.TotalQuantity, &balanceS,
			&p.Color, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Balance, _ = decimal.NewFromString(balanceS)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Notifications ---

func (s *PostgresStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.Title, n.Body, n.CreatedAt,
	)
	return err
}

func (s *PostgresStore) InsertNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range ns {
		batch.Queue(
			`INSERT INTO notifications (id, user_id, title, body, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			n.ID, n.UserID, n.Title, n.Body, n.CreatedAt,
		)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) ListNotificationsByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, body, created_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
