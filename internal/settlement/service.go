// Package settlement implements the transaction settlement engine: the
// pipeline that turns an accepted buy request into an immutable transaction
// record, an updated portfolio position, and a decremented inventory, plus a
// fire-and-forget notification.
//
// Step order is fixed: user verified → commodity verified → inventory
// pre-checked → transaction recorded PENDING → position updated → inventory
// applied → notified → COMPLETED. Each step commits independently; there is
// no cross-entity transaction. The transaction's status — never its mere
// existence — says whether a trade took effect.
//
// The two races inherent in that sequence are closed at the store layer:
// the inventory pre-check is only a user-facing hint, while the store's
// conditional decrement is the authoritative oversell gate, and the position
// write is an atomic increment-or-create. When the decrement loses the race
// after the position was already written, the engine compensates the position
// delta and marks the transaction FAILED.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/api"
	"github.com/commodex/trade-engine/internal/auth"
	"github.com/commodex/trade-engine/internal/inventory"
	"github.com/commodex/trade-engine/internal/metrics"
	"github.com/commodex/trade-engine/internal/model"
	"github.com/commodex/trade-engine/internal/slug"
	"github.com/commodex/trade-engine/internal/store"
)

// Service handles settlement operations and the read endpoints that hang off
// them (transaction history, portfolio, notifications).
type Service struct {
	store store.Store
	hub   *EventHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new settlement service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *EventHub) *Service {
	return &Service{store: st, hub: hub}
}

// --- Request/Response types ---

// CreateTransactionRequest is the JSON body for POST /transactions.
// The upstream validator guarantees quantity and price are positive and the
// strings are non-empty and within length bounds; the engine re-checks only
// business state.
type CreateTransactionRequest struct {
	CommodityName string          `json:"commodityName"`
	Unit          string          `json:"unit"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Reference     string          `json:"reference,omitempty"` // optional idempotency key
}

// SettlementResult is the data payload returned from a successful settlement.
type SettlementResult struct {
	Transaction *model.Transaction `json:"transaction"`
	Portfolio   *model.Position    `json:"portfolio"`
}

// --- HTTP Handlers ---

// CreateTransaction handles POST /api/v1/transactions.
// Runs the full settlement pipeline and returns 201 with the transaction and
// the resulting position.
func (s *Service) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, api.MsgInvalidBody)
		return
	}

	ctx := r.Context()

	// Step 1: resolve the authenticated identity to a user record.
	user, err := s.store.GetUser(ctx, auth.UserID(ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Error("settlement rejected", "reason", api.MsgNoUser)
			metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
			api.Error(w, http.StatusBadRequest, api.MsgNoUser)
			return
		}
		s.serverError(w, "resolve user", err)
		return
	}

	// Idempotent replay: a reference we have seen settles to the original
	// transaction without touching inventory or positions again.
	if req.Reference != "" {
		if prior, err := s.store.GetTransactionByReference(ctx, user.ID, req.Reference); err == nil {
			s.respondReplay(ctx, w, prior)
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			s.serverError(w, "lookup reference", err)
			return
		}
	}

	// Step 2: resolve the commodity by name.
	commodity, err := s.store.GetCommodityByName(ctx, req.CommodityName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Error("settlement rejected", "reason", api.MsgNoCommodity, "commodity", req.CommodityName)
			metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
			api.Error(w, http.StatusBadRequest, api.MsgNoCommodity)
			return
		}
		s.serverError(w, "resolve commodity", err)
		return
	}

	// Step 3: advisory availability check. Rejects hopeless requests before
	// anything is written; the conditional decrement below is the real gate.
	if err := inventory.Check(commodity.AvailableQuantity, req.Quantity); err != nil {
		slog.Error("settlement rejected", "reason", api.MsgInsufficientStock,
			"commodity", commodity.Name, "available", commodity.AvailableQuantity, "requested", req.Quantity)
		metrics.InventoryRejections.Inc()
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
		api.Error(w, http.StatusBadRequest, api.MsgInsufficientStock)
		return
	}

	// Step 4: record the transaction, PENDING until inventory is applied.
	now := time.Now().UTC()
	tx := &model.Transaction{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		CommodityName: commodity.Name,
		Unit:          req.Unit,
		Quantity:      req.Quantity,
		Price:         req.Price,
		Type:          model.TxBought,
		Status:        model.StatusPending,
		Reference:     req.Reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		// A replay raced us between the reference lookup and the insert.
		if req.Reference != "" && errors.Is(err, store.ErrAlreadyExists) {
			if prior, lookupErr := s.store.GetTransactionByReference(ctx, user.ID, req.Reference); lookupErr == nil {
				s.respondReplay(ctx, w, prior)
				return
			}
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		s.serverError(w, "record transaction", err)
		return
	}

	// Step 5: apply the buy delta to the position. Balance accumulates the
	// raw per-trade price, not price × quantity.
	position, err := s.store.UpsertPosition(ctx, user.ID, commodity.Name, req.Quantity, req.Price, slug.RandomColor())
	if err != nil {
		s.failTransaction(ctx, tx.ID, "update position", err)
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		s.serverError(w, "update position", err)
		return
	}

	// Step 6: apply the decrement. This is where a concurrent buyer may have
	// beaten us; if so, undo the position delta and fail the transaction.
	if err := s.store.DecrementInventory(ctx, commodity.ID, req.Quantity); err != nil {
		if _, compErr := s.store.UpsertPosition(ctx, user.ID, commodity.Name, -req.Quantity, req.Price.Neg(), ""); compErr != nil {
			slog.Error("position compensation failed", "transaction", tx.ID, "err", compErr)
		}
		s.failTransaction(ctx, tx.ID, "apply inventory", err)

		if errors.Is(err, inventory.ErrInsufficient) {
			metrics.InventoryRejections.Inc()
			metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
			api.Error(w, http.StatusBadRequest, api.MsgInsufficientStock)
			return
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		s.serverError(w, "apply inventory", err)
		return
	}

	// Step 7: notification, fire-and-forget. A failure here never reverts
	// the settled trade.
	notification := &model.Notification{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Title:     "Transaction successful",
		Body:      fmt.Sprintf("You have successfully bought %d %s of %s", req.Quantity, req.Unit, commodity.Name),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		slog.Error("notification write failed", "transaction", tx.ID, "err", err)
	}

	// Step 8: settle. The trade took effect once the decrement committed, so
	// a failed status flip is logged and left PENDING rather than unwound.
	if err := s.store.SetTransactionStatus(ctx, tx.ID, model.StatusCompleted); err != nil {
		slog.Error("status update failed, transaction left PENDING", "transaction", tx.ID, "err", err)
	} else {
		tx.Status = model.StatusCompleted
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.TradedVolume.WithLabelValues(commodity.Name).Add(float64(req.Quantity))

	slog.Info("trade settled",
		"transaction", tx.ID,
		"user", user.ID,
		"commodity", commodity.Name,
		"quantity", req.Quantity,
		"price", req.Price.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:      "trade_settled",
			Commodity: commodity.Name,
			Slug:      commodity.Slug,
			Quantity:  req.Quantity,
			Unit:      req.Unit,
			Price:     req.Price.String(),
		})
	}

	api.OK(w, http.StatusCreated, api.MsgTransactionCreated, SettlementResult{
		Transaction: tx,
		Portfolio:   position,
	})
}

// ListTransactions handles GET /api/v1/transactions.
// Returns the caller's transactions newest-first.
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, auth.UserID(ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusBadRequest, api.MsgNoUser)
			return
		}
		s.serverError(w, "resolve user", err)
		return
	}

	transactions, err := s.store.ListTransactionsByUser(ctx, user.ID)
	if err != nil {
		s.serverError(w, "list transactions", err)
		return
	}
	if transactions == nil {
		transactions = []model.Transaction{}
	}
	api.OK(w, http.StatusOK, api.MsgFetched, transactions)
}

// GetPortfolio handles GET /api/v1/portfolio.
// Returns the caller's positions with portfolio-wide totals.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, auth.UserID(ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusBadRequest, api.MsgNoUser)
			return
		}
		s.serverError(w, "resolve user", err)
		return
	}

	positions, err := s.store.ListPositionsByUser(ctx, user.ID)
	if err != nil {
		s.serverError(w, "list positions", err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	portfolio := model.Portfolio{
		UserID:    user.ID,
		Positions: positions,
	}
	for _, p := range positions {
		portfolio.TotalBalance = portfolio.TotalBalance.Add(p.Balance)
		portfolio.TotalQuantity += p.TotalQuantity
	}

	api.OK(w, http.StatusOK, api.MsgFetched, portfolio)
}

// ListNotifications handles GET /api/v1/notifications.
func (s *Service) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, auth.UserID(ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusBadRequest, api.MsgNoUser)
			return
		}
		s.serverError(w, "resolve user", err)
		return
	}

	notifications, err := s.store.ListNotificationsByUser(ctx, user.ID)
	if err != nil {
		s.serverError(w, "list notifications", err)
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	api.OK(w, http.StatusOK, api.MsgFetched, notifications)
}

// --- helpers ---

// respondReplay answers an idempotent replay with the original settlement.
func (s *Service) respondReplay(ctx context.Context, w http.ResponseWriter, prior *model.Transaction) {
	position, err := s.store.GetPosition(ctx, prior.UserID, prior.CommodityName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.serverError(w, "load position for replay", err)
		return
	}
	slog.Info("settlement replayed", "transaction", prior.ID, "reference", prior.Reference)
	metrics.SettlementsTotal.WithLabelValues("replayed").Inc()
	api.OK(w, http.StatusOK, api.MsgTransactionCreated, SettlementResult{
		Transaction: prior,
		Portfolio:   position,
	})
}

// failTransaction best-effort marks a transaction FAILED after a pipeline
// error. The record stays in the ledger; only its status says it never took.
func (s *Service) failTransaction(ctx context.Context, id, step string, cause error) {
	slog.Error("settlement step failed", "transaction", id, "step", step, "err", cause)
	if err := s.store.SetTransactionStatus(ctx, id, model.StatusFailed); err != nil {
		slog.Error("failed to mark transaction FAILED", "transaction", id, "err", err)
	}
}

func (s *Service) serverError(w http.ResponseWriter, step string, err error) {
	slog.Error("settlement error", "step", step, "err", err)
	api.Error(w, http.StatusInternalServerError, api.MsgServerError)
}
