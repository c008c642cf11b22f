// Package catalog provides the HTTP handlers and business logic for listing
// and maintaining commodities: creation with slug derivation and an initial
// price record, lookups, and the admin-gated restock/price-append update.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/api"
	"github.com/commodex/trade-engine/internal/auth"
	"github.com/commodex/trade-engine/internal/metrics"
	"github.com/commodex/trade-engine/internal/model"
	"github.com/commodex/trade-engine/internal/settlement"
	"github.com/commodex/trade-engine/internal/slug"
	"github.com/commodex/trade-engine/internal/store"
)

// Service handles catalog operations.
type Service struct {
	store store.Store
	hub   *settlement.EventHub // optional, for listing broadcasts
}

// NewService creates a new catalog service.
func NewService(st store.Store, hub *settlement.EventHub) *Service {
	return &Service{store: st, hub: hub}
}

// --- Request types ---

// CreateCommodityRequest is the JSON body for POST /commodities.
type CreateCommodityRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Color       string          `json:"color"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"` // initial price record
}

// UpdateCommodityRequest is the JSON body for PUT /commodities.
// Name selects the commodity; at least one of Price or Quantity must be set.
// NewName optionally renames the commodity, regenerating its slug.
type UpdateCommodityRequest struct {
	Name     string           `json:"name"`
	NewName  string           `json:"newName,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`    // appended to history
	Quantity *int64           `json:"quantity,omitempty"` // added to stock
}

// --- HTTP Handlers ---

// CreateCommodity handles POST /api/v1/commodities.
func (s *Service) CreateCommodity(w http.ResponseWriter, r *http.Request) {
	var req CreateCommodityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, api.MsgInvalidBody)
		return
	}

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

	sg, err := slug.Make(req.Name)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// Friendly pre-check; the store's unique index is the real arbiter.
	if _, err := s.store.GetCommodityByName(ctx, req.Name); err == nil {
		api.Error(w, http.StatusConflict, api.MsgCommodityExists)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.serverError(w, "check existing commodity", err)
		return
	}

	now := time.Now().UTC()
	commodity := &model.Commodity{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Slug:              sg,
		Description:       req.Description,
		Unit:              req.Unit,
		Color:             req.Color,
		AvailableQuantity: req.Quantity,
		UserID:            user.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateCommodity(ctx, commodity); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			api.Error(w, http.StatusConflict, api.MsgCommodityExists)
			return
		}
		s.serverError(w, "create commodity", err)
		return
	}

	// Initial price record, tied to the new commodity.
	price := &model.Price{
		ID:          uuid.New().String(),
		CommodityID: commodity.ID,
		Value:       req.Price,
		CreatedAt:   now,
	}
	if err := s.store.AddPrice(ctx, price); err != nil {
		s.serverError(w, "record initial price", err)
		return
	}
	commodity.Prices = []model.Price{*price}

	// Tell every user about the new listing. Best effort.
	if err := s.notifyAll(ctx, "New Commodity",
		`A new commodity "`+commodity.Name+`" has been added`); err != nil {
		slog.Error("listing broadcast failed", "commodity", commodity.Name, "err", err)
	}

	metrics.CommoditiesListed.Inc()
	slog.Info("commodity listed",
		"id", commodity.ID,
		"name", commodity.Name,
		"slug", commodity.Slug,
		"quantity", commodity.AvailableQuantity,
	)

	if s.hub != nil {
		s.hub.Broadcast(settlement.Event{
			Type:      "commodity_listed",
			Commodity: commodity.Name,
			Slug:      commodity.Slug,
			Unit:      commodity.Unit,
			Price:     req.Price.String(),
		})
	}

	api.OK(w, http.StatusCreated, api.MsgCommodityCreated, commodity)
}

// ListCommodities handles GET /api/v1/commodities.
// Returns all commodities with price history, newest-created first.
func (s *Service) ListCommodities(w http.ResponseWriter, r *http.Request) {
	commodities, err := s.store.ListCommodities(r.Context())
	if err != nil {
		s.serverError(w, "list commodities", err)
		return
	}
	if commodities == nil {
		commodities = []model.Commodity{}
	}
	api.OK(w, http.StatusOK, api.MsgFetched, commodities)
}

// GetCommodityBySlug handles GET /api/v1/commodities/{slug}.
func (s *Service) GetCommodityBySlug(w http.ResponseWriter, r *http.Request) {
	commodity, err := s.store.GetCommodityBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, api.MsgNoCommodity)
			return
		}
		s.serverError(w, "get commodity by slug", err)
		return
	}
	api.OK(w, http.StatusOK, api.MsgFetched, commodity)
}

// GetCommodityByName handles GET /api/v1/commodities/name/{name}.
func (s *Service) GetCommodityByName(w http.ResponseWriter, r *http.Request) {
	commodity, err := s.store.GetCommodityByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, api.MsgNoCommodity)
			return
		}
		s.serverError(w, "get commodity by name", err)
		return
	}
	api.OK(w, http.StatusOK, api.MsgFetched, commodity)
}

// UpdateCommodity handles PUT /api/v1/commodities. ADMIN only.
// Quantity is added to stock (a zero-stock commodity is simply set), a price
// is appended to the history, and NewName renames with a fresh slug.
func (s *Service) UpdateCommodity(w http.ResponseWriter, r *http.Request) {
	var req UpdateCommodityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, api.MsgInvalidBody)
		return
	}
	if req.Price == nil && req.Quantity == nil && req.NewName == "" {
		api.Error(w, http.StatusBadRequest, api.MsgNothingToUpdate)
		return
	}

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
	if user.Role != model.RoleAdmin {
		slog.Error("catalog update refused", "user", user.ID, "role", user.Role)
		api.Error(w, http.StatusUnauthorized, api.MsgUnauthorized)
		return
	}

	commodity, err := s.store.GetCommodityByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, api.MsgNoCommodity)
			return
		}
		s.serverError(w, "get commodity", err)
		return
	}

	if req.Quantity != nil {
		if err := s.store.AddInventory(ctx, commodity.ID, *req.Quantity); err != nil {
			s.serverError(w, "restock", err)
			return
		}
	}

	if req.Price != nil {
		price := &model.Price{
			ID:          uuid.New().String(),
			CommodityID: commodity.ID,
			Value:       *req.Price,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.store.AddPrice(ctx, price); err != nil {
			s.serverError(w, "append price", err)
			return
		}
	}

	lookupName := commodity.Name
	if req.NewName != "" && req.NewName != commodity.Name {
		newSlug, err := slug.Make(req.NewName)
		if err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.store.RenameCommodity(ctx, commodity.ID, req.NewName, newSlug); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				api.Error(w, http.StatusConflict, api.MsgCommodityExists)
				return
			}
			s.serverError(w, "rename commodity", err)
			return
		}
		lookupName = req.NewName
	}

	updated, err := s.store.GetCommodityByName(ctx, lookupName)
	if err != nil {
		s.serverError(w, "reload commodity", err)
		return
	}

	slog.Info("commodity updated", "id", updated.ID, "name", updated.Name, "by", user.ID)

	if s.hub != nil {
		s.hub.Broadcast(settlement.Event{
			Type:      "commodity_updated",
			Commodity: updated.Name,
			Slug:      updated.Slug,
			Unit:      updated.Unit,
		})
	}

	api.OK(w, http.StatusOK, api.MsgCommodityUpdated, updated)
}

// --- helpers ---

// notifyAll writes one notification per registered user.
func (s *Service) notifyAll(ctx context.Context, title, body string) error {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	notifications := make([]model.Notification, 0, len(ids))
	for _, id := range ids {
		notifications = append(notifications, model.Notification{
			ID:        uuid.New().String(),
			UserID:    id,
			Title:     title,
			Body:      body,
			CreatedAt: now,
		})
	}
	return s.store.InsertNotifications(ctx, notifications)
}

func (s *Service) serverError(w http.ResponseWriter, step string, err error) {
	slog.Error("catalog error", "step", step, "err", err)
	api.Error(w, http.StatusInternalServerError, api.MsgServerError)
}
