package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commodex/trade-engine/internal/api"
	"github.com/commodex/trade-engine/internal/auth"
	"github.com/commodex/trade-engine/internal/catalog"
	"github.com/commodex/trade-engine/internal/model"
	"github.com/commodex/trade-engine/internal/store"
)

func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := catalog.NewService(ms, nil)

	r := chi.NewRouter()
	r.Use(auth.Middleware)
	r.Get("/api/v1/commodities", svc.ListCommodities)
	r.Post("/api/v1/commodities", svc.CreateCommodity)
	r.Put("/api/v1/commodities", svc.UpdateCommodity)
	r.Get("/api/v1/commodities/{slug}", svc.GetCommodityBySlug)
	r.Get("/api/v1/commodities/name/{name}", svc.GetCommodityByName)

	return ms, r
}

func seedUser(t *testing.T, ms *store.MemoryStore, id, role string) {
	t.Helper()
	require.NoError(t, ms.CreateUser(context.Background(), &model.User{
		ID:        id,
		Username:  id,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}))
}

func do(t *testing.T, router chi.Router, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeCommodity(t *testing.T, w *httptest.ResponseRecorder) model.Commodity {
	t.Helper()
	var envelope struct {
		Data model.Commodity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestCreateCommodity(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "lister", model.RoleUser)
	seedUser(t, ms, "other", model.RoleUser)

	w := do(t, router, "POST", "/api/v1/commodities", "lister", catalog.CreateCommodityRequest{
		Name:     "Crude Oil (WTI)",
		Unit:     "barrel",
		Quantity: 500,
		Price:    decimal.NewFromInt(82),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeCommodity(t, w)
	assert.Equal(t, "crude-oil-wti", created.Slug)
	assert.Equal(t, int64(500), created.AvailableQuantity)
	require.Len(t, created.Prices, 1)
	assert.True(t, created.Prices[0].Value.Equal(decimal.NewFromInt(82)))
	assert.Equal(t, created.ID, created.Prices[0].CommodityID)

	// Every user hears about the new listing.
	for _, userID := range []string{"lister", "other"} {
		notifications, err := ms.ListNotificationsByUser(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.Equal(t, "New Commodity", notifications[0].Title)
		assert.Contains(t, notifications[0].Body, "Crude Oil (WTI)")
	}
}

func TestCreateCommodity_DuplicateName(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "lister", model.RoleUser)

	first := do(t, router, "POST", "/api/v1/commodities", "lister", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(t, router, "POST", "/api/v1/commodities", "lister", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 99, Price: decimal.NewFromInt(7),
	})
	assert.Equal(t, http.StatusConflict, second.Code)

	var envelope api.Response
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &envelope))
	assert.Equal(t, api.MsgCommodityExists, envelope.Message)

	// The first commodity is unchanged by the failed duplicate.
	c, err := ms.GetCommodityByName(context.Background(), "Beans")
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.AvailableQuantity)
	assert.Len(t, c.Prices, 1)
}

func TestCreateCommodity_NoUser(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/commodities", "ghost", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCommodities_NewestFirst(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "lister", model.RoleUser)

	base := time.Now().UTC()
	for i, name := range []string{"Beans", "Cocoa", "Wheat"} {
		require.NoError(t, ms.CreateCommodity(context.Background(), &model.Commodity{
			ID:        name,
			Name:      name,
			Slug:      name,
			Unit:      "kg",
			UserID:    "lister",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	w := do(t, router, "GET", "/api/v1/commodities", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []model.Commodity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 3)
	assert.Equal(t, "Wheat", envelope.Data[0].Name)
	assert.Equal(t, "Beans", envelope.Data[2].Name)
}

func TestGetCommodityBySlug(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "lister", model.RoleUser)

	created := do(t, router, "POST", "/api/v1/commodities", "lister", catalog.CreateCommodityRequest{
		Name: "Palm Oil", Unit: "l", Quantity: 50, Price: decimal.NewFromInt(3),
	})
	require.Equal(t, http.StatusCreated, created.Code)

	w := do(t, router, "GET", "/api/v1/commodities/palm-oil", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Palm Oil", decodeCommodity(t, w).Name)

	missing := do(t, router, "GET", "/api/v1/commodities/no-such-thing", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestGetCommodityByName(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "lister", model.RoleUser)

	do(t, router, "POST", "/api/v1/commodities", "lister", catalog.CreateCommodityRequest{
		Name: "Gold", Unit: "oz", Quantity: 5, Price: decimal.NewFromInt(1900),
	})

	w := do(t, router, "GET", "/api/v1/commodities/name/Gold", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gold", decodeCommodity(t, w).Slug)

	missing := do(t, router, "GET", "/api/v1/commodities/name/Silver", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestUpdateCommodity_RoleGate(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "admin", model.RoleAdmin)
	seedUser(t, ms, "pleb", model.RoleUser)

	do(t, router, "POST", "/api/v1/commodities", "admin", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})

	qty := int64(5)
	w := do(t, router, "PUT", "/api/v1/commodities", "pleb", catalog.UpdateCommodityRequest{
		Name: "Beans", Quantity: &qty,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, err := ms.GetCommodityByName(context.Background(), "Beans")
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.AvailableQuantity, "refused update must not restock")
}

func TestUpdateCommodity_RestockAndPrice(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "admin", model.RoleAdmin)

	do(t, router, "POST", "/api/v1/commodities", "admin", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})

	qty := int64(15)
	price := decimal.NewFromInt(6)
	w := do(t, router, "PUT", "/api/v1/commodities", "admin", catalog.UpdateCommodityRequest{
		Name: "Beans", Quantity: &qty, Price: &price,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := decodeCommodity(t, w)
	assert.Equal(t, int64(25), updated.AvailableQuantity)
	require.Len(t, updated.Prices, 2)
	assert.True(t, updated.Prices[1].Value.Equal(price), "new price appended to history")
	assert.True(t, updated.Prices[0].Value.Equal(decimal.NewFromInt(5)), "original price untouched")
}

func TestUpdateCommodity_SetWhenZero(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "admin", model.RoleAdmin)

	do(t, router, "POST", "/api/v1/commodities", "admin", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 0, Price: decimal.NewFromInt(5),
	})

	qty := int64(40)
	w := do(t, router, "PUT", "/api/v1/commodities", "admin", catalog.UpdateCommodityRequest{
		Name: "Beans", Quantity: &qty,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(40), decodeCommodity(t, w).AvailableQuantity)
}

func TestUpdateCommodity_NothingToUpdate(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "admin", model.RoleAdmin)

	do(t, router, "POST", "/api/v1/commodities", "admin", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})

	w := do(t, router, "PUT", "/api/v1/commodities", "admin", catalog.UpdateCommodityRequest{
		Name: "Beans",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var envelope api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, api.MsgNothingToUpdate, envelope.Message)
}

func TestUpdateCommodity_RenameRegeneratesSlug(t *testing.T) {
	ms, router := newTestEnv(t)
	seedUser(t, ms, "admin", model.RoleAdmin)

	do(t, router, "POST", "/api/v1/commodities", "admin", catalog.CreateCommodityRequest{
		Name: "Beans", Unit: "kg", Quantity: 10, Price: decimal.NewFromInt(5),
	})

	w := do(t, router, "PUT", "/api/v1/commodities", "admin", catalog.UpdateCommodityRequest{
		Name: "Beans", NewName: "Black Beans",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := decodeCommodity(t, w)
	assert.Equal(t, "Black Beans", updated.Name)
	assert.Equal(t, "black-beans", updated.Slug)

	// Old name no longer resolves.
	_, err := ms.GetCommodityByName(context.Background(), "Beans")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
