package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppoint "github.com/loyalty/backend/internal/application/point"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/loyalty/backend/internal/infrastructure/cache"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memoryAccumulationRepo is an in-memory point.AccumulationRepository for handler tests
type memoryAccumulationRepo struct {
	mu   sync.Mutex
	lots map[string]*point.Accumulation
}

func newMemoryAccumulationRepo() *memoryAccumulationRepo {
	return &memoryAccumulationRepo{lots: make(map[string]*point.Accumulation)}
}

func (r *memoryAccumulationRepo) Save(_ context.Context, lot *point.Accumulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *lot
	r.lots[lot.Key.String()] = &copied
	return nil
}

func (r *memoryAccumulationRepo) SaveWithLock(_ context.Context, lot *point.Accumulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.lots[lot.Key.String()]
	if !ok || stored.Version != lot.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	copied := *lot
	r.lots[lot.Key.String()] = &copied
	return nil
}

func (r *memoryAccumulationRepo) FindByKey(_ context.Context, key valueobject.PointKey) (*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.lots[key.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *lot
	return &copied, nil
}

func (r *memoryAccumulationRepo) FindByMember(_ context.Context, memberID uuid.UUID) ([]*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lots []*point.Accumulation
	for _, lot := range r.lots {
		if lot.MemberID == memberID {
			copied := *lot
			lots = append(lots, &copied)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].CreatedAt.Before(lots[j].CreatedAt) })
	return lots, nil
}

func (r *memoryAccumulationRepo) FindByMemberPaged(ctx context.Context, memberID uuid.UUID, filter shared.Filter) ([]*point.Accumulation, int64, error) {
	lots, err := r.FindByMember(ctx, memberID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(lots))
	offset := filter.Offset()
	if offset > len(lots) {
		offset = len(lots)
	}
	end := offset + filter.Limit()
	if end > len(lots) {
		end = len(lots)
	}
	return lots[offset:end], total, nil
}

func (r *memoryAccumulationRepo) FindAvailableForUpdate(ctx context.Context, memberID uuid.UUID, now time.Time) ([]*point.Accumulation, error) {
	lots, err := r.FindByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	var available []*point.Accumulation
	for _, lot := range lots {
		if lot.IsAvailable(now) {
			available = append(available, lot)
		}
	}
	return available, nil
}

func (r *memoryAccumulationRepo) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*point.Accumulation
	for _, lot := range r.lots {
		if lot.IsExpired(asOf) && !lot.IsCancelled() && lot.Remaining.IsPositive() {
			copied := *lot
			expired = append(expired, &copied)
		}
	}
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// memoryUsageRepo is an in-memory point.UsageRepository for handler tests
type memoryUsageRepo struct {
	mu     sync.Mutex
	usages map[string]*point.Usage
}

func newMemoryUsageRepo() *memoryUsageRepo {
	return &memoryUsageRepo{usages: make(map[string]*point.Usage)}
}

func (r *memoryUsageRepo) Save(_ context.Context, usage *point.Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *usage
	r.usages[usage.Key.String()] = &copied
	return nil
}

func (r *memoryUsageRepo) FindByKey(_ context.Context, key valueobject.PointKey) (*point.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	usage, ok := r.usages[key.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *usage
	return &copied, nil
}

func (r *memoryUsageRepo) FindByMember(_ context.Context, memberID uuid.UUID) ([]*point.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var usages []*point.Usage
	for _, usage := range r.usages {
		if usage.MemberID == memberID {
			copied := *usage
			usages = append(usages, &copied)
		}
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].CreatedAt.Before(usages[j].CreatedAt) })
	return usages, nil
}

// newTestServer wires the handler over an in-memory service stack
func newTestServer(t *testing.T) (*gin.Engine, *memoryAccumulationRepo) {
	t.Helper()

	lots := newMemoryAccumulationRepo()
	usages := newMemoryUsageRepo()
	scope := apppoint.NewNoOpTransactionScope(lots, usages)
	store := cache.NewInMemoryBalanceStore()

	pointService := apppoint.NewPointService(scope, nil, zap.NewNop())
	reconciliation := apppoint.NewReconciliationService(scope, store, zap.NewNop())
	balanceService := apppoint.NewBalanceQueryService(store, reconciliation, zap.NewNop())

	h := NewPointHandler(pointService, balanceService)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.POST("/members/:memberID/accumulations", h.Accumulate)
	api.GET("/members/:memberID/accumulations", h.ListAccumulations)
	api.POST("/members/:memberID/usages", h.Use)
	api.GET("/members/:memberID/usages", h.ListUsages)
	api.GET("/members/:memberID/balance", h.GetBalance)
	api.GET("/accumulations/:key", h.GetAccumulation)
	api.DELETE("/accumulations/:key", h.CancelAccumulation)
	api.GET("/usages/:key", h.GetUsage)
	api.DELETE("/usages/:key", h.CancelUsage)

	return engine, lots
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func accumulate(t *testing.T, engine *gin.Engine, memberID uuid.UUID, amount int64) string {
	t.Helper()
	w := doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/v1/members/%s/accumulations", memberID),
		AccumulateRequest{Amount: amount, ExpireAt: time.Now().Add(24 * time.Hour)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	return data["key"].(string)
}

func TestPointHandler_Accumulate(t *testing.T) {
	t.Run("grants a lot", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/accumulations", memberID),
			AccumulateRequest{Amount: 1000, Manual: true, ExpireAt: time.Now().Add(24 * time.Hour)})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeResponse(t, w)
		require.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Len(t, data["key"].(string), valueobject.PointKeyLength)
		assert.Equal(t, float64(1000), data["amount"])
		assert.Equal(t, float64(1000), data["remaining"])
		assert.Equal(t, true, data["manual"])
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		engine, _ := newTestServer(t)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/accumulations", uuid.New()),
			map[string]any{"amount": -100, "expire_at": time.Now().Add(time.Hour)})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed member ID", func(t *testing.T) {
		engine, _ := newTestServer(t)

		w := doJSON(t, engine, http.MethodPost,
			"/api/v1/members/not-a-uuid/accumulations",
			AccumulateRequest{Amount: 100, ExpireAt: time.Now().Add(time.Hour)})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	})
}

func TestPointHandler_Use(t *testing.T) {
	t.Run("spends points across lots", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		accumulate(t, engine, memberID, 500)
		accumulate(t, engine, memberID, 300)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-1", Amount: 600})

		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "ORDER-1", data["order_id"])
		assert.Equal(t, float64(600), data["amount"])
		assert.Len(t, data["details"].([]any), 2)
	})

	t.Run("rejects usage beyond available balance", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		accumulate(t, engine, memberID, 100)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-2", Amount: 500})

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInsufficientPoint, resp.Error.Code)
	})

	t.Run("requires an order ID", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		accumulate(t, engine, memberID, 100)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			map[string]any{"amount": 50})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPointHandler_CancelAccumulation(t *testing.T) {
	t.Run("cancels an untouched lot", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		key := accumulate(t, engine, memberID, 400)

		w := doJSON(t, engine, http.MethodDelete, "/api/v1/accumulations/"+key, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]any)
		assert.NotNil(t, data["cancelled_at"])
	})

	t.Run("rejects cancelling a partially used lot", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		key := accumulate(t, engine, memberID, 400)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-3", Amount: 100})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, engine, http.MethodDelete, "/api/v1/accumulations/"+key, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeCannotCancel, resp.Error.Code)
	})

	t.Run("unknown key returns 404", func(t *testing.T) {
		engine, _ := newTestServer(t)

		w := doJSON(t, engine, http.MethodDelete, "/api/v1/accumulations/FFFFFFFF", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPointHandler_CancelUsage(t *testing.T) {
	t.Run("restores drawn amounts", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		lotKey := accumulate(t, engine, memberID, 500)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-4", Amount: 200})
		require.Equal(t, http.StatusCreated, w.Code)
		usageKey := decodeResponse(t, w).Data.(map[string]any)["key"].(string)

		w = doJSON(t, engine, http.MethodDelete, "/api/v1/usages/"+usageKey, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, engine, http.MethodGet, "/api/v1/accumulations/"+lotKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(500), data["remaining"])
	})

	t.Run("double cancel returns 409", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		accumulate(t, engine, memberID, 500)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-5", Amount: 200})
		require.Equal(t, http.StatusCreated, w.Code)
		usageKey := decodeResponse(t, w).Data.(map[string]any)["key"].(string)

		w = doJSON(t, engine, http.MethodDelete, "/api/v1/usages/"+usageKey, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, engine, http.MethodDelete, "/api/v1/usages/"+usageKey, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestPointHandler_ListAccumulations(t *testing.T) {
	t.Run("pages results with meta", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		for i := 0; i < 3; i++ {
			accumulate(t, engine, memberID, int64(100*(i+1)))
		}

		w := doJSON(t, engine, http.MethodGet,
			fmt.Sprintf("/api/v1/members/%s/accumulations?page=1&page_size=2", memberID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.Len(t, resp.Data.([]any), 2)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(3), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.TotalPages)
	})
}

func TestPointHandler_GetBalance(t *testing.T) {
	t.Run("rebuilds balance from ledger on cache miss", func(t *testing.T) {
		engine, _ := newTestServer(t)
		memberID := uuid.New()
		accumulate(t, engine, memberID, 1000)

		w := doJSON(t, engine, http.MethodPost,
			fmt.Sprintf("/api/v1/members/%s/usages", memberID),
			UseRequest{OrderID: "ORDER-6", Amount: 400})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, engine, http.MethodGet,
			fmt.Sprintf("/api/v1/members/%s/balance", memberID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(1000), data["total"])
		assert.Equal(t, float64(600), data["available"])
		assert.Equal(t, float64(0), data["expired"])
	})
}
