package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppoint "github.com/loyalty/backend/internal/application/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
)

// PointHandler handles loyalty-point API endpoints
type PointHandler struct {
	BaseHandler
	pointService   *apppoint.PointService
	balanceService *apppoint.BalanceQueryService
}

// NewPointHandler creates a new PointHandler
func NewPointHandler(pointService *apppoint.PointService, balanceService *apppoint.BalanceQueryService) *PointHandler {
	return &PointHandler{
		pointService:   pointService,
		balanceService: balanceService,
	}
}

// AccumulateRequest represents a request to grant points to a member
type AccumulateRequest struct {
	Amount   int64     `json:"amount" binding:"required,gt=0"`
	Manual   bool      `json:"manual"`
	ExpireAt time.Time `json:"expire_at" binding:"required"`
}

// UseRequest represents a request to spend points against an order
type UseRequest struct {
	OrderID string `json:"order_id" binding:"required,max=100"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

// Accumulate grants a new accumulation lot to a member
func (h *PointHandler) Accumulate(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberID"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID format")
		return
	}

	var req AccumulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	amount, err := valueobject.NewMoneyFromInt(req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.Accumulate(c.Request.Context(), memberID, amount, req.Manual, req.ExpireAt)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, response)
}

// ListAccumulations returns a page of a member's accumulation lots
func (h *PointHandler) ListAccumulations(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberID"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID format")
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	if req.OrderBy != "" {
		filter.OrderBy = req.OrderBy
	}
	if req.OrderDir != "" {
		filter.OrderDir = req.OrderDir
	}

	page, err := h.pointService.GetAccumulations(c.Request.Context(), memberID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetAccumulation returns one accumulation lot by key
func (h *PointHandler) GetAccumulation(c *gin.Context) {
	key, err := valueobject.ParsePointKey(c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.GetAccumulation(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, response)
}

// CancelAccumulation cancels an untouched accumulation lot
func (h *PointHandler) CancelAccumulation(c *gin.Context) {
	key, err := valueobject.ParsePointKey(c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.CancelAccumulation(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, response)
}

// Use spends points for an order
func (h *PointHandler) Use(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberID"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID format")
		return
	}

	var req UseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	amount, err := valueobject.NewMoneyFromInt(req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.Use(c.Request.Context(), memberID, req.OrderID, amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, response)
}

// ListUsages returns a member's usage transactions
func (h *PointHandler) ListUsages(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberID"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID format")
		return
	}

	responses, err := h.pointService.GetUsages(c.Request.Context(), memberID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, responses)
}

// GetUsage returns one usage transaction by key
func (h *PointHandler) GetUsage(c *gin.Context) {
	key, err := valueobject.ParsePointKey(c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.GetUsage(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, response)
}

// CancelUsage cancels a usage and restores the drawn amounts to their lots
func (h *PointHandler) CancelUsage(c *gin.Context) {
	key, err := valueobject.ParsePointKey(c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	response, err := h.pointService.CancelUsage(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, response)
}

// GetBalance returns the member's balance
func (h *PointHandler) GetBalance(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberID"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID format")
		return
	}

	response, err := h.balanceService.GetBalance(c.Request.Context(), memberID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, response)
}
