package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/wyfcoding/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/index/application"
	"github.com/wyfcoding/marketindex/internal/index/domain"
	"github.com/wyfcoding/pkg/logging"
)

// IndexHandler 负责处理指数计算与查询相关的 HTTP 请求
type IndexHandler struct {
	calc  *application.IndexCalculationService
	query *application.IndexQueryService
}

// NewIndexHandler 创建 HTTP 处理器
func NewIndexHandler(calc *application.IndexCalculationService, query *application.IndexQueryService) *IndexHandler {
	return &IndexHandler{calc: calc, query: query}
}

// RegisterRoutes 注册路由
func (h *IndexHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/indices")
	{
		api.POST("", h.CreateIndex)
		api.GET("/:id", h.GetIndex)
		api.PUT("/:id/composition", h.ReplaceComposition)
		api.GET("/:id/history", h.GetHistory)
		api.POST("/:id/points", h.UpdatePoints)
		api.POST("/:id/points/fill", h.FillHistory)
		api.POST("/:id/recalculate", h.Recalculate)
		api.GET("/:id/realtime", h.GetRealTime)
		api.GET("/:id/performance", h.ListAssetPerformance)
		api.GET("/:id/performance/:ticker", h.GetAssetPerformance)
	}
}

// CreateIndexRequest 创建指数请求
type CreateIndexRequest struct {
	IndexID      string `json:"index_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	BaseCurrency string `json:"base_currency"`
}

// CreateIndex 创建指数定义
func (h *IndexHandler) CreateIndex(c *gin.Context) {
	var req CreateIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	if req.BaseCurrency == "" {
		req.BaseCurrency = "USD"
	}

	if err := h.calc.CreateIndex(c.Request.Context(), req.IndexID, req.Name, req.Description, req.BaseCurrency); err != nil {
		logging.Error(c.Request.Context(), "Failed to create index", "index_id", req.IndexID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	response.Success(c, gin.H{"index_id": req.IndexID})
}

// CompositionMemberRequest 成分项
type CompositionMemberRequest struct {
	Ticker       string `json:"ticker" binding:"required"`
	TargetWeight string `json:"target_weight" binding:"required"`
	EntryPrice   string `json:"entry_price" binding:"required"`
	EntryDate    string `json:"entry_date" binding:"required"`
}

// ReplaceCompositionRequest 全量替换成分请求
type ReplaceCompositionRequest struct {
	Members []CompositionMemberRequest `json:"members" binding:"required"`
}

// ReplaceComposition 全量替换指数成分
func (h *IndexHandler) ReplaceComposition(c *gin.Context) {
	indexID := c.Param("id")
	var req ReplaceCompositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	members := make([]domain.IndexComposition, 0, len(req.Members))
	for _, m := range req.Members {
		weight, err := decimal.NewFromString(m.TargetWeight)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid target_weight for "+m.Ticker, "")
			return
		}
		price, err := decimal.NewFromString(m.EntryPrice)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid entry_price for "+m.Ticker, "")
			return
		}
		entryDate, err := time.Parse("2006-01-02", m.EntryDate)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid entry_date for "+m.Ticker, "")
			return
		}
		members = append(members, domain.IndexComposition{
			IndexID:      indexID,
			Ticker:       m.Ticker,
			TargetWeight: weight,
			EntryPrice:   price,
			EntryDate:    entryDate,
		})
	}

	if err := h.calc.ReplaceComposition(c.Request.Context(), indexID, members); err != nil {
		h.writeError(c, indexID, "Failed to replace composition", err)
		return
	}

	response.Success(c, gin.H{"index_id": indexID, "members": len(members)})
}

// GetIndex 获取指数定义及最新点位
func (h *IndexHandler) GetIndex(c *gin.Context) {
	indexID := c.Param("id")
	dto, err := h.query.GetIndex(c.Request.Context(), indexID)
	if err != nil {
		h.writeError(c, indexID, "Failed to get index", err)
		return
	}
	response.Success(c, dto)
}

// GetHistory 获取历史点位，支持 from/to 日期过滤
func (h *IndexHandler) GetHistory(c *gin.Context) {
	indexID := c.Param("id")
	from, ok := h.optionalDate(c, "from")
	if !ok {
		return
	}
	to, ok := h.optionalDate(c, "to")
	if !ok {
		return
	}

	points, err := h.query.GetHistory(c.Request.Context(), indexID, from, to)
	if err != nil {
		h.writeError(c, indexID, "Failed to get history", err)
		return
	}
	response.Success(c, points)
}

// UpdatePoints 计算并落库指定日期的点位，默认今天
func (h *IndexHandler) UpdatePoints(c *gin.Context) {
	indexID := c.Param("id")
	date := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid date, expect YYYY-MM-DD", "")
			return
		}
		date = parsed
	}

	updated, err := h.calc.UpdatePoints(c.Request.Context(), indexID, date)
	if err != nil {
		h.writeError(c, indexID, "Failed to update points", err)
		return
	}

	response.Success(c, gin.H{"index_id": indexID, "date": domain.DateOnly(date).Format("2006-01-02"), "updated": updated})
}

// FillHistory 补齐自最后点位以来缺失的交易日
func (h *IndexHandler) FillHistory(c *gin.Context) {
	indexID := c.Param("id")
	report, err := h.calc.FillMissingHistory(c.Request.Context(), indexID)
	if err != nil {
		h.writeError(c, indexID, "Failed to fill history", err)
		return
	}
	response.Success(c, report)
}

// RecalculateRequest 重算请求，start_date 为空表示从创世日重放
type RecalculateRequest struct {
	StartDate string `json:"start_date"`
}

// Recalculate 按分红重算历史点位
func (h *IndexHandler) Recalculate(c *gin.Context) {
	indexID := c.Param("id")

	var req RecalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
			return
		}
	}
	var from *time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid start_date, expect YYYY-MM-DD", "")
			return
		}
		from = &parsed
	}

	report, err := h.calc.RecalculateWithDividends(c.Request.Context(), indexID, from)
	if err != nil {
		h.writeError(c, indexID, "Failed to recalculate index", err)
		return
	}
	response.Success(c, report)
}

// GetRealTime 获取实时投影
func (h *IndexHandler) GetRealTime(c *gin.Context) {
	indexID := c.Param("id")
	dto, err := h.query.GetRealTimeReturn(c.Request.Context(), indexID)
	if err != nil {
		h.writeError(c, indexID, "Failed to get real-time return", err)
		return
	}
	if dto == nil {
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, "real-time view unavailable", "")
		return
	}
	response.Success(c, dto)
}

// ListAssetPerformance 获取全部历史成分的表现
func (h *IndexHandler) ListAssetPerformance(c *gin.Context) {
	indexID := c.Param("id")
	perfs, err := h.query.ListAllAssetsPerformance(c.Request.Context(), indexID)
	if err != nil {
		h.writeError(c, indexID, "Failed to list asset performance", err)
		return
	}
	response.Success(c, perfs)
}

// GetAssetPerformance 获取单个成分的表现
func (h *IndexHandler) GetAssetPerformance(c *gin.Context) {
	indexID := c.Param("id")
	ticker := c.Param("ticker")
	perf, err := h.query.GetAssetPerformance(c.Request.Context(), indexID, ticker)
	if err != nil {
		h.writeError(c, indexID, "Failed to get asset performance", err)
		return
	}
	if perf == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "ticker never appeared in index history", "")
		return
	}
	response.Success(c, perf)
}

func (h *IndexHandler) optionalDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid "+name+", expect YYYY-MM-DD", "")
		return nil, false
	}
	return &parsed, true
}

func (h *IndexHandler) writeError(c *gin.Context, indexID, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrNoComposition),
		errors.Is(err, domain.ErrNoPriceableAssets),
		errors.Is(err, domain.ErrMissingHistoryBase):
		response.ErrorWithStatus(c, http.StatusUnprocessableEntity, err.Error(), "")
	default:
		logging.Error(c.Request.Context(), msg, "index_id", indexID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
	}
}
