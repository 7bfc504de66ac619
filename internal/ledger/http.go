package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/telemetry"
)

// Handler 计划/台账相关的 HTTP 入口。
type Handler struct {
	svc    *Service
	events *telemetry.Recorder
	log    logger.Logger
}

func NewHandler(svc *Service, events *telemetry.Recorder, log logger.Logger) *Handler {
	return &Handler{svc: svc, events: events, log: log}
}

// RegisterRoutes 挂载到 /customers/:id 之下。
func (h *Handler) RegisterRoutes(customers *gin.RouterGroup) {
	customers.POST("/:id/grant", h.Grant)
	customers.POST("/:id/deduct", h.Deduct)
	customers.POST("/:id/restore", h.Restore)
	customers.POST("/:id/balance", h.SetBalance)
	customers.GET("/:id/ledger", h.ListEntries)
	customers.PUT("/:id/ledger/:entry_id", h.EditEntry)
	customers.DELETE("/:id/ledger/:entry_id", h.DeleteEntry)
}

// HTTPStatus 错误分类到状态码的唯一映射点。
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOwnership):
		return http.StatusForbidden
	case errors.Is(err, ErrNoActivePlan):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError 按分类返回 {"detail": ...}；5xx 不外泄内部细节。
func AbortWithError(c *gin.Context, log logger.Logger, err error) {
	status := HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Errorf("internal error path=%s err=%v", c.FullPath(), err)
		}
		detail = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// ParseID 解析路径里的数字 ID。
func ParseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

type planOut struct {
	ID           uint `json:"id"`
	CustomerID   uint `json:"customer_id"`
	TotalAllowed int  `json:"total_allowed"`
	Remaining    int  `json:"remaining"`
	Active       bool `json:"active"`
}

func toPlanOut(p *Plan) planOut {
	return planOut{
		ID:           p.ID,
		CustomerID:   p.CustomerID,
		TotalAllowed: p.TotalAllowed,
		Remaining:    p.Remaining,
		Active:       p.Active,
	}
}

type entryOut struct {
	ID         uint   `json:"id"`
	CustomerID uint   `json:"customer_id"`
	VehicleID  *uint  `json:"vehicle_id,omitempty"`
	Mileage    *int   `json:"mileage,omitempty"`
	OilWeight  string `json:"oil_weight,omitempty"`
	OilQuarts  string `json:"oil_quarts,omitempty"`
	Delta      int    `json:"delta"`
	Note       string `json:"note"`
	OccurredAt string `json:"occurred_at"`
}

func toEntryOut(e *Entry) entryOut {
	return entryOut{
		ID:         e.ID,
		CustomerID: e.CustomerID,
		VehicleID:  e.VehicleID,
		Mileage:    e.Mileage,
		OilWeight:  e.OilWeight,
		OilQuarts:  e.OilQuarts,
		Delta:      e.Delta,
		Note:       e.Note,
		OccurredAt: e.OccurredAt.Format("2006-01-02"),
	}
}

type grantRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
	Date     string `json:"date"`
}

func (h *Handler) Grant(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	plan, entry, err := h.svc.Grant(c.Request.Context(), customerID, req.Quantity, req.Note, req.Date)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("grant", "plan", map[string]interface{}{
		"customer_id": customerID,
		"quantity":    req.Quantity,
		"note":        req.Note,
	})
	c.JSON(http.StatusOK, gin.H{"plan": toPlanOut(plan), "entry": toEntryOut(entry)})
}

type deductRequest struct {
	VehicleID uint   `json:"vehicle_id"`
	Mileage   int    `json:"mileage"`
	Date      string `json:"date"`
	Note      string `json:"note"`
}

func (h *Handler) Deduct(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req deductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	_ = h.events.Log("deduct", "plan", map[string]interface{}{
		"customer_id": customerID,
		"vehicle_id":  req.VehicleID,
		"mileage":     req.Mileage,
		"note":        req.Note,
	})

	plan, entry, err := h.svc.Deduct(c.Request.Context(), customerID, req.VehicleID, req.Mileage, req.Date, req.Note)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": toPlanOut(plan), "entry": toEntryOut(entry)})
}

type restoreRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Restore(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req restoreRequest
	_ = c.ShouldBindJSON(&req) // body 可省略

	plan, entry, err := h.svc.Restore(c.Request.Context(), customerID, req.Note)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("restore", "plan", map[string]interface{}{
		"customer_id": customerID,
		"note":        req.Note,
	})
	c.JSON(http.StatusOK, gin.H{"plan": toPlanOut(plan), "entry": toEntryOut(entry)})
}

type setBalanceRequest struct {
	Remaining int `json:"remaining"`
}

func (h *Handler) SetBalance(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	var req setBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	plan, err := h.svc.SetBalance(c.Request.Context(), customerID, req.Remaining)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("set_balance", "plan", map[string]interface{}{
		"customer_id": customerID,
		"remaining":   req.Remaining,
	})
	c.JSON(http.StatusOK, gin.H{"plan": toPlanOut(plan)})
}

func (h *Handler) ListEntries(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	entries, err := h.svc.ListEntries(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}
	out := make([]entryOut, 0, len(entries))
	for i := range entries {
		out = append(out, toEntryOut(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

type editEntryRequest struct {
	Mileage *int    `json:"mileage"`
	Date    string  `json:"date"`
	Note    *string `json:"note"`
}

func (h *Handler) EditEntry(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	entryID, ok := ParseID(c, "entry_id")
	if !ok {
		return
	}
	var req editEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	entry, err := h.svc.EditEntry(c.Request.Context(), customerID, entryID, EditEntryInput{
		Mileage: req.Mileage,
		Date:    req.Date,
		Note:    req.Note,
	})
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("ledger_edit", "ledger", map[string]interface{}{
		"customer_id": customerID,
		"entry_id":    entryID,
	})
	c.JSON(http.StatusOK, gin.H{"entry": toEntryOut(entry)})
}

func (h *Handler) DeleteEntry(c *gin.Context) {
	customerID, ok := ParseID(c, "id")
	if !ok {
		return
	}
	entryID, ok := ParseID(c, "entry_id")
	if !ok {
		return
	}

	plan, err := h.svc.DeleteEntry(c.Request.Context(), customerID, entryID)
	if err != nil {
		AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("ledger_delete", "ledger", map[string]interface{}{
		"customer_id": customerID,
		"entry_id":    entryID,
	})
	c.JSON(http.StatusOK, gin.H{"plan": toPlanOut(plan)})
}
