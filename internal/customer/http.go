package customer

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/telemetry"
)

// Handler 客户档案相关的 HTTP 入口。
type Handler struct {
	svc    *Service
	events *telemetry.Recorder
	log    logger.Logger
}

func NewHandler(svc *Service, events *telemetry.Recorder, log logger.Logger) *Handler {
	return &Handler{svc: svc, events: events, log: log}
}

func (h *Handler) RegisterRoutes(customers *gin.RouterGroup) {
	customers.POST("", h.Create)
	customers.POST("/search", h.Search)
	customers.POST("/import", h.Import)
	customers.GET("/export", h.Export)
	customers.GET("/:id", h.Get)
	customers.POST("/:id/update", h.Update)
	customers.POST("/:id/merge", h.Merge)
	customers.GET("/:id/contacts", h.ListContacts)
	customers.POST("/:id/contacts", h.AddContact)
}

type customerOut struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Landline  string `json:"landline,omitempty"`
	Email     string `json:"email,omitempty"`
}

func toCustomerOut(c *Customer) customerOut {
	return customerOut{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Name:      c.Name(),
		Phone:     c.Phone,
		Landline:  c.Landline,
		Email:     c.Email,
	}
}

type createRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Landline  string `json:"landline"`
	Email     string `json:"email"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	_ = h.events.Log("create_customer", "customer", map[string]interface{}{
		"first": req.FirstName,
		"last":  req.LastName,
	})

	created, err := h.svc.Create(c.Request.Context(), CreateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Landline:  req.Landline,
		Email:     req.Email,
	})
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerOut(created))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	found, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerOut(found))
}

type searchRequest struct {
	NameOrPhone string `json:"name_or_phone"`
}

func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	results, err := h.svc.Search(c.Request.Context(), req.NameOrPhone)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("search", "customer", map[string]interface{}{
		"term":    req.NameOrPhone,
		"results": len(results),
	})

	out := make([]customerOut, 0, len(results))
	for i := range results {
		out = append(out, toCustomerOut(&results[i]))
	}
	c.JSON(http.StatusOK, out)
}

type updateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Landline  *string `json:"landline"`
	Email     *string `json:"email"`
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), id, UpdateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Landline:  req.Landline,
		Email:     req.Email,
	})
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerOut(updated))
}

type mergeRequest struct {
	SourceID uint `json:"source_id"`
}

func (h *Handler) Merge(c *gin.Context) {
	dstID, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SourceID == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "source_id required"})
		return
	}

	dst, err := h.svc.Merge(c.Request.Context(), req.SourceID, dstID)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("merge", "customer", map[string]interface{}{
		"source_id": req.SourceID,
		"target_id": dstID,
	})
	c.JSON(http.StatusOK, toCustomerOut(dst))
}

func (h *Handler) Import(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "csv file required"})
		return
	}
	defer file.Close()

	res, err := h.svc.ImportCSV(c.Request.Context(), file)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}

	_ = h.events.Log("import", "customer", map[string]interface{}{
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
	})
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Export(c *gin.Context) {
	_ = h.events.Log("export", "customer", nil)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename=customers_export.csv`)
	if err := h.svc.ExportCSV(c.Request.Context(), c.Writer); err != nil && h.log != nil {
		h.log.Errorf("csv export failed: %v", err)
	}
}

type contactRequest struct {
	ContactName string `json:"contact_name"`
	Role        string `json:"role"`
	Mobile      string `json:"mobile"`
	Landline    string `json:"landline"`
	Email       string `json:"email"`
	Preferred   bool   `json:"preferred"`
	Notes       string `json:"notes"`
}

func (h *Handler) AddContact(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	ct := &Contact{
		CustomerID:  id,
		ContactName: req.ContactName,
		Role:        req.Role,
		Mobile:      req.Mobile,
		Landline:    req.Landline,
		Email:       req.Email,
		Preferred:   req.Preferred,
		Notes:       req.Notes,
	}
	if err := h.svc.AddContact(c.Request.Context(), ct); err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (h *Handler) ListContacts(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	contacts, err := h.svc.ListContacts(c.Request.Context(), id)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}
