package vehicle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OilChangeTracker/OilChangeTracker/internal/common/logger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/ledger"
	"github.com/OilChangeTracker/OilChangeTracker/internal/telemetry"
)

// Handler 车辆相关的 HTTP 入口。
type Handler struct {
	svc    *Service
	events *telemetry.Recorder
	log    logger.Logger
}

func NewHandler(svc *Service, events *telemetry.Recorder, log logger.Logger) *Handler {
	return &Handler{svc: svc, events: events, log: log}
}

func (h *Handler) RegisterRoutes(vehicles *gin.RouterGroup, customers *gin.RouterGroup) {
	vehicles.POST("", h.Add)
	vehicles.GET("/:id", h.Get)
	vehicles.POST("/:id/update", h.Update)
	vehicles.POST("/:id/refresh_specs", h.RefreshSpecs)
	customers.GET("/:id/vehicles", h.ListByCustomer)
}

type vehicleOut struct {
	ID         uint   `json:"id"`
	CustomerID uint   `json:"customer_id"`
	DriverID   *uint  `json:"driver_id,omitempty"`
	Year       string `json:"year"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	VIN        string `json:"vin"`
	Plate      string `json:"plate"`
	OilType    string `json:"oil_type"`
	OilQuarts  string `json:"oil_quarts"`
	OilWeight  string `json:"oil_weight"`
}

func toVehicleOut(v *Vehicle) vehicleOut {
	return vehicleOut{
		ID:         v.ID,
		CustomerID: v.CustomerID,
		DriverID:   v.DriverID,
		Year:       v.Year,
		Make:       v.Make,
		Model:      v.Model,
		VIN:        v.VIN,
		Plate:      v.Plate,
		OilType:    v.OilType,
		OilQuarts:  v.OilQuarts,
		OilWeight:  v.OilWeight,
	}
}

type addRequest struct {
	CustomerID uint   `json:"customer_id"`
	DriverID   *uint  `json:"driver_id"`
	Year       string `json:"year"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	VIN        string `json:"vin"`
	Plate      string `json:"plate"`
}

func (h *Handler) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	_ = h.events.Log("vehicle_add", "vehicle", map[string]interface{}{
		"plate": req.Plate,
		"vin":   req.VIN,
	})

	v, err := h.svc.Add(c.Request.Context(), AddInput{
		CustomerID: req.CustomerID,
		DriverID:   req.DriverID,
		Year:       req.Year,
		Make:       req.Make,
		Model:      req.Model,
		VIN:        req.VIN,
		Plate:      req.Plate,
	})
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleOut(v))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleOut(v))
}

func (h *Handler) ListByCustomer(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	vehicles, err := h.svc.ListByCustomer(c.Request.Context(), id)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	out := make([]vehicleOut, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, toVehicleOut(&vehicles[i]))
	}
	c.JSON(http.StatusOK, out)
}

type updateVehicleRequest struct {
	DriverID *uint   `json:"driver_id"`
	Year     *string `json:"year"`
	Make     *string `json:"make"`
	Model    *string `json:"model"`
	VIN      *string `json:"vin"`
	Plate    *string `json:"plate"`
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}
	var req updateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	v, err := h.svc.Update(c.Request.Context(), id, UpdateInput{
		DriverID: req.DriverID,
		Year:     req.Year,
		Make:     req.Make,
		Model:    req.Model,
		VIN:      req.VIN,
		Plate:    req.Plate,
	})
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleOut(v))
}

func (h *Handler) RefreshSpecs(c *gin.Context) {
	id, ok := ledger.ParseID(c, "id")
	if !ok {
		return
	}

	_ = h.events.Log("spec_lookup", "vehicle", map[string]interface{}{
		"vehicle_id": id,
	})

	v, err := h.svc.RefreshSpecs(c.Request.Context(), id)
	if err != nil {
		ledger.AbortWithError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleOut(v))
}
