package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// ProcessInvoiceRequest is the body of POST /api/invoices/process
type ProcessInvoiceRequest struct {
	Invoice        *entity.Invoice        `json:"invoice" binding:"required"`
	PurchaseOrders []entity.PurchaseOrder `json:"purchaseOrders"`
	DeliveryNotes  []entity.DeliveryNote  `json:"deliveryNotes"`
}

// InvoiceRecordResponse is a processed invoice with its derived review status
type InvoiceRecordResponse struct {
	*entity.ProcessedInvoice
	ReviewStatus string `json:"reviewStatus"`
}

// CorrectionResponse lists the memory updates a correction produced
type CorrectionResponse struct {
	InvoiceID     string   `json:"invoiceId"`
	MemoryUpdates []string `json:"memoryUpdates"`
}

// ReinforceRequest is the body of POST /api/patterns/:family/:id/reinforce
type ReinforceRequest struct {
	Successful *bool `json:"successful" binding:"required"`
}

// ReinforceResponse carries the confidence after reinforcement
type ReinforceResponse struct {
	PatternID  string  `json:"patternId"`
	Family     string  `json:"family"`
	Confidence float64 `json:"confidence"`
}

// SnapshotResponse points at a saved memory report
type SnapshotResponse struct {
	Location string `json:"location"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.services.Health != nil {
		healthy, details := h.services.Health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: response})
}

// ProcessInvoice handles POST /api/invoices/process
func (h *Handlers) ProcessInvoice(c *gin.Context) {
	var req ProcessInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.services.Invoices.ProcessInvoice(c.Request.Context(), req.Invoice, req.PurchaseOrders, req.DeliveryNotes)
	if err != nil {
		h.fail(c, "Failed to process invoice", err, "invoice_id", req.Invoice.InvoiceID)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id := c.Param("id")

	record, err := h.services.Invoices.GetProcessingHistory(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get processed invoice", err, "invoice_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    InvoiceRecordResponse{ProcessedInvoice: record, ReviewStatus: record.ReviewStatus()},
	})
}

// ApplyCorrection handles POST /api/invoices/:id/corrections
func (h *Handlers) ApplyCorrection(c *gin.Context) {
	id := c.Param("id")

	var correction entity.HumanCorrection
	if err := c.ShouldBindJSON(&correction); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	correction.InvoiceID = id

	updates, err := h.services.Invoices.ApplyHumanCorrectionForStored(c.Request.Context(), &correction)
	if err != nil {
		h.fail(c, "Failed to apply correction", err, "invoice_id", id)
		return
	}

	h.logger.Info("Correction applied", "invoice_id", id, "memory_updates", len(updates))
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    CorrectionResponse{InvoiceID: id, MemoryUpdates: nonNil(updates)},
	})
}

// GetAuditTrail handles GET /api/invoices/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	id := c.Param("id")

	trail, err := h.services.Invoices.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get audit trail", err, "invoice_id", id)
		return
	}
	if trail == nil {
		trail = []*entity.AuditEntry{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: trail})
}

// GetMemoryStats handles GET /api/memory/stats
func (h *Handlers) GetMemoryStats(c *gin.Context) {
	stats, err := h.services.Invoices.GetMemoryStats(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to get memory stats", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ExportMemory handles GET /api/memory/export.
// ?save=true writes a snapshot to the report store instead of streaming it.
func (h *Handlers) ExportMemory(c *gin.Context) {
	if c.Query("save") == "true" {
		location, err := h.services.Exporter.SaveSnapshot(c.Request.Context())
		if err != nil {
			h.fail(c, "Failed to save memory snapshot", err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: SnapshotResponse{Location: location}})
		return
	}

	content, err := h.services.Exporter.BuildWorkbook(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to export memory", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="memory.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, content)
}

// ClearMemory handles DELETE /api/memory
func (h *Handlers) ClearMemory(c *gin.Context) {
	if err := h.services.Invoices.ClearAllMemory(c.Request.Context()); err != nil {
		h.fail(c, "Failed to clear memory", err)
		return
	}

	h.logger.Info("Memory cleared", "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, Response{Success: true})
}

// ReinforcePattern handles POST /api/patterns/:family/:id/reinforce
func (h *Handlers) ReinforcePattern(c *gin.Context) {
	family, err := entity.ParsePatternFamily(c.Param("family"))
	if err != nil {
		h.badRequest(c, "unknown pattern family", err)
		return
	}

	var req ReinforceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	id := c.Param("id")
	confidence, err := h.services.Invoices.ReinforcePattern(c.Request.Context(), id, family, *req.Successful)
	if err != nil {
		h.fail(c, "Failed to reinforce pattern", err, "pattern_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ReinforceResponse{PatternID: id, Family: string(family), Confidence: confidence},
	})
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message + ": " + err.Error()})
}

// fail maps domain errors onto HTTP status codes
func (h *Handlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status := statusFor(err)
	h.logger.Error(msg, append(keysAndValues, "status", status, "error", err)...)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidInvoice),
		errors.Is(err, entity.ErrInvalidCorrection),
		errors.Is(err, entity.ErrInvalidFieldPath):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
