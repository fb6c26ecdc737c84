package handler

import (
	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// TemplateListQuery are the recurring template list filters
type TemplateListQuery struct {
	dto.ListRequest
	Status    string `form:"status"`
	Frequency string `form:"frequency"`
}

// RecurringHandler serves recurring journal templates
type RecurringHandler struct {
	BaseHandler
	service *appfinance.RecurringService
}

// NewRecurringHandler creates a new RecurringHandler
func NewRecurringHandler(service *appfinance.RecurringService) *RecurringHandler {
	return &RecurringHandler{service: service}
}

// Routes returns the recurring journal routes
func (h *RecurringHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("recurring journals", "/general-ledger/recurring-journals").
		GET("", h.List).
		POST("", h.Create).
		GET("/:id", h.Get).
		PUT("/:id", h.Update).
		DELETE("/:id", h.Delete).
		POST("/:id/pause", h.Pause).
		POST("/:id/resume", h.Resume).
		POST("/:id/execute", h.Execute).
		GET("/:id/executions", h.ListExecutions)
}

// List GET /
func (h *RecurringHandler) List(c *gin.Context) {
	query := TemplateListQuery{ListRequest: dto.DefaultListRequest()}
	if !h.bindQuery(c, &query) {
		return
	}
	filter := finance.TemplateFilter{Filter: filterFrom(query.ListRequest)}
	if query.Status != "" {
		status := finance.TemplateStatus(query.Status)
		filter.Status = &status
	}
	if query.Frequency != "" {
		freq := finance.Frequency(query.Frequency)
		if !freq.IsValid() {
			h.HandleError(c, shared.NewValidationError("Unknown frequency %s", query.Frequency))
			return
		}
		filter.Frequency = &freq
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := lo.Map(page.Items, func(t finance.RecurringJournalTemplate, _ int) TemplateResponse {
		return toTemplateResponse(&t)
	})
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// Create POST /
func (h *RecurringHandler) Create(c *gin.Context) {
	var req finance.RecurringTemplateInput
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toTemplateResponse(t))
}

// Get GET /:id
func (h *RecurringHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	t, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTemplateResponse(t))
}

// Update PUT /:id
func (h *RecurringHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req finance.RecurringTemplateInput
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTemplateResponse(t))
}

// Delete DELETE /:id
func (h *RecurringHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Pause POST /:id/pause
func (h *RecurringHandler) Pause(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	t, err := h.service.Pause(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTemplateResponse(t))
}

// Resume POST /:id/resume
func (h *RecurringHandler) Resume(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	t, err := h.service.Resume(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTemplateResponse(t))
}

// Execute POST /:id/execute
func (h *RecurringHandler) Execute(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var opts appfinance.ExecuteOptions
	if !h.bindOptionalJSON(c, &opts) {
		return
	}
	result, err := h.service.Execute(c.Request.Context(), id, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toExecutionResultResponse(result))
}

// ListExecutions GET /:id/executions
func (h *RecurringHandler) ListExecutions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	query := dto.DefaultListRequest()
	if !h.bindQuery(c, &query) {
		return
	}
	page, err := h.service.ListExecutions(c.Request.Context(), id, filterFrom(query))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := lo.Map(page.Items, func(e finance.RecurringExecution, _ int) ExecutionResponse {
		return toExecutionResponse(&e)
	})
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}
