package handler

import (
	"context"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DocumentListQuery are the list filters every document kind accepts
type DocumentListQuery struct {
	dto.ListRequest
	Status         string `form:"status"`
	CounterpartyID string `form:"counterparty_id"`
	FromDate       string `form:"from_date"`
	ToDate         string `form:"to_date"`
}

// ApproveRequest carries optional approval notes
type ApproveRequest struct {
	Notes string `json:"notes" binding:"max=1000"`
}

// ReasonRequest carries the reason of a reject or void
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// DocumentHandler serves one document kind. P is the create/update payload
// decoded from the request body.
type DocumentHandler[D finance.Document, P finance.Payload[D]] struct {
	BaseHandler
	service *appfinance.DocumentService[D]
	prefix  string
}

// NewDocumentHandler creates the handler for the kind served by service,
// mounted under prefix
func NewDocumentHandler[D finance.Document, P finance.Payload[D]](
	service *appfinance.DocumentService[D],
	prefix string,
) *DocumentHandler[D, P] {
	return &DocumentHandler[D, P]{service: service, prefix: prefix}
}

// Routes returns the route group of the kind. The send route only exists
// for kinds whose lifecycle has a SENT state.
func (h *DocumentHandler[D, P]) Routes() *router.DomainGroup {
	spec := h.service.Spec()
	g := router.NewDomainGroup(spec.Label, h.prefix).
		GET("", h.List).
		GET("/:id", h.Get).
		POST("", h.Create).
		PUT("/:id", h.Update).
		POST("/:id/submit", h.Submit).
		POST("/:id/approve", h.Approve).
		POST("/:id/reject", h.Reject).
		POST("/:id/post", h.Post).
		POST("/:id/void", h.Void)
	if spec.Machine().Table().Supports(lifecycle.ActionSend) {
		g.POST("/:id/send", h.Send)
	}
	return g
}

// List GET /
func (h *DocumentHandler[D, P]) List(c *gin.Context) {
	query := DocumentListQuery{ListRequest: dto.DefaultListRequest()}
	if !h.bindQuery(c, &query) {
		return
	}
	filter, err := documentFilterFrom(query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := lo.Map(page.Items, func(d D, _ int) DocumentResponse { return toDocumentResponse(d) })
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

func documentFilterFrom(q DocumentListQuery) (finance.DocumentFilter, error) {
	filter := finance.DocumentFilter{Filter: filterFrom(q.ListRequest)}
	if q.Status != "" {
		status := lifecycle.Status(q.Status)
		if !status.IsValid() {
			return filter, shared.NewValidationError("Unknown status %s", q.Status)
		}
		filter.Status = &status
	}
	var err error
	if filter.CounterpartyID, err = parseOptionalUUID(q.CounterpartyID, "counterparty_id"); err != nil {
		return filter, err
	}
	if filter.FromDate, err = parseOptionalDate(q.FromDate, "from_date"); err != nil {
		return filter, err
	}
	if filter.ToDate, err = parseOptionalDate(q.ToDate, "to_date"); err != nil {
		return filter, err
	}
	return filter, nil
}

// Get GET /:id
func (h *DocumentHandler[D, P]) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toDocumentResponse(doc))
}

// Create POST /
func (h *DocumentHandler[D, P]) Create(c *gin.Context) {
	var payload P
	if !h.bindJSON(c, &payload) {
		return
	}
	doc, err := h.service.Create(c.Request.Context(), payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toDocumentResponse(doc))
}

// Update PUT /:id
func (h *DocumentHandler[D, P]) Update(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var payload P
	if !h.bindJSON(c, &payload) {
		return
	}
	doc, err := h.service.Update(c.Request.Context(), id, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toDocumentResponse(doc))
}

// Submit POST /:id/submit
func (h *DocumentHandler[D, P]) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit)
}

// Approve POST /:id/approve
func (h *DocumentHandler[D, P]) Approve(c *gin.Context) {
	var req ApproveRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID) (D, error) {
		return h.service.Approve(ctx, id, req.Notes)
	})
}

// Reject POST /:id/reject
func (h *DocumentHandler[D, P]) Reject(c *gin.Context) {
	var req ReasonRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID) (D, error) {
		return h.service.Reject(ctx, id, req.Reason)
	})
}

// Send POST /:id/send
func (h *DocumentHandler[D, P]) Send(c *gin.Context) {
	h.transition(c, h.service.Send)
}

// Post POST /:id/post
func (h *DocumentHandler[D, P]) Post(c *gin.Context) {
	h.transition(c, h.service.Post)
}

// Void POST /:id/void
func (h *DocumentHandler[D, P]) Void(c *gin.Context) {
	var req ReasonRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID) (D, error) {
		return h.service.Void(ctx, id, req.Reason)
	})
}

func (h *DocumentHandler[D, P]) transition(c *gin.Context, run func(context.Context, uuid.UUID) (D, error)) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	doc, err := run(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toDocumentResponse(doc))
}
