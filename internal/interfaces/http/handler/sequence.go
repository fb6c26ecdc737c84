package handler

import (
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
)

// CounterQuery selects the bucket of a range
type CounterQuery struct {
	ResetRule string `form:"reset_rule"`
	AsOf      string `form:"as_of"`
}

// SequenceHandler exposes free-standing number ranges
type SequenceHandler struct {
	BaseHandler
	service *appfinance.SequenceService
	now     func() time.Time
}

// NewSequenceHandler creates a new SequenceHandler
func NewSequenceHandler(service *appfinance.SequenceService) *SequenceHandler {
	return &SequenceHandler{service: service, now: time.Now}
}

// Routes returns the sequence routes
func (h *SequenceHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("sequences", "/settings/sequences").
		POST("/allocate", h.Allocate).
		GET("/:range_key", h.Current)
}

// Allocate POST /allocate
func (h *SequenceHandler) Allocate(c *gin.Context) {
	var req appfinance.AllocateInput
	if !h.bindJSON(c, &req) {
		return
	}
	alloc, err := h.service.Allocate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toAllocationResponse(alloc))
}

// Current GET /:range_key
func (h *SequenceHandler) Current(c *gin.Context) {
	var query CounterQuery
	if !h.bindQuery(c, &query) {
		return
	}
	asOf, err := parseOptionalDate(query.AsOf, "as_of")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	at := h.now().UTC()
	if asOf != nil {
		at = *asOf
	}
	counter, err := h.service.Current(c.Request.Context(), c.Param("range_key"), sequence.ResetRule(query.ResetRule), at)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, counter)
}
