package handler

import (
	"strings"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// OpenItemListQuery are the open item list filters
type OpenItemListQuery struct {
	dto.ListRequest
	ControlAccount string `form:"control_account"`
	Currency       string `form:"currency"`
	// comma separated, e.g. OPEN,PARTIALLY_CLEARED
	Status         string `form:"status"`
	CounterpartyID string `form:"counterparty_id"`
	DocumentKind   string `form:"document_kind"`
}

// AutoMatchRequest asks for exact-amount pairs, and commits them when Apply is set
type AutoMatchRequest struct {
	appfinance.SuggestMatchesInput
	Apply bool   `json:"apply"`
	Notes string `json:"notes" binding:"max=500"`
}

// AutoMatchFailure is a suggestion that could not be committed
type AutoMatchFailure struct {
	Suggestion MatchSuggestionResponse `json:"suggestion"`
	Code       string                  `json:"code"`
	Message    string                  `json:"message"`
}

// AutoMatchResponse lists the suggestions and, when applied, what was committed
type AutoMatchResponse struct {
	Suggestions []MatchSuggestionResponse `json:"suggestions"`
	Clearings   []ClearingResponse        `json:"clearings,omitempty"`
	Failed      []AutoMatchFailure        `json:"failed,omitempty"`
}

// ClearingHandler serves open items and clearings
type ClearingHandler struct {
	BaseHandler
	service *appfinance.ClearingService
}

// NewClearingHandler creates a new ClearingHandler
func NewClearingHandler(service *appfinance.ClearingService) *ClearingHandler {
	return &ClearingHandler{service: service}
}

// Routes returns the open item and clearing routes
func (h *ClearingHandler) Routes() []*router.DomainGroup {
	openItems := router.NewDomainGroup("open items", "/open-items").
		GET("", h.ListOpenItems).
		POST("/clear", h.Clear).
		POST("/auto-match", h.AutoMatch)
	clearings := router.NewDomainGroup("clearings", "/clearings").
		GET("/:id", h.GetClearing).
		POST("/:id/reverse", h.Reverse)
	return []*router.DomainGroup{openItems, clearings}
}

// ListOpenItems GET /open-items
func (h *ClearingHandler) ListOpenItems(c *gin.Context) {
	query := OpenItemListQuery{ListRequest: dto.DefaultListRequest()}
	if !h.bindQuery(c, &query) {
		return
	}
	filter, err := openItemFilterFrom(query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.service.ListOpenItems(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := lo.Map(page.Items, func(o finance.OpenItem, _ int) OpenItemResponse { return toOpenItemResponse(&o) })
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

func openItemFilterFrom(q OpenItemListQuery) (finance.OpenItemFilter, error) {
	filter := finance.OpenItemFilter{
		Filter:   filterFrom(q.ListRequest),
		Currency: strings.ToUpper(q.Currency),
	}
	if q.ControlAccount != "" {
		control := finance.ControlAccount(q.ControlAccount)
		if !control.IsValid() {
			return filter, shared.NewValidationError("Unknown control account %s", q.ControlAccount)
		}
		filter.ControlAccount = &control
	}
	if q.DocumentKind != "" {
		kind := finance.Kind(q.DocumentKind)
		if !kind.IsValid() {
			return filter, shared.NewValidationError("Unknown document kind %s", q.DocumentKind)
		}
		filter.DocumentKind = &kind
	}
	for _, s := range strings.Split(q.Status, ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter.Statuses = append(filter.Statuses, finance.OpenItemStatus(s))
		}
	}
	var err error
	if filter.CounterpartyID, err = parseOptionalUUID(q.CounterpartyID, "counterparty_id"); err != nil {
		return filter, err
	}
	return filter, nil
}

// Clear POST /open-items/clear
func (h *ClearingHandler) Clear(c *gin.Context) {
	var req finance.ClearingInput
	if !h.bindJSON(c, &req) {
		return
	}
	clearing, err := h.service.Clear(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toClearingResponse(clearing))
}

// AutoMatch POST /open-items/auto-match
func (h *ClearingHandler) AutoMatch(c *gin.Context) {
	var req AutoMatchRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	suggestions, err := h.service.SuggestMatches(ctx, req.SuggestMatchesInput)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := AutoMatchResponse{
		Suggestions: lo.Map(suggestions, func(s finance.MatchSuggestion, _ int) MatchSuggestionResponse {
			return toMatchSuggestionResponse(s)
		}),
	}
	if !req.Apply {
		h.Success(c, resp)
		return
	}

	notes := req.Notes
	if notes == "" {
		notes = "Auto-matched"
	}
	// each pair commits on its own so one stale pair does not block the rest
	for i, s := range suggestions {
		clearing, err := h.service.Clear(ctx, finance.ClearingInput{Group: s.Group(), Notes: notes})
		if err != nil {
			de, ok := shared.AsDomainError(err)
			if !ok {
				h.HandleError(c, err)
				return
			}
			resp.Failed = append(resp.Failed, AutoMatchFailure{
				Suggestion: resp.Suggestions[i],
				Code:       de.Code,
				Message:    de.Message,
			})
			continue
		}
		resp.Clearings = append(resp.Clearings, toClearingResponse(clearing))
	}
	h.Success(c, resp)
}

// GetClearing GET /clearings/:id
func (h *ClearingHandler) GetClearing(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	clearing, err := h.service.GetClearing(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toClearingResponse(clearing))
}

// Reverse POST /clearings/:id/reverse
func (h *ClearingHandler) Reverse(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req appfinance.ReverseClearingInput
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	clearing, err := h.service.Reverse(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toClearingResponse(clearing))
}
