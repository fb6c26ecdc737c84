package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProfilingWithConfig_RunsHandler(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := DefaultProfilingConfig()
		cfg.Enabled = enabled

		called := false
		r := gin.New()
		r.Use(ProfilingWithConfig(cfg))
		r.GET("/api/v1/open-items", func(c *gin.Context) {
			called = true
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/open-items", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
	}
}

func TestProfilingWithConfig_SkipPrefix(t *testing.T) {
	cfg := DefaultProfilingConfig()
	cfg.SkipPathPrefixes = []string{"/debug"}

	r := gin.New()
	r.Use(ProfilingWithConfig(cfg))
	r.GET("/debug/vars", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfilingLabels(t *testing.T) {
	agency := uuid.New()
	var labels map[string]string

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CallerKey, shared.Caller{UserID: uuid.New(), Scope: shared.AgencyScope(agency)})
		c.Next()
	})
	r.POST("/api/v1/accounts-payable/invoices/:id/approve", func(c *gin.Context) {
		labels = ProfilingLabels(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/accounts-payable/invoices/42/approve", nil))

	assert.Equal(t, map[string]string{
		telemetry.ProfilingLabelRoute:     "/api/v1/accounts-payable/invoices/:id/approve",
		telemetry.ProfilingLabelMethod:    http.MethodPost,
		telemetry.ProfilingLabelOperation: "accounts-payable/invoices",
		telemetry.ProfilingLabelAgencyID:  agency.String(),
	}, labels)
}

func TestResourceFromRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/open-items":                            "open-items",
		"/api/v1/open-items/:id":                        "open-items",
		"/api/v2/general-ledger/recurring-journals":     "general-ledger/recurring-journals",
		"/api/v1/accounts-receivable/invoices/:id/post": "accounts-receivable/invoices",
		"/api/v1/clearings/auto-match/preview":          "clearings/auto-match",
		"/:id":    "",
		"":        "",
		"/health": "health",
	}
	for route, want := range tests {
		assert.Equal(t, want, resourceFromRoute(route), route)
	}
	assert.True(t, isVersionSegment("v12"))
	assert.False(t, isVersionSegment("vendors"))
}
