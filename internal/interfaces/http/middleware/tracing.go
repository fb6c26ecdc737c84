// Package middleware provides the HTTP middleware of the ledger API:
// authentication, request ids, tracing, metrics, profiling labels, rate
// limiting and request validation.
package middleware

import (
	"net/http"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	SkipPaths   []string
}

// DefaultTracingConfig returns default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ledger",
		Enabled:     true,
		SkipPaths:   []string{"/health", "/api/v1/health"},
	}
}

// Tracing returns the tracing middleware with the default configuration
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig starts a server span per request through otelgin and
// propagates incoming W3C trace context. Skipped paths get no span.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultTracingConfig().ServiceName
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	base := otelgin.Middleware(cfg.ServiceName)
	return func(c *gin.Context) {
		if _, skipped := skip[c.Request.URL.Path]; skipped {
			c.Next()
			return
		}
		base(c)
	}
}

// TracingAttributeInjector tags the request span with the request id and the
// caller's tenant. It must run after the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			attrs := make([]attribute.KeyValue, 0, 4)
			if id := c.GetString(RequestIDKey); id != "" {
				attrs = append(attrs, attribute.String("request_id", id))
			}
			if caller, ok := GetCaller(c); ok {
				attrs = append(attrs,
					attribute.String(telemetry.SpanAttrAgencyID, caller.Scope.AgencyID.String()),
					attribute.String("user_id", caller.UserID.String()),
				)
				if caller.Scope.SubAccountID != nil {
					attrs = append(attrs, attribute.String(telemetry.SpanAttrSubAccountID, caller.Scope.SubAccountID.String()))
				}
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}

// SpanErrorMarker marks the request span failed when the response status is
// 400 or above, recording the API error code the handler chose
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		code := c.GetString(dto.ErrorCodeContextKey)
		if code != "" {
			span.SetAttributes(attribute.String("error.code", code))
		}
		span.SetStatus(codes.Error, lo.Ternary(code != "", code, http.StatusText(status)))
	}
}

