package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/backoffice/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("backoffice/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		members := make([]baggage.Member, 0, 2)
		for key, value := range map[string]string{
			"request_id":     obscontext.RequestIDFromContext(ctx),
			"correlation_id": obscontext.CorrelationIDFromContext(ctx),
		} {
			if value == "" {
				continue
			}
			span.SetAttributes(attribute.String(key, value))
			if member, err := baggage.NewMember(key, value); err == nil {
				members = append(members, member)
			}
		}
		if bag, err := baggage.New(members...); err == nil && len(members) > 0 {
			ctx = baggage.ContextWithBaggage(ctx, bag)
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		// The session middleware runs inside this span and attaches the actor.
		if actor := obscontext.ActorFromContext(c.Request.Context()); actor != "" {
			attrs = append(attrs, attribute.String("enduser.id", actor))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			span.AddEvent("access denied", trace.WithAttributes(attribute.Int("http.status_code", status)))
		}
		span.End()
	}
}
