package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"templateflow/pkg/logger"
	"templateflow/pkg/otel"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware makes sure every request and its response carry an
// X-Request-ID, reusing the client's value when provided.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// traceMiddleware continues the caller's trace, if any, opens the request
// span and makes the server tracer available to handlers. It wraps the access
// logger so request lines carry the trace id.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := gotel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = otel.InjectTracing(ctx, s.tracer)
		ctx, span := s.tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequest is the access log formatter for handlers.CustomLoggingHandler.
func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Info(p.Request.Context(), "request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp).String(),
		"request_id", p.Request.Header.Get(requestIDHeader),
	)
}

// recoveryLogger adapts the logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	log *logger.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.log.Error(context.Background(), "handler panic", "panic", fmt.Sprint(args...))
}
