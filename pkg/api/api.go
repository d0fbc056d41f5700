// Package api exposes the template store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	_ "templateflow/docs"
	"templateflow/pkg/logger"
	"templateflow/pkg/otel"
	"templateflow/pkg/template"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 20

// Server holds the dependencies shared by every handler.
type Server struct {
	repo   template.Repository
	ids    template.IDGenerator
	log    *logger.Logger
	tracer trace.Tracer
}

// New creates a Server. ids mints the id of every created template.
func New(repo template.Repository, ids template.IDGenerator, log *logger.Logger, tracer trace.Tracer) *Server {
	return &Server{repo: repo, ids: ids, log: log, tracer: tracer}
}

// Handler returns the routed HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/create_template", s.createTemplateHandler).Methods(http.MethodPost)
	r.HandleFunc("/read_template", s.readTemplateHandler).Methods(http.MethodGet)
	r.HandleFunc("/update_template", s.updateTemplateHandler).Methods(http.MethodPut)
	r.HandleFunc("/delete_template", s.deleteTemplateHandler).Methods(http.MethodDelete)
	r.HandleFunc("/select_templates", s.selectTemplatesHandler).Methods(http.MethodGet)
	r.HandleFunc("/count_templates", s.countTemplatesHandler).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = s.traceMiddleware(h)
	h = requestIDMiddleware(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}), handlers.PrintRecoveryStack(true))(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
	)(h)
	return h
}

// writeJSON serialises v with the given status.
func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(ctx, "encode response", "error", err)
	}
}

// writeError sends err through the error adapter.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	e := toError(err)
	if e.Status >= http.StatusInternalServerError {
		s.log.Error(ctx, op, "status", e.Status, "error", err)
	} else {
		s.log.Warn(ctx, op, "status", e.Status, "error", err)
	}
	otel.RecordError(trace.SpanFromContext(ctx), err)
	http.Error(w, e.Message, e.Status)
}

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body must not be empty")
		}
		return &Error{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err}
	}
	return nil
}
