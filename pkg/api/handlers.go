package api

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"templateflow/pkg/otel"
	"templateflow/pkg/template"
)

// templatePayload is the wire form of create and update bodies. Pointers
// distinguish a missing field from an empty one. An id in an update body is
// ignored in favour of the query parameter.
type templatePayload struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

func (p templatePayload) partial() (template.PartialTemplate, error) {
	switch {
	case p.Subject == nil:
		return template.PartialTemplate{}, invalid("missing required field: subject")
	case p.Body == nil:
		return template.PartialTemplate{}, invalid("missing required field: body")
	}
	return template.PartialTemplate{Subject: *p.Subject, Body: *p.Body}, nil
}

// countResponse is the body of GET /count_templates.
type countResponse struct {
	Count int `json:"count"`
}

// idParam parses the mandatory integer id query parameter.
func idParam(r *http.Request) (int, error) {
	raw, ok := r.URL.Query()["id"]
	if !ok || len(raw) == 0 || raw[0] == "" {
		return 0, invalid("missing query parameter: id")
	}
	id, err := strconv.ParseInt(raw[0], 10, 32)
	if err != nil {
		return 0, invalid("query parameter id must be an integer, got %q", raw[0])
	}
	return int(id), nil
}

// createTemplateHandler creates a new template.
// @Summary Create template
// @Description Stores a template under a newly assigned id
// @Accept json
// @Produce json
// @Param template body template.PartialTemplate true "Template"
// @Success 200 {object} template.Template
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /create_template [post]
func (s *Server) createTemplateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createTemplateHandler")
	defer span.End()

	var p templatePayload
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(ctx, w, "create template", err)
		return
	}
	partial, err := p.partial()
	if err != nil {
		s.writeError(ctx, w, "create template", err)
		return
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		s.writeError(ctx, w, "create template", err)
		return
	}
	t := partial.WithID(id)
	if err := s.repo.Create(ctx, id, t); err != nil {
		s.writeError(ctx, w, "create template", err)
		return
	}
	span.SetAttributes(attribute.Int("template.id", id))
	s.log.Debug(ctx, "template created", "id", id)
	s.writeJSON(ctx, w, http.StatusOK, t)
}

// readTemplateHandler retrieves a template by id.
// @Summary Read template
// @Description Returns the template, or null when no template has the id
// @Produce json
// @Param id query int true "Template ID"
// @Success 200 {object} template.Template
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /read_template [get]
func (s *Server) readTemplateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "readTemplateHandler")
	defer span.End()

	id, err := idParam(r)
	if err != nil {
		s.writeError(ctx, w, "read template", err)
		return
	}
	span.SetAttributes(attribute.Int("template.id", id))
	t, ok, err := s.repo.Read(ctx, id)
	if err != nil {
		s.writeError(ctx, w, "read template", err)
		return
	}
	if !ok {
		s.writeJSON(ctx, w, http.StatusOK, nil)
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, t)
}

// updateTemplateHandler replaces a template, creating it when absent.
// @Summary Update template
// @Description The id query parameter wins over any id in the body
// @Accept json
// @Produce json
// @Param id query int true "Template ID"
// @Param template body template.Template true "Template"
// @Success 200 {object} template.Template
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /update_template [put]
func (s *Server) updateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateTemplateHandler")
	defer span.End()

	id, err := idParam(r)
	if err != nil {
		s.writeError(ctx, w, "update template", err)
		return
	}
	span.SetAttributes(attribute.Int("template.id", id))
	var p templatePayload
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(ctx, w, "update template", err)
		return
	}
	partial, err := p.partial()
	if err != nil {
		s.writeError(ctx, w, "update template", err)
		return
	}
	t := partial.WithID(id)
	if err := s.repo.Update(ctx, id, t); err != nil {
		s.writeError(ctx, w, "update template", err)
		return
	}
	if o, ok := s.ids.(template.Observer); ok {
		o.Observe(id)
	}
	s.writeJSON(ctx, w, http.StatusOK, t)
}

// deleteTemplateHandler removes a template.
// @Summary Delete template
// @Description Deleting a missing id succeeds
// @Param id query int true "Template ID"
// @Success 204
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /delete_template [delete]
func (s *Server) deleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteTemplateHandler")
	defer span.End()

	id, err := idParam(r)
	if err != nil {
		s.writeError(ctx, w, "delete template", err)
		return
	}
	span.SetAttributes(attribute.Int("template.id", id))
	if err := s.repo.Delete(ctx, id); err != nil {
		s.writeError(ctx, w, "delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// selectTemplatesHandler lists templates, optionally fuzzy filtered.
// @Summary List templates
// @Produce json
// @Param q query string false "Fuzzy filter on subject and body"
// @Success 200 {array} template.Template
// @Failure 500 {string} string
// @Router /select_templates [get]
func (s *Server) selectTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "selectTemplatesHandler")
	defer span.End()

	q := r.URL.Query().Get("q")
	templates, err := s.repo.Select(ctx, template.Matching(q))
	if err != nil {
		s.writeError(ctx, w, "select templates", err)
		return
	}
	if templates == nil {
		templates = []template.Template{}
	}
	slices.SortFunc(templates, func(a, b template.Template) int { return cmp.Compare(a.ID, b.ID) })
	span.SetAttributes(attribute.Int("templates.count", len(templates)))
	s.writeJSON(ctx, w, http.StatusOK, templates)
}

// countTemplatesHandler reports how many templates are stored.
// @Summary Count templates
// @Produce json
// @Success 200 {object} countResponse
// @Failure 500 {string} string
// @Router /count_templates [get]
func (s *Server) countTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "countTemplatesHandler")
	defer span.End()

	n, err := s.repo.Count(ctx)
	if err != nil {
		s.writeError(ctx, w, "count templates", err)
		return
	}
	s.writeJSON(ctx, w, http.StatusOK, countResponse{Count: n})
}
