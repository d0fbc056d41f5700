package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"templateflow/pkg/logger"
	"templateflow/pkg/otel"
	"templateflow/pkg/template"
	"templateflow/pkg/template/memory"
)

func newTestServer(t *testing.T, repo template.Repository, ids template.IDGenerator) http.Handler {
	t.Helper()
	if ids == nil {
		ids = template.CountIDs{Repo: repo}
	}
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	return New(repo, ids, log, tp.Tracer("test")).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestScenario(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)

	rec := do(t, h, http.MethodPost, "/create_template", `{"subject":"Hi","body":"World"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	want := template.Template{ID: 1, Subject: "Hi", Body: "World"}
	if diff := cmp.Diff(want, decode[template.Template](t, rec)); diff != "" {
		t.Fatalf("create mismatch (-want +got):\n%s", diff)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = do(t, h, http.MethodGet, "/read_template?id=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rec.Code)
	}
	if diff := cmp.Diff(want, decode[template.Template](t, rec)); diff != "" {
		t.Fatalf("read mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/read_template?id=99", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("read missing: expected 200 null, got %d %q", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodDelete, "/delete_template?id=1", "")
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("delete: expected empty 204, got %d %q", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/select_templates", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("select: expected 200 [], got %d %q", rec.Code, rec.Body)
	}
}

func TestUpdateForcesQueryID(t *testing.T) {
	repo := memory.New()
	h := newTestServer(t, repo, nil)

	rec := do(t, h, http.MethodPut, "/update_template?id=7", `{"id":3,"subject":"S","body":"B"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	want := template.Template{ID: 7, Subject: "S", Body: "B"}
	if diff := cmp.Diff(want, decode[template.Template](t, rec)); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}
	got, ok, err := repo.Read(context.Background(), 7)
	if err != nil || !ok {
		t.Fatalf("expected template 7 to be stored, ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stored mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := repo.Read(context.Background(), 3); ok {
		t.Fatal("body id must not be used")
	}
}

func TestDeleteMissingIsNoContent(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodDelete, "/delete_template?id=5", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	}
}

func TestSelectAndCount(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	for _, subject := range []string{"Welcome", "Invoice", "Reminder"} {
		body := fmt.Sprintf(`{"subject":%q,"body":"text"}`, subject)
		if rec := do(t, h, http.MethodPost, "/create_template", body); rec.Code != http.StatusOK {
			t.Fatalf("create %s: %d", subject, rec.Code)
		}
	}
	do(t, h, http.MethodDelete, "/delete_template?id=2", "")

	rec := do(t, h, http.MethodGet, "/select_templates", "")
	got := decode[[]template.Template](t, rec)
	want := []template.Template{
		{ID: 1, Subject: "Welcome", Body: "text"},
		{ID: 3, Subject: "Reminder", Body: "text"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("select mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/select_templates?q=remind", "")
	if got := decode[[]template.Template](t, rec); len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("filtered select: unexpected %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/count_templates", "")
	if got := decode[countResponse](t, rec); got.Count != 2 {
		t.Fatalf("expected count 2, got %d", got.Count)
	}
}

func TestSelectSortsExtremeIDs(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	for _, id := range []int{math.MaxInt, -5, 0} {
		if err := repo.Create(ctx, id, template.Template{ID: id}); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	h := newTestServer(t, repo, nil)

	got := decode[[]template.Template](t, do(t, h, http.MethodGet, "/select_templates", ""))
	var ids []int
	for _, tmpl := range got {
		ids = append(ids, tmpl.ID)
	}
	if diff := cmp.Diff([]int{-5, 0, math.MaxInt}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name, method, target, body string
	}{
		{"read without id", http.MethodGet, "/read_template", ""},
		{"read with empty id", http.MethodGet, "/read_template?id=", ""},
		{"read with text id", http.MethodGet, "/read_template?id=abc", ""},
		{"read with overflowing id", http.MethodGet, "/read_template?id=99999999999", ""},
		{"delete without id", http.MethodDelete, "/delete_template", ""},
		{"update without id", http.MethodPut, "/update_template", `{"subject":"S","body":"B"}`},
		{"update missing body field", http.MethodPut, "/update_template?id=1", `{"subject":"S"}`},
		{"create malformed json", http.MethodPost, "/create_template", `{"subject":`},
		{"create empty body", http.MethodPost, "/create_template", ""},
		{"create missing subject", http.MethodPost, "/create_template", `{"body":"B"}`},
		{"create wrong type", http.MethodPost, "/create_template", `{"subject":1,"body":"B"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &countingRepo{Repository: memory.New()}
			h := newTestServer(t, repo, nil)
			rec := do(t, h, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
			if strings.TrimSpace(rec.Body.String()) == "" {
				t.Fatal("expected an error message")
			}
			if repo.calls != 0 {
				t.Fatalf("store must not be called on invalid input, got %d calls", repo.calls)
			}
		})
	}
}

func TestCreateAllowsEmptyStrings(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	rec := do(t, h, http.MethodPost, "/create_template", `{"subject":"","body":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestStoreFailuresAreServerErrors(t *testing.T) {
	h := newTestServer(t, brokenRepo{}, nil)
	tests := []struct {
		method, target, body, message string
	}{
		{http.MethodPost, "/create_template", `{"subject":"S","body":"B"}`, template.ErrRead.Error()},
		{http.MethodGet, "/read_template?id=1", "", template.ErrRead.Error()},
		{http.MethodPut, "/update_template?id=1", `{"subject":"S","body":"B"}`, template.ErrWrite.Error()},
		{http.MethodDelete, "/delete_template?id=1", "", template.ErrWrite.Error()},
		{http.MethodGet, "/select_templates", "", template.ErrRead.Error()},
		{http.MethodGet, "/count_templates", "", template.ErrRead.Error()},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.target, tt.body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: expected 500, got %d", tt.method, tt.target, rec.Code)
			continue
		}
		body := rec.Body.String()
		if !strings.Contains(body, tt.message) {
			t.Errorf("%s %s: expected message %q, got %q", tt.method, tt.target, tt.message, body)
		}
		if strings.Contains(body, "disk on fire") {
			t.Errorf("%s %s: response leaks internal cause: %q", tt.method, tt.target, body)
		}
	}
}

func TestWrongMethod(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	if rec := do(t, h, http.MethodGet, "/create_template", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)

	req := httptest.NewRequest(http.MethodGet, "/select_templates", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allow origin *, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/update_template?id=1", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("preflight: expected allow origin *, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)

	rec := do(t, h, http.MethodGet, "/count_templates", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/count_templates", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestSwaggerDoc(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	rec := do(t, h, http.MethodGet, "/swagger/doc.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/create_template") {
		t.Fatal("expected the API document to describe /create_template")
	}
}

func TestConcurrentCreates(t *testing.T) {
	repo := memory.New()
	h := newTestServer(t, repo, template.NewSequence(repo))
	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"subject":"s%d","body":"b"}`, i)
			if rec := do(t, h, http.MethodPost, "/create_template", body); rec.Code != http.StatusOK {
				t.Errorf("create %d: %d", i, rec.Code)
			}
		}(i)
	}
	wg.Wait()

	rec := do(t, h, http.MethodGet, "/select_templates", "")
	got := decode[[]template.Template](t, rec)
	if len(got) != n {
		t.Fatalf("expected %d distinct templates with sequence ids, got %d", n, len(got))
	}
	seen := map[int]bool{}
	for _, tmpl := range got {
		if seen[tmpl.ID] {
			t.Fatalf("duplicate id %d", tmpl.ID)
		}
		seen[tmpl.ID] = true
	}
}

func TestConcurrentCreatesWithCountIDs(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"subject":"s%d","body":"b"}`, i)
			if rec := do(t, h, http.MethodPost, "/create_template", body); rec.Code != http.StatusOK {
				t.Errorf("create %d: %d", i, rec.Code)
			}
		}(i)
	}
	wg.Wait()

	got := decode[[]template.Template](t, do(t, h, http.MethodGet, "/select_templates", ""))
	if len(got) == 0 || len(got) > n {
		t.Fatalf("expected between 1 and %d templates, got %d", n, len(got))
	}
	// Creates that read the same count share an id and overwrite each other.
	t.Logf("%d concurrent creates left %d templates", n, len(got))
}

func TestSequenceSkipsUpdatedIDs(t *testing.T) {
	repo := memory.New()
	h := newTestServer(t, repo, template.NewSequence(repo))

	if got := decode[template.Template](t, do(t, h, http.MethodPost, "/create_template", `{"subject":"first","body":"b"}`)); got.ID != 1 {
		t.Fatalf("expected id 1, got %d", got.ID)
	}
	if rec := do(t, h, http.MethodPut, "/update_template?id=2", `{"subject":"keep","body":"b"}`); rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	if got := decode[template.Template](t, do(t, h, http.MethodPost, "/create_template", `{"subject":"new","body":"b"}`)); got.ID != 3 {
		t.Fatalf("expected id 3 after upsert of 2, got %d", got.ID)
	}
	kept, ok, err := repo.Read(context.Background(), 2)
	if err != nil || !ok || kept.Subject != "keep" {
		t.Fatalf("upserted template 2 was overwritten: %+v ok=%v err=%v", kept, ok, err)
	}
}

func TestAccessLogCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	log := logger.New(&buf, logger.LevelInfo, "test", otel.GetTraceID)
	h := New(memory.New(), template.CountIDs{Repo: memory.New()}, log, tp.Tracer("test")).Handler()

	do(t, h, http.MethodGet, "/count_templates", "")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry["msg"] != "request" {
			continue
		}
		if id, _ := entry["trace_id"].(string); len(id) != 32 {
			t.Fatalf("expected a trace id on the access log line, got %v", entry)
		}
		return
	}
	t.Fatalf("no access log line in %q", buf.String())
}

func TestCountIDsReuseAfterDelete(t *testing.T) {
	h := newTestServer(t, memory.New(), nil)
	do(t, h, http.MethodPost, "/create_template", `{"subject":"a","body":"1"}`)
	do(t, h, http.MethodPost, "/create_template", `{"subject":"b","body":"2"}`)
	do(t, h, http.MethodDelete, "/delete_template?id=1", "")
	rec := do(t, h, http.MethodPost, "/create_template", `{"subject":"c","body":"3"}`)
	if got := decode[template.Template](t, rec); got.ID != 2 {
		t.Fatalf("count based ids should yield 2, got %d", got.ID)
	}
	rec = do(t, h, http.MethodGet, "/select_templates", "")
	if got := decode[[]template.Template](t, rec); len(got) != 1 || got[0].Subject != "c" {
		t.Fatalf("expected the colliding create to overwrite id 2, got %+v", got)
	}
}

type countingRepo struct {
	template.Repository
	mu    sync.Mutex
	calls int
}

func (r *countingRepo) inc() {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *countingRepo) Create(ctx context.Context, id int, t template.Template) error {
	r.inc()
	return r.Repository.Create(ctx, id, t)
}

func (r *countingRepo) Read(ctx context.Context, id int) (template.Template, bool, error) {
	r.inc()
	return r.Repository.Read(ctx, id)
}

func (r *countingRepo) Update(ctx context.Context, id int, t template.Template) error {
	r.inc()
	return r.Repository.Update(ctx, id, t)
}

func (r *countingRepo) Delete(ctx context.Context, id int) error {
	r.inc()
	return r.Repository.Delete(ctx, id)
}

func (r *countingRepo) Count(ctx context.Context) (int, error) {
	r.inc()
	return r.Repository.Count(ctx)
}

func (r *countingRepo) Select(ctx context.Context, pred template.Predicate) ([]template.Template, error) {
	r.inc()
	return r.Repository.Select(ctx, pred)
}

// brokenRepo fails every call the way an unavailable backend does.
type brokenRepo struct{}

var errCause = fmt.Errorf("disk on fire")

func (brokenRepo) Create(context.Context, int, template.Template) error {
	return fmt.Errorf("%w: %w", template.ErrWrite, errCause)
}

func (brokenRepo) Read(context.Context, int) (template.Template, bool, error) {
	return template.Template{}, false, fmt.Errorf("%w: %w", template.ErrRead, errCause)
}

func (brokenRepo) Update(context.Context, int, template.Template) error {
	return fmt.Errorf("%w: %w", template.ErrWrite, errCause)
}

func (brokenRepo) Delete(context.Context, int) error {
	return fmt.Errorf("%w: %w", template.ErrWrite, errCause)
}

func (brokenRepo) Count(context.Context) (int, error) {
	return 0, fmt.Errorf("%w: %w", template.ErrRead, errCause)
}

func (brokenRepo) Select(context.Context, template.Predicate) ([]template.Template, error) {
	return nil, fmt.Errorf("%w: %w", template.ErrRead, errCause)
}
