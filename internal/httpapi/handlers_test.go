package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"uspguard.org/internal/auth"
	"uspguard.org/internal/catalog"
	"uspguard.org/internal/compliance"
)

const testBootstrapKey = "bootstrap-test-key"

type apiClient struct {
	baseURL string
	client  *http.Client
	engine  *compliance.InMemory
	signer  *auth.Signer
	t       *testing.T
}

func newTestAPI(t *testing.T, authEnabled bool) *apiClient {
	t.Helper()
	return newTestAPIWithOptions(t, Options{AuthEnabled: authEnabled})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *apiClient {
	t.Helper()

	signer, err := auth.NewSigner([]byte(strings.Repeat("s", auth.MinSecretBytes)))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	opts.Signer = signer
	opts.BootstrapKey = testBootstrapKey
	opts.RateBurst = 1000
	opts.RatePerSec = 1000

	engine := compliance.NewInMemory()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if _, err := catalog.Apply(context.Background(), engine, cat); err != nil {
		t.Fatalf("apply catalog: %v", err)
	}

	api := New(ReadyProbe{}, "test", engine, opts)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		engine:  engine,
		signer:  signer,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

// mustUser stores a user directly in the engine.
func (c *apiClient) mustUser(username, role string) compliance.User {
	c.t.Helper()
	u, err := c.engine.CreateUser(context.Background(), compliance.NewUser{Username: username, FullName: username, Role: role})
	if err != nil {
		c.t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// obtainToken mints a token for an existing user with the bootstrap key.
func (c *apiClient) obtainToken(username string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"username": username}, map[string]string{bootstrapKeyHeader: testBootstrapKey})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type list[T any] struct {
	Items []T `json:"items"`
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func TestAPIComplianceFlow(t *testing.T) {
	api := newTestAPI(t, true)
	api.mustUser("jdoe", auth.RolePharmacist)
	token := api.obtainToken("jdoe")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.get("/v1/chapters", nil, authHeader)
	expectStatus(t, resp, http.StatusOK)
	chapters := decode[list[compliance.Chapter]](t, resp)
	if len(chapters.Items) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(chapters.Items))
	}
	ch := chapters.Items[0]

	resp = api.get("/v1/requirements", url.Values{"chapter_id": {fmt.Sprint(ch.ID)}}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	reqs := decode[list[compliance.Requirement]](t, resp).Items
	if len(reqs) == 0 {
		t.Fatal("expected requirements for chapter")
	}

	// Mark every requirement of the first chapter Met.
	for _, req := range reqs {
		resp = api.post("/v1/compliance", map[string]any{
			"requirement_id": req.ID,
			"pharmacy_id":    "Central",
			"status":         "Met",
		}, authHeader)
		expectStatus(t, resp, http.StatusCreated)
		rec := decode[compliance.Compliance](t, resp)
		if rec.UpdatedBy == nil || *rec.UpdatedBy != 1 {
			t.Fatalf("expected record attributed to user 1, got %v", rec.UpdatedBy)
		}
	}

	resp = api.get("/v1/compliance/summary", url.Values{"pharmacy_id": {"Central"}}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	summary := decode[struct {
		Overall  int                         `json:"overall"`
		Chapters []compliance.ChapterSummary `json:"chapters"`
	}](t, resp)
	// One chapter at 100, two untouched chapters at 0.
	if summary.Overall != 33 {
		t.Fatalf("expected overall 33, got %d", summary.Overall)
	}
	if summary.Chapters[0].Status != compliance.TierSuccess {
		t.Fatalf("unexpected tier: %s", summary.Chapters[0].Status)
	}

	resp = api.get(fmt.Sprintf("/v1/chapters/%d/compliance", ch.ID), url.Values{"pharmacy_id": {"Central"}}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	if got := len(decode[list[compliance.ComplianceDetail]](t, resp).Items); got != len(reqs) {
		t.Fatalf("expected %d joined records, got %d", len(reqs), got)
	}

	resp = api.post("/v1/risk-assessments", map[string]any{
		"title":       "Hood certification lapse",
		"pharmacy_id": "Central",
		"likelihood":  4,
		"impact":      5,
		"owner":       "Jane",
	}, authHeader)
	expectStatus(t, resp, http.StatusCreated)
	risk := decode[compliance.RiskAssessment](t, resp)
	if risk.RiskLevel != 20 || risk.MitigationStatus != "Open" {
		t.Fatalf("unexpected risk: %+v", risk)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/risk-assessments/%d", risk.ID), map[string]any{"impact": 2}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[compliance.RiskAssessment](t, resp).RiskLevel; got != 8 {
		t.Fatalf("expected recomputed risk level 8, got %d", got)
	}

	resp = api.get("/v1/dashboard", url.Values{"pharmacy_id": {"Central"}}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	view := decode[compliance.DashboardView](t, resp)
	if view.OverallCompliance != 33 {
		t.Fatalf("unexpected dashboard overall: %d", view.OverallCompliance)
	}
	if len(view.RecentActivity) != 4 {
		t.Fatalf("expected 4 recent activity entries, got %d", len(view.RecentActivity))
	}

	resp = api.get("/v1/audits", url.Values{"pharmacy_id": {"Central"}, "limit": {"2"}}, authHeader)
	expectStatus(t, resp, http.StatusOK)
	audits := decode[list[compliance.AuditEntry]](t, resp).Items
	if len(audits) != 2 || audits[0].ResourceType != compliance.ResourceRiskAssessment || audits[0].Action != compliance.ActionUpdate {
		t.Fatalf("unexpected audits: %+v", audits)
	}
}

func TestAPIDocumentLifecycle(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.post("/v1/documents", map[string]any{
		"title":       "Cleaning SOP",
		"filename":    "sop.pdf",
		"type":        "SOP",
		"version":     "1.0",
		"pharmacy_id": "Central",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	doc := decode[compliance.Document](t, resp)

	resp = api.get("/v1/documents", url.Values{"pharmacy_id": {"Central"}, "recent": {"1"}}, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := len(decode[list[compliance.Document]](t, resp).Items); got != 1 {
		t.Fatalf("expected 1 recent document, got %d", got)
	}

	path := fmt.Sprintf("/v1/documents/%d", doc.ID)
	resp = api.do(http.MethodDelete, path, nil, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, path, nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = api.get(path, nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestAPIErrorMapping(t *testing.T) {
	api := newTestAPI(t, false)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown id", http.MethodGet, "/v1/tasks/999", nil, http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/v1/tasks/abc", nil, http.StatusNotFound},
		{"dangling requirement", http.MethodPost, "/v1/compliance", map[string]any{
			"requirement_id": 999, "pharmacy_id": "Central", "status": "Met",
		}, http.StatusUnprocessableEntity},
		{"bad status", http.MethodPost, "/v1/compliance", map[string]any{
			"requirement_id": 1, "pharmacy_id": "Central", "status": "Done",
		}, http.StatusBadRequest},
		{"likelihood out of range", http.MethodPost, "/v1/risk-assessments", map[string]any{
			"title": "x", "pharmacy_id": "Central", "likelihood": 6, "impact": 1,
		}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/gap-analyses", map[string]any{
			"title": "x", "pharmacy_id": "Central", "owner": "nobody",
		}, http.StatusBadRequest},
		{"duplicate chapter", http.MethodPost, "/v1/chapters", map[string]any{
			"number": "795", "title": "Nonsterile",
		}, http.StatusConflict},
		{"wrong method", http.MethodPut, "/v1/chapters", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.do(tc.method, tc.path, tc.body, nil)
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}

	resp := api.get("/v1/tasks", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[map[string]any](t, resp)
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("expected error and request_id, got %v", body)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.post("/v1/gap-analyses", map[string]any{
		"title":       "Annual",
		"pharmacy_id": "Central",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}

	api.mustUser("sam", auth.RoleViewer)
	viewer := map[string]string{"Authorization": "Bearer " + api.obtainToken("sam")}
	resp = api.get("/v1/chapters", nil, viewer)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.post("/v1/gap-analyses", map[string]any{
		"title":       "Annual",
		"pharmacy_id": "Central",
	}, viewer)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.get("/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestAPIWithoutAuthActsAsSystem(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.post("/v1/tasks", map[string]any{
		"title":       "Recertify hood",
		"pharmacy_id": "Central",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	task := decode[compliance.Task](t, resp)
	if task.Status != "Pending" || task.Priority != "Medium" {
		t.Fatalf("expected defaults, got %+v", task)
	}

	audits, err := api.engine.ListAudits(context.Background(), "Central", 0)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 1 || audits[0].UserID != nil {
		t.Fatalf("expected one system audit, got %+v", audits)
	}
}

func TestTokenEndpointRequiresCredential(t *testing.T) {
	api := newTestAPI(t, true)
	admin := api.mustUser("admin", auth.RoleAdmin)
	api.mustUser("sam", auth.RoleViewer)
	body := map[string]any{"username": "admin"}

	resp := api.post("/v1/auth/token", body, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = api.post("/v1/auth/token", body, map[string]string{bootstrapKeyHeader: "guess"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	viewer := map[string]string{"Authorization": "Bearer " + api.obtainToken("sam")}
	resp = api.post("/v1/auth/token", body, viewer)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	adminHeader := map[string]string{"Authorization": "Bearer " + api.obtainToken("admin")}
	resp = api.post("/v1/auth/token", map[string]any{"username": "sam"}, adminHeader)
	expectStatus(t, resp, http.StatusOK)
	issued := decode[tokenResponse](t, resp)
	if issued.Role != auth.RoleViewer || issued.UserID == admin.ID {
		t.Fatalf("expected a viewer token for sam, got %+v", issued)
	}

	resp = api.post("/v1/auth/token", map[string]any{"username": "ghost"}, adminHeader)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestTokenEndpointIgnoresRequestedRoles(t *testing.T) {
	api := newTestAPI(t, true)
	api.mustUser("sam", auth.RoleViewer)
	key := map[string]string{bootstrapKeyHeader: testBootstrapKey}

	resp := api.post("/v1/auth/token", map[string]any{"username": "sam", "roles": []string{"admin"}}, key)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.post("/v1/auth/token", map[string]any{"username": "sam"}, key)
	expectStatus(t, resp, http.StatusOK)
	issued := decode[tokenResponse](t, resp)
	if issued.Role != auth.RoleViewer {
		t.Fatalf("expected stored role viewer, got %s", issued.Role)
	}

	resp = api.post("/v1/gap-analyses", map[string]any{"title": "Annual", "pharmacy_id": "Central"},
		map[string]string{"Authorization": "Bearer " + issued.Token})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestAPIRejectsForgedTokens(t *testing.T) {
	api := newTestAPI(t, true)
	tech := api.mustUser("msmith", auth.RoleTechnician)
	gap := map[string]any{"title": "Annual", "pharmacy_id": "Central"}

	// A token claiming admin for a stored technician is held to the stored role.
	elevated, _, err := api.signer.Issue(auth.Identity{UserID: tech.ID, Role: auth.RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp := api.post("/v1/gap-analyses", gap, map[string]string{"Authorization": "Bearer " + elevated})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Correctly signed, but for a user that does not exist.
	ghost, _, err := api.signer.Issue(auth.Identity{UserID: 999, Role: auth.RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = api.post("/v1/gap-analyses", gap, map[string]string{"Authorization": "Bearer " + ghost})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	other, err := auth.NewRandomSigner()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	foreign, _, err := other.Issue(auth.Identity{UserID: tech.ID, Role: auth.RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = api.get("/v1/chapters", nil, map[string]string{"Authorization": "Bearer " + foreign})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	audits, err := api.engine.ListAudits(context.Background(), "Central", 0)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 0 {
		t.Fatalf("rejected requests must not mutate state: %+v", audits)
	}
}

func TestAPIHonorsConfiguredBodyLimit(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"title":       strings.Repeat("a", 1500*1024),
		"filename":    "big.pdf",
		"pharmacy_id": "Central",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	send := func(limit int64) *httptest.ResponseRecorder {
		h := New(ReadyProbe{}, "test", compliance.NewInMemory(), Options{MaxBodyBytes: limit}).Handler()
		req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(2 << 20); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 under a 2MiB limit, got %d: %s", rr.Code, rr.Body.String())
	}
	rr := send(1 << 20)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 under a 1MiB limit, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "exceeds") {
		t.Fatalf("expected size error, got %s", rr.Body.String())
	}
}

func TestAPITaskDueDateCanBeCleared(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.post("/v1/tasks", map[string]any{
		"title":       "Recertify hood",
		"pharmacy_id": "Central",
		"due_date":    time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	task := decode[compliance.Task](t, resp)
	if task.DueDate == nil {
		t.Fatal("expected due date")
	}
	path := fmt.Sprintf("/v1/tasks/%d", task.ID)

	resp = api.do(http.MethodPatch, path, map[string]any{
		"clear_due_date": true,
		"due_date":       time.Now().UTC().Format(time.RFC3339),
	}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, path, map[string]any{"clear_due_date": true}, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[compliance.Task](t, resp); got.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", got.DueDate)
	}
}

func TestAPIDuplicateUsernameConflicts(t *testing.T) {
	api := newTestAPI(t, false)
	user := map[string]any{"username": "jdoe", "full_name": "Jane Doe", "role": "pharmacist"}

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := api.post("/v1/users", user, nil)
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	if counts[http.StatusCreated] != 1 || counts[http.StatusConflict] != n-1 {
		t.Fatalf("expected one 201 and %d 409s, got %v", n-1, counts)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t, true)
	key := map[string]string{bootstrapKeyHeader: testBootstrapKey}

	for _, body := range []map[string]any{
		{"username": ""},
		{"username": "  "},
		{"user": "jdoe"},
	} {
		resp := api.post("/v1/auth/token", body, key)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestReadyReflectsProbe(t *testing.T) {
	api := New(failingReadiness{}, "test", compliance.NewInMemory(), Options{})
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
