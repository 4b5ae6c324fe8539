package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"soundoff.org/internal/audit"
	"soundoff.org/internal/auth"
	"soundoff.org/internal/guard"
	"soundoff.org/internal/ratelimit"
	"soundoff.org/internal/results"
	"soundoff.org/internal/stream"
)

const (
	testOwnerID = "7b41e3a8-1f4d-4e0a-9c2b-6a8f0d3e5c17"
	testOtherID = "2c93f1d5-8b6e-4f27-a0d4-91c3e7b5f842"
	testAdminID = "e5a0c2b7-3d19-48f6-b8e1-74d2a6c90f35"
	testCompID  = "a1b2c3d4-e5f6-4789-8abc-def012345678"
	testOrgID   = "f4d8a9c1-6b2e-4573-9e0a-82c5d1b7f694"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *results.InMemory
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("SOUNDOFF_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := results.NewInMemory()
	store.PutCompetition(results.Competition{
		ID:              testCompID,
		Name:            "Bass Wars Regional",
		Active:          true,
		StartsAt:        time.Now().Add(-24 * time.Hour),
		EndsAt:          time.Now().Add(24 * time.Hour),
		ResultsDeadline: time.Now().Add(48 * time.Hour),
	})

	ev, err := guard.NewEvaluator(store, ratelimit.NewMemory(), audit.NewMemory())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	api := New(ReadyProbe{}, "test", ev, store, stream.New())
	api.SetTransportRateLimit(200, 200)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func (c *apiClient) tokenFor(actor guard.Actor) string {
	c.t.Helper()
	token, err := auth.GenerateToken(actor, time.Hour)
	if err != nil {
		c.t.Fatalf("generate token: %v", err)
	}
	return token
}

func competitorToken(c *apiClient, id string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.tokenFor(guard.Actor{
		ID:         id,
		Membership: guard.MembershipCompetitor,
		Permissions: []guard.Permission{
			guard.PermCreateResults,
			guard.PermEditOwnResults,
			guard.PermDeleteOwnResults,
		},
	})}
}

func adminToken(c *apiClient) map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.tokenFor(guard.Actor{
		ID:             testAdminID,
		Membership:     guard.MembershipAdmin,
		OrganizationID: testOrgID,
	})}
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

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/healthz", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"category":       "SPL 150+",
		"score":          158.2,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["error"] != "Authentication required" {
		t.Fatalf("unexpected error body: %v", errBody["error"])
	}
}

func TestAPIRejectsTamperedToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/results/"+uuid.NewString(), nil, map[string]string{
		"Authorization": "Bearer not.a.token",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestResultLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := competitorToken(api, testOwnerID)

	// Create: plain competitor submissions are flagged for verification.
	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"category":       "SPL 150+",
		"score":          158.2,
	}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decode[resultResponse](t, resp)
	if created.Result.OwnerID != testOwnerID {
		t.Fatalf("unexpected owner: %s", created.Result.OwnerID)
	}
	if !created.RequiresVerification {
		t.Fatal("competitor submission should require verification")
	}
	if created.Result.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", created.Result.Revision)
	}
	id := created.Result.ID

	// Read it back.
	resp = api.do(http.MethodGet, "/v1/results/"+id, nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decode[resultResponse](t, resp)
	if got.Result.Score != 158.2 {
		t.Fatalf("unexpected score: %v", got.Result.Score)
	}

	// Owner edits within the window.
	resp = api.do(http.MethodPut, "/v1/results/"+id, map[string]any{
		"category": "SPL 150+",
		"score":    159.0,
		"revision": got.Result.Revision,
	}, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	updated := decode[resultResponse](t, resp)
	if updated.Result.Score != 159.0 || updated.Result.Revision != 2 {
		t.Fatalf("unexpected updated result: %+v", updated.Result)
	}

	// Deletion demands explicit confirmation first.
	resp = api.do(http.MethodDelete, "/v1/results/"+id, nil, owner)
	if resp.StatusCode != http.StatusPreconditionRequired {
		t.Fatalf("delete without confirm: expected 428, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	confirm := map[string]string{"X-Confirm-Delete": "true"}
	for k, v := range owner {
		confirm[k] = v
	}
	resp = api.do(http.MethodDelete, "/v1/results/"+id, nil, confirm)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/results/"+id, nil, owner)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestStaleRevisionConflicts(t *testing.T) {
	api := newTestAPI(t)
	owner := competitorToken(api, testOwnerID)

	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"category":       "SQ",
		"score":          87.5,
	}, owner)
	created := decode[resultResponse](t, resp)
	id := created.Result.ID

	// First writer wins.
	resp = api.do(http.MethodPut, "/v1/results/"+id, map[string]any{
		"category": "SQ",
		"score":    88.0,
		"revision": int64(1),
	}, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Second writer pinned the old revision and must lose.
	resp = api.do(http.MethodPut, "/v1/results/"+id, map[string]any{
		"category": "SQ",
		"score":    86.0,
		"revision": int64(1),
	}, owner)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestNonOwnerEditForbidden(t *testing.T) {
	api := newTestAPI(t)
	owner := competitorToken(api, testOwnerID)
	other := competitorToken(api, testOtherID)

	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"category":       "SPL 150+",
		"score":          151.4,
	}, owner)
	created := decode[resultResponse](t, resp)

	resp = api.do(http.MethodPut, "/v1/results/"+created.Result.ID, map[string]any{
		"category": "SPL 150+",
		"score":    140.0,
	}, other)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != string(guard.ReasonOwnershipViolation) {
		t.Fatalf("unexpected denial reason: %v", body["error"])
	}
	if body["request_id"] == "" {
		t.Fatalf("expected request_id in denial body")
	}
}

func TestCreateOnBehalfRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)

	// Non-admin targeting someone else is an ownership violation.
	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"owner_id":       testOtherID,
		"category":       "SPL 150+",
		"score":          149.9,
	}, competitorToken(api, testOwnerID))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin may create on behalf; the response carries the restriction marker.
	resp = api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": testCompID,
		"owner_id":       testOtherID,
		"category":       "SPL 150+",
		"score":          149.9,
	}, adminToken(api))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[resultResponse](t, resp)
	if created.Result.OwnerID != testOtherID {
		t.Fatalf("unexpected owner: %s", created.Result.OwnerID)
	}
	if created.Result.OrganizationID != "" {
		t.Fatalf("on-behalf record inherited the caller's organization: %s", created.Result.OrganizationID)
	}
	found := false
	for _, r := range created.Restrictions {
		if r == guard.RestrictionAdminCreated {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected admin restriction, got %v", created.Restrictions)
	}
}

func TestCreateRejectsMalformedIDs(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": "not-an-identifier",
		"category":       "SPL 150+",
		"score":          150.0,
	}, competitorToken(api, testOwnerID))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMissingResultIs404(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/v1/results/"+uuid.NewString(), nil, competitorToken(api, testOwnerID))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVerifiedResultDeleteForbidden(t *testing.T) {
	api := newTestAPI(t)

	id := uuid.NewString()
	api.store.Put(results.Result{
		ID:            id,
		CompetitionID: testCompID,
		OwnerID:       testOwnerID,
		Category:      "SPL 150+",
		Score:         155.0,
		Verified:      true,
		Revision:      1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})

	headers := competitorToken(api, testOwnerID)
	headers["X-Confirm-Delete"] = "true"
	resp := api.do(http.MethodDelete, "/v1/results/"+id, nil, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != string(guard.ReasonVerifiedResultProtection) {
		t.Fatalf("unexpected denial reason: %v", body["error"])
	}
}

func TestCreationRateLimitSurfacesRetryAfter(t *testing.T) {
	api := newTestAPI(t)
	owner := competitorToken(api, testOwnerID)

	// Each submission targets a fresh competition so the duplicate check
	// never fires before the rate limiter does.
	for i := 0; i < 10; i++ {
		compID := uuid.NewString()
		api.store.PutCompetition(results.Competition{
			ID:              compID,
			Active:          true,
			ResultsDeadline: time.Now().Add(48 * time.Hour),
		})
		resp := api.do(http.MethodPost, "/v1/results", map[string]any{
			"competition_id": compID,
			"category":       "SPL 150+",
			"score":          150.0 + float64(i),
		}, owner)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submission %d: expected 201, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	compID := uuid.NewString()
	api.store.PutCompetition(results.Competition{
		ID:              compID,
		Active:          true,
		ResultsDeadline: time.Now().Add(48 * time.Hour),
	})
	resp := api.do(http.MethodPost, "/v1/results", map[string]any{
		"competition_id": compID,
		"category":       "SPL 150+",
		"score":          160.0,
	}, owner)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	body := decode[map[string]any](t, resp)
	if body["retry_after_seconds"] == nil {
		t.Fatalf("expected retry_after_seconds in body")
	}
}
