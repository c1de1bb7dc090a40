package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"participa/api/internal/auth"
	"participa/api/internal/guard"
	"participa/api/internal/rbac"
	"participa/api/internal/store"
)

func newTestHTTPServer(fs *fakeStore, limiter *fakeLimiter) *HTTPServer {
	return NewHTTPServer(newTestService(fs, limiter), zap.NewNop(), "*", nil)
}

func doRequest(t *testing.T, server *HTTPServer, method, target, token string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	payload := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, payload
}

func issueTestToken(t *testing.T, profileID, role string, expiresAt time.Time) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  profileID,
		Name: "Conta " + profileID,
		Role: role,
		JTI:  "jti_" + profileID,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestGuardEvaluateUnauthenticated(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, payload := doRequest(t, server, http.MethodGet,
		"/api/guard/evaluate?route="+rbac.RouteCitizenHome, "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["outcome"] != guard.OutcomeRedirect {
		t.Errorf("outcome = %v", payload["outcome"])
	}
	if payload["redirectTo"] != rbac.RouteLogin {
		t.Errorf("redirectTo = %v", payload["redirectTo"])
	}
	if payload["from"] != rbac.RouteCitizenHome {
		t.Errorf("from = %v", payload["from"])
	}
}

func TestGuardEvaluateExpiredSession(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)
	token := issueTestToken(t, "prf_1", "citizen", time.Now().Add(-time.Minute))

	recorder, payload := doRequest(t, server, http.MethodGet,
		"/api/guard/evaluate?route="+rbac.RouteCitizenHome, token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["outcome"] != guard.OutcomeRedirect {
		t.Errorf("outcome = %v", payload["outcome"])
	}
	if message, _ := payload["message"].(string); !strings.Contains(message, "sessão expirou") {
		t.Errorf("message = %v", payload["message"])
	}
}

func TestGuardEvaluateAuthenticatedOnLogin(t *testing.T) {
	profile := store.Profile{ID: "prf_1", DisplayName: "Gestora", Role: "gestor", IsEmailVerified: true}
	fs := &fakeStore{
		getProfileByIDFn: func(context.Context, string) (store.Profile, error) { return profile, nil },
	}
	server := newTestHTTPServer(fs, nil)
	token := issueTestToken(t, "prf_1", "gestor", time.Now().Add(time.Hour))

	_, payload := doRequest(t, server, http.MethodGet,
		"/api/guard/evaluate?route="+rbac.RouteLogin, token, "")
	if payload["outcome"] != guard.OutcomeRedirect {
		t.Errorf("outcome = %v", payload["outcome"])
	}
	if payload["redirectTo"] != rbac.RouteManagerAnalysis {
		t.Errorf("redirectTo = %v", payload["redirectTo"])
	}
}

func TestGuardEvaluateUnknownRoute(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, payload := doRequest(t, server, http.MethodGet,
		"/api/guard/evaluate?route=/no-such-page", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["outcome"] != guard.OutcomeNotFound {
		t.Errorf("outcome = %v", payload["outcome"])
	}
}

func TestGuardEvaluateRequiresRoute(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, _ := doRequest(t, server, http.MethodGet, "/api/guard/evaluate", "", "")
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestSessionEndpointNeverErrors(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		recorder, payload := doRequest(t, server, http.MethodGet, "/api/session", token, "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("token %q: status = %d", token, recorder.Code)
		}
		if payload["authenticated"] != false {
			t.Errorf("token %q: authenticated = %v", token, payload["authenticated"])
		}
	}
}

func TestSessionEndpointResolvesProfile(t *testing.T) {
	profile := store.Profile{ID: "prf_1", DisplayName: "Ana", Role: "admin", Locality: "Alvalade", IsEmailVerified: true}
	fs := &fakeStore{
		getProfileByIDFn: func(context.Context, string) (store.Profile, error) { return profile, nil },
	}
	server := newTestHTTPServer(fs, nil)
	token := issueTestToken(t, "prf_1", "admin", time.Now().Add(time.Hour))

	recorder, payload := doRequest(t, server, http.MethodGet, "/api/session", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["authenticated"] != true || payload["role"] != "admin" {
		t.Errorf("payload = %v", payload)
	}
	if payload["defaultRoute"] != rbac.RouteAdminConfig {
		t.Errorf("defaultRoute = %v", payload["defaultRoute"])
	}
}

func TestNavigationUnauthenticated(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, payload := doRequest(t, server, http.MethodGet, "/api/navigation", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["authenticated"] != false {
		t.Errorf("authenticated = %v", payload["authenticated"])
	}
	if items, ok := payload["items"].([]any); !ok || len(items) != 0 {
		t.Errorf("items = %v", payload["items"])
	}
	if payload["defaultRoute"] != rbac.RouteLogin {
		t.Errorf("defaultRoute = %v", payload["defaultRoute"])
	}
}

func TestAdminEndpointsForbiddenForCitizen(t *testing.T) {
	profile := store.Profile{ID: "prf_1", DisplayName: "Rui", Role: "citizen", IsEmailVerified: true}
	fs := &fakeStore{
		getProfileByIDFn: func(context.Context, string) (store.Profile, error) { return profile, nil },
	}
	server := newTestHTTPServer(fs, nil)
	token := issueTestToken(t, "prf_1", "citizen", time.Now().Add(time.Hour))

	recorder, payload := doRequest(t, server, http.MethodGet, "/api/admin/users", token, "")
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %v", recorder.Code, payload)
	}
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, _ := doRequest(t, server, http.MethodGet, "/api/proposals", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestRegisterReturnsDevVerificationToken(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, payload := doRequest(t, server, http.MethodPost, "/api/accounts/register", "",
		`{"email":"novo@example.pt","password":"password123","displayName":"Novo Cidadão","role":"citizen","locality":"Benfica"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %v", recorder.Code, payload)
	}
	if token, _ := payload["verificationToken"].(string); token == "" {
		t.Error("expected the verification token in the dev response")
	}
	if payload["requiresEmailVerification"] != true {
		t.Errorf("requiresEmailVerification = %v", payload["requiresEmailVerification"])
	}
}

func TestRegisterRateLimitedByAddress(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, &fakeLimiter{allow: false})

	recorder, _ := doRequest(t, server, http.MethodPost, "/api/accounts/register", "",
		`{"email":"novo@example.pt","password":"password123","displayName":"Novo"}`)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestVoteEndpointRateLimitedByGuard(t *testing.T) {
	profile := store.Profile{ID: "prf_1", DisplayName: "Rui", Role: "citizen", IsEmailVerified: true}
	fs := &fakeStore{
		getProfileByIDFn: func(context.Context, string) (store.Profile, error) { return profile, nil },
		getProposalFn: func(context.Context, string) (store.Proposal, error) {
			return store.Proposal{ID: "prp_1", Status: store.ProposalSubmitted}, nil
		},
	}
	server := newTestHTTPServer(fs, &fakeLimiter{allow: false, remaining: 0})
	token := issueTestToken(t, "prf_1", "citizen", time.Now().Add(time.Hour))

	recorder, _ := doRequest(t, server, http.MethodPost, "/api/proposals/prp_1/vote", token, `{}`)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestListProposalsForwardsSearchTerm(t *testing.T) {
	var captured store.ProposalFilters
	fs := &fakeStore{
		listProposalsFn: func(_ context.Context, filters store.ProposalFilters) ([]store.Proposal, error) {
			captured = filters
			return []store.Proposal{}, nil
		},
	}
	server := newTestHTTPServer(fs, nil)

	recorder, _ := doRequest(t, server, http.MethodGet,
		"/api/proposals?q=parque&category=ambiente&sort=votes", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if captured.Search != "parque" {
		t.Errorf("Search = %q, want %q", captured.Search, "parque")
	}
	if captured.Category != "ambiente" {
		t.Errorf("Category = %q", captured.Category)
	}
	if captured.Sort != "votes" {
		t.Errorf("Sort = %q", captured.Sort)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)

	recorder, payload := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if recorder.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("status = %d, body %v", recorder.Code, payload)
	}
}
