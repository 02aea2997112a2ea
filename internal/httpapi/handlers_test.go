package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/latency"
	"voice-agent-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// tokenSessions stands in for the dashboard's session service.
type tokenSessions map[string]auth.Session

func (s tokenSessions) Session(_ context.Context, token string) (auth.Session, error) {
	sess, ok := s[token]
	if !ok {
		return auth.Session{}, auth.ErrNoSession
	}
	return sess, nil
}

var sessions = tokenSessions{
	"org1-member":  {UserID: "user-1", OrganizationID: "org-1", Role: rbac.RoleMember},
	"org1-viewer":  {UserID: "user-2", OrganizationID: "org-1", Role: rbac.RoleViewer},
	"org2-owner":   {UserID: "user-3", OrganizationID: "org-2", Role: rbac.RoleOwner},
	"org1-unknown": {UserID: "user-4", OrganizationID: "org-1", Role: "billing"},
}

type fixture struct {
	router *gin.Engine
	call   calls.Call
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	repo := events.NewMemoryRepo()
	rec := events.NewRecorder(repo)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	call := calls.NewInbound("org-1", "agent-1", "CA1", "+15551234567", "+15559876543", created)
	call.Transcript = []events.TranscriptItem{{Role: "user", Content: json.RawMessage(`"my account number is 1234"`)}}
	if err := store.Create(context.Background(), call); err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx := context.Background()
	transcript := json.RawMessage(`{"items":[{"role":"user","content":"my account number is 1234"}]}`)
	if _, err := rec.Record(ctx, call.ID, events.TypeTranscript, transcript, created.Add(30*time.Second)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := rec.Record(ctx, call.ID, events.TypeCallReceived, nil, created); err != nil {
		t.Fatalf("record: %v", err)
	}

	h := Handlers{
		Calls:   store,
		Events:  rec,
		Latency: latency.NewAggregator(repo, nil),
	}
	r := gin.New()
	h.Register(r.Group("/v1"), sessions)

	return fixture{router: r, call: call}
}

func (f fixture) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetCall_TenantScoped(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/v1/calls/"+f.call.ID, "org1-member")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got calls.Call
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != f.call.ID || got.Status != calls.StatusIncoming {
		t.Fatalf("unexpected call %+v", got)
	}
	if len(got.Transcript) != 1 {
		t.Fatalf("member should see the transcript, got %+v", got.Transcript)
	}

	w = f.get(t, "/v1/calls/"+f.call.ID, "org2-owner")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other organization, got %d", w.Code)
	}
}

func TestCallReads_RequireSession(t *testing.T) {
	f := newFixture(t)

	for _, suffix := range []string{"", "/events", "/latency"} {
		path := "/v1/calls/" + f.call.ID + suffix
		for _, token := range []string{"", "forged-token"} {
			w := f.get(t, path, token)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("%s token=%q: expected 401, got %d", path, token, w.Code)
			}
			if strings.Contains(w.Body.String(), "org-1") || strings.Contains(w.Body.String(), "1234") {
				t.Fatalf("%s leaked call data: %s", path, w.Body.String())
			}
		}
	}
}

func TestCallReads_UnknownRoleForbidden(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/v1/calls/"+f.call.ID, "org1-unknown")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestNoTokenIssuanceRoute(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"user_id":"u","organization_id":"org-1","role":"owner"}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestViewerSeesRedactedTranscript(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/v1/calls/"+f.call.ID, "org1-viewer")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "1234") {
		t.Fatalf("viewer saw transcript: %s", w.Body.String())
	}

	w = f.get(t, "/v1/calls/"+f.call.ID+"/events", "org1-viewer")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "1234") || !strings.Contains(w.Body.String(), `"redacted":true`) {
		t.Fatalf("transcript event not redacted: %s", w.Body.String())
	}
}

func TestListCallEvents_OrderedByOccurrence(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/v1/calls/"+f.call.ID+"/events", "org1-member")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Events []events.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(body.Events))
	}
	if body.Events[0].Type != events.TypeCallReceived || body.Events[1].Type != events.TypeTranscript {
		t.Fatalf("unexpected order: %s, %s", body.Events[0].Type, body.Events[1].Type)
	}
	if !strings.Contains(string(body.Events[1].Data), "1234") {
		t.Fatalf("member should see transcript data, got %s", body.Events[1].Data)
	}
}

func TestGetCallLatency_NoData(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/v1/calls/"+f.call.ID+"/latency", "org1-member")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no_latency_data") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
