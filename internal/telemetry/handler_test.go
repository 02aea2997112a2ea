package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/latency"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/metrics"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type failingRepo struct{ *events.MemoryRepo }

func (failingRepo) Append(ctx context.Context, e events.Event) error { return errors.New("disk full") }

type env struct {
	store  *calls.MemoryStore
	repo   *events.MemoryRepo
	router *gin.Engine
	call   calls.Call
}

func newEnv(t *testing.T, repo events.Repository) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := events.NewMemoryRepo()
	if repo == nil {
		repo = mem
	}
	store := calls.NewMemoryStore()
	clock := func() time.Time { return t0.Add(10 * time.Second) }
	resolver := calls.NewResolver(store, calls.DefaultRecencyWindow)
	resolver.Now = clock

	call := calls.NewInbound("org-1", "agent-1", "CA100", "+15551234567", "+15559876543", t0)
	require.NoError(t, store.Create(context.Background(), call))

	h := Handler{Reconciler: &lifecycle.Reconciler{
		Recorder: events.NewRecorder(repo).WithClock(clock),
		Store:    store,
		Resolver: resolver,
		Latency:  latency.NewAggregator(mem, store),
		Metrics:  metrics.New(),
		Now:      clock,
	}}
	r := gin.New()
	h.Register(r.Group("", auth.RequireStaticBearer("runtime-token")))
	return &env{store: store, repo: mem, router: r, call: call}
}

func (e *env) post(t *testing.T, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer runtime-token")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHandleEvent_EndToEndLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.post(t, `{"type":"room_connected","twilioCallSid":"CA100","roomName":"room-abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, e.call.ID, out["callId"])
	assert.Equal(t, "room_connected", out["eventType"])

	got, err := e.store.Get(context.Background(), e.call.ID)
	require.NoError(t, err)
	assert.Equal(t, "room-abc", got.RoomName)
	assert.Equal(t, calls.StatusIncoming, got.Status)

	for _, ms := range []string{"200", "300", "400"} {
		w, _ = e.post(t, `{"type":"metrics_collected","roomName":"room-abc","data":{"metricType":"eou","endOfUtteranceDelayMs":`+ms+`}}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, _ = e.post(t, `{"type":"session_complete","roomName":"room-abc","timestamp":"2026-03-01T12:00:45Z","data":{"durationMs":45000}}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err = e.store.Get(context.Background(), e.call.ID)
	require.NoError(t, err)
	assert.Equal(t, calls.StatusCompleted, got.Status)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 45, *got.DurationSeconds)
	require.NotNil(t, got.LatencyStats)
	require.NotNil(t, got.LatencyStats.EOU)
	assert.Equal(t, 300.0, got.LatencyStats.EOU.P50)

	resolved, _, err := calls.NewResolver(e.store, 0).Resolve(context.Background(), calls.Criteria{RoomName: "room-abc"})
	require.NoError(t, err)
	assert.Equal(t, e.call.ID, resolved.ID)

	evs := e.repo.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeSessionComplete, last.Type)
	assert.Equal(t, t0.Add(45*time.Second), last.OccurredAt)
	assert.Contains(t, string(last.Data), `"roomName":"room-abc"`)
}

func TestHandleEvent_Validation(t *testing.T) {
	e := newEnv(t, nil)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"type":`, "invalid_json"},
		{"missing type", `{"roomName":"room-abc"}`, "invalid_request"},
		{"unknown type", `{"type":"bogus","roomName":"room-abc"}`, "unknown_event_type"},
		{"no identifiers", `{"type":"transcript"}`, "invalid_request"},
		{"caller without agent", `{"type":"transcript","callerPhoneNumber":"+15551234567"}`, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, out := e.post(t, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.code, out["error"])
		})
	}
	assert.Empty(t, e.repo.Events())
}

func TestHandleEvent_UnknownCall(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.post(t, `{"type":"session_complete","roomName":"room-missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "call_not_found", out["error"])

	w, out = e.post(t, `{"type":"agent_state_changed","roomName":"room-missing","data":{"state":"speaking"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, out["skipped"])

	assert.Empty(t, e.repo.Events())
}

func TestHandleEvent_CallerAgentFallback(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.post(t, `{"type":"participant_joined","agentId":"agent-1","callerPhoneNumber":"+15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, e.call.ID, out["callId"])
}

func TestHandleEvent_RekeyThroughAgentCallerTier(t *testing.T) {
	e := newEnv(t, nil)

	// The provider leg was replaced: neither the room nor the new sid is known
	// yet, so the call is found through agent and caller.
	w, out := e.post(t, `{"type":"room_connected","agentId":"agent-1","callerPhoneNumber":"+15551234567","twilioCallSid":"CA200","roomName":"room-abc"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, e.call.ID, out["callId"])

	got, err := e.store.Get(context.Background(), e.call.ID)
	require.NoError(t, err)
	assert.Equal(t, "CA200", got.ProviderCallID)
	assert.Equal(t, "room-abc", got.RoomName)

	w, out = e.post(t, `{"type":"transcript","twilioCallSid":"CA100","data":{"items":[]}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "call_not_found", out["error"])

	w, out = e.post(t, `{"type":"transcript","twilioCallSid":"CA200","data":{"items":[]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, e.call.ID, out["callId"])
}

func TestHandleEvent_IdentifiersInsideData(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.post(t, `{"type":"participant_joined","callerPhoneNumber":"+15551234567","data":{"agentId":"agent-1"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, e.call.ID, out["callId"])

	w, out = e.post(t, `{"type":"participant_joined","data":{"twilioCallSid":"CA100"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, e.call.ID, out["callId"])
}

func TestCriteria_TopLevelWinsOverData(t *testing.T) {
	env := Envelope{
		AgentID:           "agent-top",
		CallerPhoneNumber: " +15551234567 ",
		Data:              json.RawMessage(`{"agentId":"agent-data","roomName":"room-data","twilioCallSid":42}`),
	}
	c := env.Criteria()
	assert.Equal(t, "agent-top", c.AgentID)
	assert.Equal(t, "+15551234567", c.CallerPhoneNumber)
	assert.Equal(t, "room-data", c.RoomName)
	assert.Empty(t, c.ProviderCallID)

	env = Envelope{Data: json.RawMessage(`[1,2]`)}
	assert.True(t, env.Criteria().Empty())
}

func TestHandleEvent_RecordFailureIs500(t *testing.T) {
	e := newEnv(t, failingRepo{events.NewMemoryRepo()})

	w, out := e.post(t, `{"type":"room_connected","twilioCallSid":"CA100","roomName":"room-abc"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "event_record_failed", out["error"])

	got, err := e.store.Get(context.Background(), e.call.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RoomName)
}

func TestHandleEvent_RequiresBearer(t *testing.T) {
	e := newEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"type":"error","roomName":"x"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimestamp_AcceptsRFC3339AndUnixMillis(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","timestamp":1772366445000}`), &env))
	assert.Equal(t, time.UnixMilli(1772366445000).UTC(), env.Timestamp.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","timestamp":"2026-03-01T12:00:45.5Z"}`), &env))
	assert.Equal(t, t0.Add(45500*time.Millisecond), env.Timestamp.Time)

	env = Envelope{}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","timestamp":null}`), &env))
	assert.True(t, env.Timestamp.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"error","timestamp":"yesterday"}`), &env))
}

func TestEventData_FoldsIdentifiersWithoutOverwriting(t *testing.T) {
	env := Envelope{
		RoomName:      "room-abc",
		TwilioCallSid: "CA200",
		Data:          json.RawMessage(`{"twilioCallSid":"CA300","items":[]}`),
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(env.EventData(), &m))
	assert.Equal(t, "room-abc", m["roomName"])
	assert.Equal(t, "CA300", m["twilioCallSid"])
	assert.NotContains(t, m, "agentId")

	env.Data = json.RawMessage(`[1,2]`)
	assert.JSONEq(t, `[1,2]`, string(env.EventData()))
}
