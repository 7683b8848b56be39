package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
	"github.com/BlueBird-project/ke-client-go/pkg/client"
	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/pattern"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

const testKB = "http://example.org/kb/fm"

type fakeRuntime struct {
	reg       *registry.Registry
	connected bool
	running   bool
	registers int

	askErr  error
	lastArg any
}

func (f *fakeRuntime) KnowledgeBaseID() string      { return testKB }
func (f *fakeRuntime) Connected() bool              { return f.connected }
func (f *fakeRuntime) Running() bool                { return f.running }
func (f *fakeRuntime) Registry() *registry.Registry { return f.reg }

func (f *fakeRuntime) Register(context.Context) error {
	f.registers++
	f.connected = true
	return nil
}

func (f *fakeRuntime) Interaction(kind registry.Kind, name string) (*registry.Interaction, error) {
	if !strings.HasPrefix(name, kind.Role()+"-") {
		name = kind.Role() + "-" + name
	}
	if ki, ok := f.reg.Lookup(name); ok {
		return ki, nil
	}
	return nil, kerrors.Config("lookup", nil, "%s is not declared", name)
}

func (f *fakeRuntime) Ask(_ context.Context, _ *registry.Interaction, values any) (*client.AskResult, error) {
	f.lastArg = values
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &client.AskResult{
		BindingSet:   bindings.Set{{"meas": "<http://example.org/m1>", "value": `"42"`}},
		ExchangeInfo: []client.ExchangeInfo{{Status: client.StatusSucceeded}},
	}, nil
}

func (f *fakeRuntime) Post(_ context.Context, _ *registry.Interaction, values any) (*client.PostResult, error) {
	f.lastArg = values
	return &client.PostResult{}, nil
}

type memJournal struct {
	events []*store.Event
}

func (j *memJournal) AppendEvent(_ context.Context, evt *store.Event) error {
	j.events = append(j.events, evt)
	return nil
}

func (j *memJournal) ReadRecentEvents(_ context.Context, limit int) ([]*store.Event, error) {
	if limit > len(j.events) {
		limit = len(j.events)
	}
	return j.events[len(j.events)-limit:], nil
}

type fakeElection struct{ leader bool }

func (e fakeElection) IsLeader() bool   { return e.leader }
func (e fakeElection) Epoch() int64     { return 7 }
func (e fakeElection) HolderID() string { return "holder-1" }

func newTestServer(t *testing.T) (*Server, *fakeRuntime, *memJournal) {
	t.Helper()
	reg := registry.New(pattern.NewCatalog("fm", "flexibility manager",
		map[string]string{"ex": "http://example.org/"},
		map[string]*pattern.GraphPattern{
			"measurement": {Pattern: []string{"?meas a ex:Measurement .", "?meas ex:value ?value ."}},
			"command": {
				Pattern:       []string{"?cmd a ex:Command ."},
				ResultPattern: []string{"?cmd ex:ack ?ack ."},
			},
		}))
	ask, err := reg.Ask("measurement")
	require.NoError(t, err)
	_, err = reg.Post("command")
	require.NoError(t, err)
	require.NoError(t, reg.Assign(ask.Name, testKB+"/interaction/ask-measurement"))

	rt := &fakeRuntime{reg: reg, connected: true}
	j := &memJournal{}
	s := NewServer(rt, j, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, rt, j
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	withSecureHeaders(handler).ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy": "default-src 'none'",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestTraceID(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/health", nil)
	assert.Len(t, w.Header().Get("X-Trace-ID"), 32)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "abc")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Trace-ID"))
}

func TestHealth(t *testing.T) {
	s, rt, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, HealthResponse{Status: "ok", KnowledgeBaseID: testKB, Connected: true, Leader: true}, h)

	rt.connected = false
	w = do(t, s, http.MethodGet, "/v1/health", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "degraded", h.Status)

	s.SetElectionManager(fakeElection{leader: false})
	w = do(t, s, http.MethodGet, "/v1/health", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.False(t, h.Leader)
	assert.Equal(t, int64(7), h.Epoch)

	w = do(t, s, http.MethodPost, "/v1/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestInteractions(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/interactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []InteractionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)

	assert.Equal(t, "ask-measurement", views[0].Name)
	assert.Equal(t, "ask", views[0].Type)
	assert.True(t, views[0].Registered)
	assert.ElementsMatch(t, []string{"meas", "value"}, views[0].Vars)

	assert.Equal(t, "post-command", views[1].Name)
	assert.False(t, views[1].Registered)
	assert.Empty(t, views[1].ID)
	assert.ElementsMatch(t, []string{"ack", "cmd"}, views[1].ResultVars)
}

func TestEvents(t *testing.T) {
	s, _, j := newTestServer(t)
	for _, typ := range []store.EventType{store.EventTypeKBRegistered, store.EventTypeAskSent, store.EventTypePostSent} {
		evt, err := store.NewEvent(typ, store.EventDimensions{KnowledgeBaseID: testKB}, nil)
		require.NoError(t, err)
		require.NoError(t, j.AppendEvent(context.Background(), evt))
	}

	w := do(t, s, http.MethodGet, "/v1/events?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []store.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, store.EventTypeAskSent, events[0].EventType)

	// An invalid limit falls back to the default.
	w = do(t, s, http.MethodGet, "/v1/events?limit=x", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Len(t, events, 3)
}

func TestEvents_NoJournal(t *testing.T) {
	s := NewServer(&fakeRuntime{}, nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	w := do(t, s, http.MethodGet, "/v1/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAsk(t *testing.T) {
	s, rt, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/ask", ExchangeRequest{
		Interaction: "measurement",
		Bindings:    []map[string]string{{"meas": "<http://example.org/m1>"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ExchangeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ask-measurement", resp.Interaction)
	assert.Equal(t, 1, resp.Exchanges)
	assert.Equal(t, `"42"`, resp.Bindings[0]["value"])
	assert.Equal(t, []map[string]string{{"meas": "<http://example.org/m1>"}}, rt.lastArg)
}

func TestAsk_Errors(t *testing.T) {
	s, rt, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		askErr error
		status int
		code   string
	}{
		{"unknown interaction", ExchangeRequest{Interaction: "nope"}, nil, http.StatusNotFound, "unknown_interaction"},
		{"missing interaction", ExchangeRequest{}, nil, http.StatusBadRequest, "missing_interaction"},
		{"contract", ExchangeRequest{Interaction: "measurement"}, kerrors.Contract("ask", nil, "bad key"), http.StatusBadRequest, "invalid_bindings"},
		{"broker", ExchangeRequest{Interaction: "measurement"}, kerrors.Broker("ask", kerrors.ErrExchangeFailed, "failed"), http.StatusBadGateway, "broker_error"},
		{"drift", ExchangeRequest{Interaction: "measurement"}, kerrors.New(kerrors.ClassDrift, "ask", nil, "lost"), http.StatusServiceUnavailable, "broker_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt.askErr = tt.askErr
			w := do(t, s, http.MethodPost, "/v1/ask", tt.body)
			assert.Equal(t, tt.status, w.Code)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tt.code, e.Error)
		})
	}

	w := do(t, s, http.MethodGet, "/v1/ask", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPost_EmptyResult(t *testing.T) {
	s, rt, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/post", ExchangeRequest{Interaction: "post-command"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"interaction":"post-command","bindings":[],"exchanges":0}`, w.Body.String())
	assert.Nil(t, rt.lastArg)
}

func TestRegister_LeaderCheck(t *testing.T) {
	s, rt, _ := newTestServer(t)
	rt.connected = false

	s.SetElectionManager(fakeElection{leader: false})
	w := do(t, s, http.MethodPost, "/v1/register", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, rt.registers)

	s.SetElectionManager(fakeElection{leader: true})
	w = do(t, s, http.MethodPost, "/v1/register", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected":true}`, w.Body.String())
	assert.Equal(t, 1, rt.registers)
}

func TestRecovery(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
