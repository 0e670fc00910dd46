package wampAPI_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wampAPI "github.com/wamp3hub/wampytester/api"
	wampEngine "github.com/wamp3hub/wampytester/engine"
	wampRouterTest "github.com/wamp3hub/wampytester/internal/routertest"
)

type fixture struct {
	server  *httptest.Server
	handler *wampAPI.Handler
	router  *wampRouterTest.Router
	url     string
}

func newFixture(t *testing.T) *fixture {
	router := wampRouterTest.New(nil)
	routerURL := router.ListenWebsocket()

	engine, e := wampEngine.New(&wampEngine.Options{LogDir: t.TempDir(), LeaveGrace: time.Second})
	require.NoError(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	handler := wampAPI.NewHandler(engine, wampAPI.NewHistory(10), nil)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(func() {
		server.Close()
		engine.Close()
		cancel()
		router.Close()
	})
	return &fixture{server, handler, router, routerURL}
}

func (f *fixture) do(t *testing.T, method string, path string, body any) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if text, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(text))
	} else {
		data, e := json.Marshal(body)
		require.NoError(t, e)
		reader = bytes.NewReader(data)
	}
	request, e := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, e)
	response, e := f.server.Client().Do(request)
	require.NoError(t, e)
	defer response.Body.Close()
	buffer := new(bytes.Buffer)
	_, e = buffer.ReadFrom(response.Body)
	require.NoError(t, e)
	return response.StatusCode, buffer.Bytes()
}

func (f *fixture) events(t *testing.T) []wampAPI.Record {
	status, body := f.do(t, http.MethodGet, "/v1/events", nil)
	require.Equal(t, http.StatusOK, status)
	var records []wampAPI.Record
	require.NoError(t, json.Unmarshal(body, &records))
	return records
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestPublishFlow(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/publishers", map[string]string{"realm": "r1", "router_url": f.url})
	require.Equal(t, http.StatusAccepted, status, string(body))

	status, body = f.do(t, http.MethodPost, "/v1/publish", map[string]any{
		"realm": "r1", "topic": "t.a", "payload": map[string]any{"x": 1}, "mode": "OnDemand",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	waitUntil(t, func() bool { return len(f.events(t)) == 1 })
	record := f.events(t)[0]
	assert.Equal(t, "sent", record.Direction)
	assert.Equal(t, "t.a", record.Topic)
	assert.Equal(t, map[string]any{"x": float64(1)}, record.Payload)

	status, _ = f.do(t, http.MethodPost, "/v1/viewer/reset", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, f.events(t))

	status, _ = f.do(t, http.MethodDelete, "/v1/publishers", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestConfigurationErrors(t *testing.T) {
	f := newFixture(t)

	testCases := map[string]struct {
		path string
		body any
	}{
		"Unknown realm":    {"/v1/publish", map[string]any{"realm": "nowhere", "topic": "t", "payload": map[string]any{}}},
		"Malformed body":   {"/v1/publish", `{"realm":`},
		"Bad router URL":   {"/v1/publishers", map[string]string{"realm": "r1", "router_url": "http://x"}},
		"Missing topics":   {"/v1/subscriptions", map[string]any{"realm": "r1", "router_url": f.url}},
		"Invalid scenario": {"/v1/scenarios", map[string]any{"requests": []any{map[string]any{"realm": "r1"}}}},
	}
	for name, testCase := range testCases {
		t.Run("Case: "+name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, testCase.path, testCase.body)
			assert.Equal(t, http.StatusBadRequest, status)
			var response map[string]string
			require.NoError(t, json.Unmarshal(body, &response))
			assert.NotEmpty(t, response["message"])
		})
	}

	status, _ := f.do(t, http.MethodGet, "/v1/events?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSubscriptionFlow(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/subscriptions", map[string]any{
		"realm": "r1", "router_url": f.url, "topics": []string{"t.a"},
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	waitUntil(t, func() bool { return len(f.events(t)) == 1 })
	summary := f.events(t)[0]
	assert.Equal(t, "status", summary.Direction)
	assert.Equal(t, wampEngine.TOPIC_SUBSCRIPTION, summary.Topic)
	assert.False(t, summary.Failed)

	f.router.Emit("r1", "t.a", map[string]any{"v": "hello"})
	waitUntil(t, func() bool { return len(f.events(t)) == 2 })
	event := f.events(t)[1]
	assert.Equal(t, "received", event.Direction)
	assert.Equal(t, map[string]any{"v": "hello"}, event.Payload)

	status, body = f.do(t, http.MethodGet, "/v1/subscriptions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"r1":["t.a"]}`, string(body))

	status, _ = f.do(t, http.MethodDelete, "/v1/subscriptions", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/publish", `{"realm":"r1"`)
	f.do(t, http.MethodPost, "/v1/publish", map[string]any{"realm": "nowhere", "topic": "t", "payload": 1})

	status, body := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `wampytester_errors_total{kind="ConfigurationError"} 1`)
}

func TestHistoryRing(t *testing.T) {
	history := wampAPI.NewHistory(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		history.OnSent("r1", "t", now, i)
	}
	records := history.Recent(0)
	require.Len(t, records, 3)
	assert.Equal(t, []any{2, 3, 4}, []any{records[0].Payload, records[1].Payload, records[2].Payload})
	assert.Len(t, history.Recent(2), 2)
	assert.Equal(t, 4, history.Recent(1)[0].Payload)

	history.Callback("r1", "t.a", map[string]any{"args": []any{}})
	assert.Len(t, history.Recent(0), 3)
	history.Callback("r1", wampEngine.TOPIC_CONNECTION, map[string]any{"error": "gone"})
	assert.True(t, history.Recent(1)[0].Failed)

	history.Reset()
	assert.Empty(t, history.Recent(0))
}

func TestServe(t *testing.T) {
	listener, e := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- wampAPI.Serve(ctx, listener, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		}), nil)
	}()

	var response *http.Response
	waitUntil(t, func() bool {
		response, e = http.Get("http://" + listener.Addr().String())
		return e == nil
	})
	data, e := io.ReadAll(response.Body)
	response.Body.Close()
	require.NoError(t, e)
	assert.Equal(t, "pong", string(data))

	cancel()
	select {
	case e := <-served:
		assert.NoError(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
