package wampEngine_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	wampRouterTest "github.com/wamp3hub/wampytester/internal/routertest"
	wampEngine "github.com/wamp3hub/wampytester/engine"
)

const waitTimeout = 5 * time.Second

type record struct {
	Realm     string
	Topic     string
	Timestamp time.Time
	Payload   any
	Failed    bool
}

type recordingViewer struct {
	mutex    sync.Mutex
	sent     []record
	received []record
	resets   int
}

func (viewer *recordingViewer) OnSent(realm string, topic string, timestamp time.Time, payload any) {
	viewer.mutex.Lock()
	defer viewer.mutex.Unlock()
	viewer.sent = append(viewer.sent, record{realm, topic, timestamp, payload, false})
}

func (viewer *recordingViewer) OnReceived(realm string, topic string, timestamp time.Time, payload any, failed bool) {
	viewer.mutex.Lock()
	defer viewer.mutex.Unlock()
	viewer.received = append(viewer.received, record{realm, topic, timestamp, payload, failed})
}

func (viewer *recordingViewer) Reset() {
	viewer.mutex.Lock()
	defer viewer.mutex.Unlock()
	viewer.resets++
	viewer.sent = nil
	viewer.received = nil
}

func (viewer *recordingViewer) Sent() []record {
	viewer.mutex.Lock()
	defer viewer.mutex.Unlock()
	return append([]record(nil), viewer.sent...)
}

func (viewer *recordingViewer) Received() []record {
	viewer.mutex.Lock()
	defer viewer.mutex.Unlock()
	return append([]record(nil), viewer.received...)
}

type callbackCall struct {
	Realm   string
	Topic   string
	Payload map[string]any
}

type callbackRecorder struct {
	calls chan callbackCall
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{make(chan callbackCall, 100)}
}

func (recorder *callbackRecorder) Callback(realm string, topic string, payload map[string]any) {
	recorder.calls <- callbackCall{realm, topic, payload}
}

// next waits for the next call on topic, skipping other topics
func (recorder *callbackRecorder) next(t *testing.T, topic string) callbackCall {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case call := <-recorder.calls:
			if call.Topic == topic {
				return call
			}
		case <-deadline:
			t.Fatalf("no callback on %s", topic)
		}
	}
}

type fixture struct {
	engine *wampEngine.Engine
	router *wampRouterTest.Router
	url    string
	viewer *recordingViewer
}

func newFixture(t *testing.T, routerOptions *wampRouterTest.Options) *fixture {
	t.Helper()
	router := wampRouterTest.New(routerOptions)
	url := router.ListenWebsocket()

	engine, e := wampEngine.New(&wampEngine.Options{
		LogDir:      t.TempDir(),
		JoinTimeout: waitTimeout,
		LeaveGrace:  time.Second,
	})
	require.NoError(t, e)
	viewer := new(recordingViewer)
	engine.AddViewer(viewer)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	t.Cleanup(func() {
		engine.Close()
		cancel()
		router.Close()
	})
	return &fixture{engine, router, url, viewer}
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, e := json.Marshal(v)
	require.NoError(t, e)
	return string(data)
}
