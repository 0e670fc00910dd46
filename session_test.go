package wamp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampRouterTest "github.com/wamp3hub/wampytester/internal/routertest"
)

func joinLocal(t *testing.T, router *wampRouterTest.Router, realm string) *wamp.Session {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, e := wamp.Join(ctx, router.ConnectLocal(), realm, &wamp.JoinOptions{Timeout: 5 * time.Second})
	if e != nil {
		t.Fatalf("Join failed: %v", e)
	}
	t.Cleanup(func() { session.Leave(context.Background(), "") })
	return session
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestJoin(t *testing.T) {
	router := wampRouterTest.New(&wampRouterTest.Options{Realms: []string{"r1"}})
	defer router.Close()

	t.Run("Case: Welcome", func(t *testing.T) {
		session := joinLocal(t, router, "r1")
		if session.ID == 0 {
			t.Error("expected session ID")
		}
		if session.State() != wamp.StateJoined {
			t.Errorf("expected Joined, got %s", session.State())
		}
		if session.Realm() != "r1" {
			t.Errorf("unexpected realm %s", session.Realm())
		}
	})

	t.Run("Case: Abort", func(t *testing.T) {
		_, e := wamp.Join(waitCtx(t), router.ConnectLocal(), "unknown", nil)
		var protocolError *wamp.ProtocolError
		if !errors.As(e, &protocolError) {
			t.Fatalf("expected ProtocolError, got %v", e)
		}
		if protocolError.URI != "wamp.error.no_such_realm" {
			t.Errorf("unexpected URI %s", protocolError.URI)
		}
	})

	t.Run("Case: Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, e := wamp.Join(ctx, router.ConnectLocal(), "r1", nil)
		if !errors.Is(e, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", e)
		}
	})
}

func TestPublish(t *testing.T) {
	router := wampRouterTest.New(nil)
	defer router.Close()
	session := joinLocal(t, router, "r1")

	t.Run("Case: Object travels as kwargs", func(t *testing.T) {
		e := session.Publish("t.a", json.RawMessage(`{"x": 1}`))
		if e != nil {
			t.Fatal(e)
		}
		publications, e := router.WaitPublications(waitCtx(t), 1)
		if e != nil {
			t.Fatal(e)
		}
		last := publications[0]
		if len(last.Args) != 0 || last.Kwargs["x"] != int64(1) {
			t.Errorf("unexpected arguments %v %v", last.Args, last.Kwargs)
		}
	})

	t.Run("Case: Empty object is not dropped", func(t *testing.T) {
		session.Publish("t.empty", map[string]any{})
		publications, e := router.WaitPublications(waitCtx(t), 2)
		if e != nil {
			t.Fatal(e)
		}
		last := publications[1]
		if last.Topic != "t.empty" || last.Kwargs == nil || len(last.Kwargs) != 0 {
			t.Errorf("unexpected publication %+v", last)
		}
	})

	t.Run("Case: Array travels as one positional argument", func(t *testing.T) {
		session.Publish("t.a", json.RawMessage(`[1,2,3]`))
		publications, e := router.WaitPublications(waitCtx(t), 3)
		if e != nil {
			t.Fatal(e)
		}
		last := publications[2]
		if len(last.Args) != 1 || last.Kwargs != nil {
			t.Fatalf("unexpected arguments %v %v", last.Args, last.Kwargs)
		}
		list, ok := last.Args[0].([]any)
		if !ok || len(list) != 3 {
			t.Errorf("unexpected positional argument %v", last.Args[0])
		}
	})

	t.Run("Case: Submission order", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			session.Publish("t.order", map[string]any{"i": i})
		}
		publications, e := router.WaitPublications(waitCtx(t), 53)
		if e != nil {
			t.Fatal(e)
		}
		for i, publication := range publications[3:] {
			if publication.Kwargs["i"] != i {
				t.Fatalf("publication %d out of order: %v", i, publication.Kwargs)
			}
		}
	})

	t.Run("Case: Acknowledged", func(t *testing.T) {
		publicationID, e := session.PublishAcknowledged(waitCtx(t), "t.ack", "scalar")
		if e != nil {
			t.Fatal(e)
		}
		if publicationID == 0 {
			t.Error("expected publication ID")
		}
	})
}

func TestSubscribe(t *testing.T) {
	router := wampRouterTest.New(&wampRouterTest.Options{RejectTopics: []string{"t.bad"}})
	defer router.Close()
	session := joinLocal(t, router, "r1")

	t.Run("Case: Event delivery", func(t *testing.T) {
		received := make(chan wamp.PublicationEvent, 10)
		subscription, e := session.Subscribe(waitCtx(t), "t.a", func(event wamp.PublicationEvent) {
			received <- event
		})
		if e != nil {
			t.Fatal(e)
		}
		if subscription.Topic != "t.a" || subscription.ID == 0 {
			t.Errorf("unexpected subscription %+v", subscription)
		}

		router.Emit("r1", "t.a", map[string]any{"v": 1})
		router.Emit("r1", "t.a", []any{"x"})
		select {
		case event := <-received:
			if event.ArgumentsKw()["v"] != 1 {
				t.Errorf("unexpected kwargs %v", event.ArgumentsKw())
			}
		case <-time.After(5 * time.Second):
			t.Fatal("event not delivered")
		}
		select {
		case event := <-received:
			if len(event.Arguments()) != 1 {
				t.Errorf("unexpected args %v", event.Arguments())
			}
		case <-time.After(5 * time.Second):
			t.Fatal("event not delivered")
		}

		e = session.Unsubscribe(waitCtx(t), subscription)
		if e != nil {
			t.Fatal(e)
		}
		if router.Subscribers("r1", "t.a") != 0 {
			t.Error("router still holds the subscription")
		}
	})

	t.Run("Case: Rejected topic", func(t *testing.T) {
		_, e := session.Subscribe(waitCtx(t), "t.bad", nil)
		var protocolError *wamp.ProtocolError
		if !errors.As(e, &protocolError) {
			t.Fatalf("expected ProtocolError, got %v", e)
		}
		if protocolError.URI != "wamp.error.not_authorized" {
			t.Errorf("unexpected URI %s", protocolError.URI)
		}
	})

	t.Run("Case: Panicking endpoint", func(t *testing.T) {
		delivered := make(chan struct{}, 1)
		session.Subscribe(waitCtx(t), "t.panic", func(wamp.PublicationEvent) {
			panic("boom")
		})
		session.Subscribe(waitCtx(t), "t.after", func(wamp.PublicationEvent) {
			delivered <- struct{}{}
		})
		router.Emit("r1", "t.panic", map[string]any{})
		router.Emit("r1", "t.after", map[string]any{})
		select {
		case <-delivered:
		case <-time.After(5 * time.Second):
			t.Fatal("read loop did not survive a panicking endpoint")
		}
	})
}

func TestLifecycle(t *testing.T) {
	router := wampRouterTest.New(nil)
	defer router.Close()

	t.Run("Case: Leave", func(t *testing.T) {
		session := joinLocal(t, router, "r1")
		e := session.Leave(waitCtx(t), "")
		if e != nil {
			t.Fatal(e)
		}
		if session.State() != wamp.StateClosed {
			t.Errorf("expected Closed, got %s", session.State())
		}
		e = session.Publish("t.a", map[string]any{})
		if !errors.Is(e, wamp.ErrorNotReady) {
			t.Errorf("expected ErrorNotReady, got %v", e)
		}
	})

	t.Run("Case: Router goodbye", func(t *testing.T) {
		session := joinLocal(t, router, "r2")
		router.Kick("r2")
		select {
		case <-session.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("session did not close")
		}
		if session.State() != wamp.StateClosed {
			t.Errorf("expected Closed, got %s", session.State())
		}
	})

	t.Run("Case: Transport lost", func(t *testing.T) {
		session := joinLocal(t, router, "r3")
		router.Drop("r3")
		select {
		case <-session.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("session did not fail")
		}
		if session.State() != wamp.StateFailed {
			t.Errorf("expected Failed, got %s", session.State())
		}
		if !errors.Is(session.Err(), wamp.ErrorConnectionLost) {
			t.Errorf("expected ErrorConnectionLost, got %v", session.Err())
		}
	})
}
