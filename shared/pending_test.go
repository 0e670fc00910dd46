package wampShared_test

import (
	"sync"
	"testing"
	"time"

	wampShared "github.com/wamp3hub/wampytester/shared"
)

func TestPendingMap(t *testing.T) {
	completable := func(t *testing.T, wg *sync.WaitGroup, instance *wampShared.PendingMap[string, string]) {
		defer wg.Done()
		key := wampShared.NewID()
		expectedResult := "Hello, WAMP!"

		promise, _ := instance.New(key, time.Minute)

		completeLater := func() {
			time.Sleep(10 * time.Millisecond)
			instance.Complete(key, expectedResult)
		}
		go completeLater()

		result, done := <-promise
		if !done {
			t.Errorf("Promise was not completed")
		}
		if result != expectedResult {
			t.Errorf("Expected %v, but got %v", expectedResult, result)
		}
	}

	cancellable := func(t *testing.T, wg *sync.WaitGroup, instance *wampShared.PendingMap[string, string]) {
		defer wg.Done()
		key := wampShared.NewID()

		promise, cancel := instance.New(key, time.Minute)

		cancelLater := func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}
		go cancelLater()

		result, done := <-promise
		if done {
			t.Errorf("invalid behaviour result=%s", result)
		}
	}

	timedOut := func(t *testing.T, wg *sync.WaitGroup, instance *wampShared.PendingMap[string, string]) {
		defer wg.Done()
		key := wampShared.NewID()

		promise, _ := instance.New(key, 50*time.Millisecond)

		result, done := <-promise
		if done {
			t.Errorf("invalid behaviour result=%s", result)
		}
	}

	notFound := func(t *testing.T, wg *sync.WaitGroup, instance *wampShared.PendingMap[string, string]) {
		defer wg.Done()
		key := wampShared.NewID()

		e := instance.Complete(key, "not-found")
		if e == nil {
			t.Errorf("invalid behaviour")
		}
	}

	cases := map[string]func(*testing.T, *sync.WaitGroup, *wampShared.PendingMap[string, string]){
		"Case: Completable": completable,
		"Case: Cancellable": cancellable,
		"Case: TimedOut":    timedOut,
		"Case: NotFound":    notFound,
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			wg := new(sync.WaitGroup)
			wg.Add(1)
			run(t, wg, wampShared.NewPendingMap[string, string]())
			wg.Wait()
		})
	}

	t.Run(
		"Case: Complex",
		func(t *testing.T) {
			wg := new(sync.WaitGroup)
			n := 50
			wg.Add(n * 4)
			instance := wampShared.NewPendingMap[string, string]()
			for i := 0; i < n; i++ {
				go completable(t, wg, instance)
				go cancellable(t, wg, instance)
				go timedOut(t, wg, instance)
				go notFound(t, wg, instance)
			}
			wg.Wait()
		},
	)

	t.Run("Case: CancelAll", func(t *testing.T) {
		instance := wampShared.NewPendingMap[uint64, string]()
		alpha, _ := instance.New(1, time.Minute)
		beta, _ := instance.New(2, time.Minute)
		instance.CancelAll()

		for _, promise := range []wampShared.Promise[string]{alpha, beta} {
			if _, done := <-promise; done {
				t.Errorf("expected cancelled promise")
			}
		}
		if instance.Size() != 0 {
			t.Errorf("expected empty pending map, got %d", instance.Size())
		}
	})
}
