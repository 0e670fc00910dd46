package wampShared_test

import (
	"testing"
	"time"

	wampShared "github.com/wamp3hub/wampytester/shared"
)

func TestConstantRS(t *testing.T) {
	rs := wampShared.NewConstantRS(time.Second, 3)

	for i := 1; i < 4; i++ {
		v := rs.Next()
		if rs.AttemptNumber() != i || v != time.Second {
			t.Errorf("Next failed: expected attempt number %v and value 1s, got %v and %v", i, rs.AttemptNumber(), v)
		}
	}

	done := rs.Done()
	if !done {
		t.Errorf("Done failed: expected true, got %v", done)
	}

	rs.Reset()
	an := rs.AttemptNumber()
	if an != 0 {
		t.Errorf("Reset failed: expected attempt number 0, got %v", an)
	}
}

func TestBackoffRS(t *testing.T) {
	t.Run("Case: Happy Path", func(t *testing.T) {
		rs := wampShared.NewBackoffRS(time.Second, 2, time.Hour, 3)
		expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
		for i, expectedValue := range expected {
			v := rs.Next()
			if rs.AttemptNumber() != i+1 || v != expectedValue {
				t.Errorf("Next failed: expected attempt number %v and value %v, got %v and %v", i+1, expectedValue, rs.AttemptNumber(), v)
			}
		}

		if !rs.Done() {
			t.Errorf("Done failed: expected true")
		}
	})

	t.Run("Case: Upper Bound", func(t *testing.T) {
		upperBound := 3 * time.Second
		rs := wampShared.NewBackoffRS(time.Second, 10, upperBound, 3)
		for i := 1; i < 4; i++ {
			v := rs.Next()
			if v > upperBound {
				t.Errorf("Next failed: expected value at most %v, got %v", upperBound, v)
			}
		}
	})
}

func TestDontRetryStrategy(t *testing.T) {
	rs := wampShared.DontRetryStrategy()
	if !rs.Done() {
		t.Errorf("expected DontRetryStrategy to be done before the first retry")
	}
}
