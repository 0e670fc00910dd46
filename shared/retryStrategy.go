package wampShared

import (
	"math"
	"time"
)

// RetryStrategy drives repeated dial attempts
type RetryStrategy interface {
	// Returns the number of attempts that have been made
	AttemptNumber() int
	// Returns true if the maximum number of attempts has been reached
	Done() bool
	// Returns the next delay
	Next() time.Duration
	// Resets the attempt number to 0
	Reset()
}

// constantRS is a RetryStrategy that returns a constant delay
type constantRS struct {
	an      int
	v       time.Duration
	retries int
}

func NewConstantRS(v time.Duration, maximumRetries int) *constantRS {
	return &constantRS{0, v, maximumRetries}
}

func (rs *constantRS) AttemptNumber() int {
	return rs.an
}

func (rs *constantRS) Done() bool {
	return rs.an >= rs.retries
}

func (rs *constantRS) Next() time.Duration {
	rs.an++
	return rs.v
}

func (rs *constantRS) Reset() {
	rs.an = 0
}

// backoffRS multiplies the base delay by factor^(n-1), capped by the upper bound
type backoffRS struct {
	base *constantRS
	f    float64
	up   time.Duration
}

func NewBackoffRS(
	delay time.Duration,
	factor float64,
	upperBound time.Duration,
	maximumRetries int,
) *backoffRS {
	return &backoffRS{NewConstantRS(delay, maximumRetries), factor, upperBound}
}

func (rs *backoffRS) AttemptNumber() int {
	return rs.base.AttemptNumber()
}

func (rs *backoffRS) Done() bool {
	return rs.base.Done()
}

func (rs *backoffRS) Next() time.Duration {
	d := rs.base.Next()
	e := math.Pow(rs.f, float64(rs.AttemptNumber()-1))
	v := time.Duration(float64(d) * e)
	if v > rs.up || v < 0 {
		v = rs.up
	}
	return v
}

func (rs *backoffRS) Reset() {
	rs.base.Reset()
}

// DontRetryStrategy returns a strategy that never retries.
// Strategies are stateful, so every dial gets a fresh one.
func DontRetryStrategy() RetryStrategy {
	return NewConstantRS(0, 0)
}

// DialRetryStrategy retries a failed dial a few times with a growing delay
func DialRetryStrategy(retries int) RetryStrategy {
	return NewBackoffRS(250*time.Millisecond, 2, 5*time.Second, retries)
}
