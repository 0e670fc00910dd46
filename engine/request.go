package wampEngine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampShared "github.com/wamp3hub/wampytester/shared"
)

type Mode int

const (
	OnDemand Mode = iota
	Programmed
	SystemTime
)

func (mode Mode) String() string {
	switch mode {
	case OnDemand:
		return "OnDemand"
	case Programmed:
		return "Programmed"
	case SystemTime:
		return "SystemTime"
	}
	return "Unknown"
}

// ParseMode is case insensitive and ignores separators, "on demand" equals "OnDemand"
func ParseMode(text string) (Mode, error) {
	normalized := strings.ToLower(text)
	normalized = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(normalized)
	switch normalized {
	case "ondemand", "":
		return OnDemand, nil
	case "programmed":
		return Programmed, nil
	case "systemtime":
		return SystemTime, nil
	}
	return OnDemand, fmt.Errorf("unknown mode %q", text)
}

func (mode Mode) MarshalText() ([]byte, error) {
	return []byte(mode.String()), nil
}

func (mode *Mode) UnmarshalText(text []byte) error {
	v, e := ParseMode(string(text))
	if e != nil {
		return e
	}
	*mode = v
	return nil
}

const MAX_CLOCK_HOURS = math.MaxInt64 / int64(time.Hour)

// Clock is an H:M:S value
type Clock struct {
	Hours   int
	Minutes int
	Seconds int
}

// ParseClock reads "H:M:S". Minutes and seconds range over 0-59,
// hours are bounded by the largest time.Duration.
func ParseClock(text string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 3 {
		return Clock{}, fmt.Errorf("time %q is not H:M:S", text)
	}
	var values [3]int
	for i, part := range parts {
		v, e := strconv.Atoi(part)
		if e != nil || v < 0 {
			return Clock{}, fmt.Errorf("time %q is not H:M:S", text)
		}
		values[i] = v
	}
	clock := Clock{values[0], values[1], values[2]}
	if clock.Minutes > 59 || clock.Seconds > 59 {
		return Clock{}, fmt.Errorf("time %q out of range", text)
	}
	if int64(clock.Hours) > MAX_CLOCK_HOURS {
		return Clock{}, fmt.Errorf("time %q out of range", text)
	}
	seconds := int64(clock.Hours)*3600 + int64(clock.Minutes)*60 + int64(clock.Seconds)
	if seconds > math.MaxInt64/int64(time.Second) {
		return Clock{}, fmt.Errorf("time %q out of range", text)
	}
	return clock, nil
}

func (clock Clock) Duration() time.Duration {
	return time.Duration(clock.Hours)*time.Hour +
		time.Duration(clock.Minutes)*time.Minute +
		time.Duration(clock.Seconds)*time.Second
}

// Next returns the first local wall-clock moment at or after now matching clock.
// The current second still matches, earlier moments roll over to the next day.
func (clock Clock) Next(now time.Time) (time.Time, error) {
	if clock.Hours > 23 {
		return time.Time{}, fmt.Errorf("hour %d out of range", clock.Hours)
	}
	target := time.Date(
		now.Year(), now.Month(), now.Day(),
		clock.Hours, clock.Minutes, clock.Seconds, 0,
		now.Location(),
	)
	if target.Before(now.Truncate(time.Second)) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

type PublishRequest struct {
	ID        string          `json:"id,omitempty"`
	Realm     string          `json:"realm"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload" jsonschema:"oneof_type=object;array;string;number;boolean"`
	Mode      Mode            `json:"mode" jsonschema:"type=string,enum=OnDemand,enum=Programmed,enum=SystemTime"`
	Time      string          `json:"time,omitempty" jsonschema:"pattern=^\\d+:\\d{1,2}:\\d{1,2}$"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewPublishRequest(realm string, topic string, payload json.RawMessage, mode Mode, clock string) *PublishRequest {
	return &PublishRequest{
		ID:        wampShared.NewID(),
		Realm:     realm,
		Topic:     topic,
		Payload:   payload,
		Mode:      mode,
		Time:      clock,
		CreatedAt: time.Now(),
	}
}

// Validate fills ID and CreatedAt and rejects malformed requests.
// An OnDemand request never reads Time.
func (request *PublishRequest) Validate() error {
	if len(request.Realm) == 0 {
		return newError(KindConfiguration, "", request.Topic, fmt.Errorf("realm is required"))
	}
	if len(request.Topic) == 0 {
		return newError(KindConfiguration, request.Realm, "", fmt.Errorf("topic is required"))
	}
	if len(request.Payload) == 0 {
		return newError(KindConfiguration, request.Realm, request.Topic, fmt.Errorf("payload is required"))
	}
	_, e := wamp.DecodeJSON(request.Payload)
	if e != nil {
		return newError(KindConfiguration, request.Realm, request.Topic, fmt.Errorf("invalid JSON payload: %w", e))
	}
	if request.Mode != OnDemand {
		_, e = request.FireAt(time.Now())
		if e != nil {
			return e
		}
	}
	if len(request.ID) == 0 {
		request.ID = wampShared.NewID()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	return nil
}

// FireAt translates the mode into an absolute dispatch time
func (request *PublishRequest) FireAt(now time.Time) (time.Time, error) {
	switch request.Mode {
	case OnDemand:
		return now, nil
	case Programmed, SystemTime:
		clock, e := ParseClock(request.Time)
		if e != nil {
			return time.Time{}, newError(KindConfiguration, request.Realm, request.Topic, e)
		}
		if request.Mode == Programmed {
			return now.Add(clock.Duration()), nil
		}
		target, e := clock.Next(now)
		if e != nil {
			return time.Time{}, newError(KindConfiguration, request.Realm, request.Topic, e)
		}
		return target, nil
	}
	return time.Time{}, newError(KindConfiguration, request.Realm, request.Topic, fmt.Errorf("unknown mode %d", request.Mode))
}
