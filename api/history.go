package wampAPI

import (
	"sync"
	"time"

	wampEngine "github.com/wamp3hub/wampytester/engine"
)

const DEFAULT_HISTORY_SIZE = 500

type Record struct {
	Direction string    `json:"direction"`
	Realm     string    `json:"realm"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
	Failed    bool      `json:"failed,omitempty"`
}

// History is a viewer keeping the most recent records in a ring
type History struct {
	mutex   sync.Mutex
	records []Record
	next    int
	full    bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DEFAULT_HISTORY_SIZE
	}
	return &History{records: make([]Record, size)}
}

func (history *History) push(record Record) {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	history.records[history.next] = record
	history.next = (history.next + 1) % len(history.records)
	if history.next == 0 {
		history.full = true
	}
}

func (history *History) OnSent(realm string, topic string, timestamp time.Time, payload any) {
	history.push(Record{"sent", realm, topic, timestamp, payload, false})
}

func (history *History) OnReceived(realm string, topic string, timestamp time.Time, payload any, failed bool) {
	history.push(Record{"received", realm, topic, timestamp, payload, failed})
}

// Callback records subscription summaries and connection errors
func (history *History) Callback(realm string, topic string, payload map[string]any) {
	if topic != wampEngine.TOPIC_SUBSCRIPTION && topic != wampEngine.TOPIC_CONNECTION {
		return
	}
	_, failed := payload["error"]
	history.push(Record{"status", realm, topic, time.Now(), payload, failed})
}

func (history *History) Reset() {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	clear(history.records)
	history.next = 0
	history.full = false
}

// Recent returns up to limit records, oldest first. A limit of zero returns everything.
func (history *History) Recent(limit int) []Record {
	history.mutex.Lock()
	defer history.mutex.Unlock()
	var result []Record
	if history.full {
		result = append(result, history.records[history.next:]...)
	}
	result = append(result, history.records[:history.next]...)
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}
