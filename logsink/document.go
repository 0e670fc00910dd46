package wampLogSink

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	wamp "github.com/wamp3hub/wampytester"
)

const (
	COMMENTS            = "Registro de mensajes WAMP"
	SOURCE_VERSION      = "1.0"
	SOURCE_TOOL         = "wamPy Tester"
	DEFAULT_TIME_FORMAT = "%Y-%m-%d %H:%M:%S"
)

// TimeLayout renders DEFAULT_TIME_FORMAT with the Go reference time
const TimeLayout = "2006-01-02 15:04:05"

const fileNameLayout = "20060102_150405"

type Source struct {
	Version string `json:"version"`
	Tool    string `json:"tool"`
}

type Timestamp struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type Entry struct {
	Timestamp Timestamp `json:"timestamp"`
	Realm     string    `json:"realm"`
	Topic     string    `json:"topic"`
	IPSource  string    `json:"ip_source"`
	IPDest    string    `json:"ip_dest"`
	Payload   any       `json:"payload"`
}

type Document struct {
	Comments          string  `json:"comments"`
	Source            Source  `json:"source"`
	DefaultTimeFormat string  `json:"defaulttimeformat"`
	MessageList       []Entry `json:"msg_list"`
}

func newDocument() *Document {
	return &Document{
		Comments:          COMMENTS,
		Source:            Source{SOURCE_VERSION, SOURCE_TOOL},
		DefaultTimeFormat: DEFAULT_TIME_FORMAT,
		MessageList:       []Entry{},
	}
}

// FormatTimestamp renders t the way Append expects it
func FormatTimestamp(t time.Time) string {
	return t.Format(TimeLayout)
}

// FileName is the log file name of a process started at t
func FileName(t time.Time) string {
	return t.Format(fileNameLayout) + ".json"
}

func splitTimestamp(timestamp string) Timestamp {
	date, clock, _ := strings.Cut(timestamp, " ")
	return Timestamp{date, clock}
}

// normalizePayload keeps JSON objects and wraps anything else into {"raw": text}
func normalizePayload(payload any) any {
	switch v := payload.(type) {
	case json.RawMessage:
		return normalizeRaw(v)
	case []byte:
		return normalizeRaw(v)
	case map[string]any:
		if v == nil {
			return map[string]any{}
		}
		return v
	case string:
		return map[string]any{"raw": v}
	}
	text, e := json.Marshal(payload)
	if e != nil {
		return map[string]any{"raw": fmt.Sprint(payload)}
	}
	v, e := wamp.DecodeJSON(text)
	if object, ok := v.(map[string]any); e == nil && ok && object != nil {
		return object
	}
	return map[string]any{"raw": string(text)}
}

func normalizeRaw(raw []byte) any {
	v, e := wamp.DecodeJSON(raw)
	if e != nil {
		return map[string]any{"raw": string(raw)}
	}
	if object, ok := v.(map[string]any); ok {
		return object
	}
	text, _ := json.Marshal(v)
	return map[string]any{"raw": string(text)}
}

// Load parses a log document, compressed archives included
func Load(path string) (*Document, error) {
	data, e := os.ReadFile(path)
	if e != nil {
		return nil, e
	}
	if strings.HasSuffix(path, ARCHIVE_SUFFIX) {
		data, e = decompress(data)
		if e != nil {
			return nil, e
		}
	}
	document := new(Document)
	e = json.Unmarshal(data, document)
	if e != nil {
		return nil, fmt.Errorf("invalid log document %s: %w", path, e)
	}
	return document, nil
}
