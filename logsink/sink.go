// Package wampLogSink keeps the per-process JSON message log.
package wampLogSink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrorNotInitialized = errors.New("NotInitialized")

type Options struct {
	Logger *slog.Logger
	// called with every write failure, after it was logged
	OnFailure func(error)
	// clock used for the file name, defaults to time.Now
	Now func() time.Time
}

// Sink appends entries to a single JSON document created once per process.
// Every append rewrites the whole document through a temporary file and a rename.
type Sink struct {
	mutex     sync.Mutex
	path      string
	document  *Document
	onFailure func(error)
	now       func() time.Time
	logger    *slog.Logger
}

func New(options *Options) *Sink {
	if options == nil {
		options = new(Options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Sink{
		onFailure: options.OnFailure,
		now:       options.Now,
		logger:    options.Logger.With("name", "LogSink"),
	}
}

// Initialize creates logDir and the timestamped document.
// Later calls return the already open path.
func (sink *Sink) Initialize(logDir string) (string, error) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	if sink.document != nil {
		return sink.path, nil
	}

	e := os.MkdirAll(logDir, 0o755)
	if e != nil {
		return "", fmt.Errorf("create log directory: %w", e)
	}

	startedAt := sink.now()
	var path string
	for {
		path = filepath.Join(logDir, FileName(startedAt))
		// O_EXCL keeps two engines sharing logDir from clobbering each other
		file, e := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(e, os.ErrExist) {
			startedAt = startedAt.Add(time.Second)
			continue
		}
		if e != nil {
			return "", fmt.Errorf("create log file: %w", e)
		}
		file.Close()
		break
	}

	document := newDocument()
	e = writeDocument(path, document)
	if e != nil {
		os.Remove(path)
		return "", fmt.Errorf("write log header: %w", e)
	}
	sink.path = path
	sink.document = document
	sink.logger.Info("log file created", "path", path)
	return path, nil
}

func (sink *Sink) Path() string {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return sink.path
}

// Append records one message. Failures are logged and never returned.
func (sink *Sink) Append(
	timestamp string,
	realm string,
	topic string,
	ipSource string,
	ipDest string,
	payload any,
) {
	entry := Entry{
		Timestamp: splitTimestamp(timestamp),
		Realm:     realm,
		Topic:     topic,
		IPSource:  ipSource,
		IPDest:    ipDest,
		Payload:   normalizePayload(payload),
	}

	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	if sink.document == nil {
		sink.fail(ErrorNotInitialized, entry)
		return
	}
	sink.document.MessageList = append(sink.document.MessageList, entry)
	e := writeDocument(sink.path, sink.document)
	if e != nil {
		sink.fail(e, entry)
	}
}

func (sink *Sink) fail(e error, entry Entry) {
	sink.logger.Error(
		"during append",
		"error", e,
		slog.Group("entry", "realm", entry.Realm, "topic", entry.Topic),
	)
	if sink.onFailure != nil {
		sink.onFailure(e)
	}
}

// Entries returns a copy of every entry appended so far
func (sink *Sink) Entries() []Entry {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	if sink.document == nil {
		return nil
	}
	return append([]Entry(nil), sink.document.MessageList...)
}

func writeDocument(path string, document *Document) error {
	data, e := json.MarshalIndent(document, "", "    ")
	if e != nil {
		return e
	}
	file, e := os.CreateTemp(filepath.Dir(path), ".msglog-*.tmp")
	if e != nil {
		return e
	}
	temporaryPath := file.Name()
	_, e = file.Write(data)
	if e == nil {
		e = file.Sync()
	}
	closeError := file.Close()
	if e == nil {
		e = closeError
	}
	if e == nil {
		e = os.Rename(temporaryPath, path)
	}
	if e != nil {
		os.Remove(temporaryPath)
	}
	return e
}
