package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	wampEngine "github.com/wamp3hub/wampytester/engine"
	wampLogSink "github.com/wamp3hub/wampytester/logsink"
)

var (
	sentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	receivedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("32")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// console prints every logged message and counts outcomes of publish requests
type console struct {
	mutex    sync.Mutex
	output   io.Writer
	sent     int
	failed   int
	outcomes chan struct{}
}

func newConsole(output io.Writer) *console {
	return &console{output: output, outcomes: make(chan struct{}, 1024)}
}

func render(payload any) string {
	data, e := json.Marshal(payload)
	if e != nil {
		return fmt.Sprint(payload)
	}
	return string(data)
}

func (view *console) line(style lipgloss.Style, label string, realm string, topic string, timestamp time.Time, payload any) {
	view.mutex.Lock()
	defer view.mutex.Unlock()
	fmt.Fprintf(
		view.output, "%s %s %s %s\n",
		metaStyle.Render(wampLogSink.FormatTimestamp(timestamp)),
		style.Render(label),
		metaStyle.Render(realm+" "+topic),
		render(payload),
	)
}

func (view *console) OnSent(realm string, topic string, timestamp time.Time, payload any) {
	view.line(sentStyle, "SENT", realm, topic, timestamp, payload)
	view.mutex.Lock()
	view.sent++
	view.mutex.Unlock()
	view.outcomes <- struct{}{}
}

func (view *console) OnReceived(realm string, topic string, timestamp time.Time, payload any, failed bool) {
	if !failed {
		view.line(receivedStyle, "RECV", realm, topic, timestamp, payload)
		return
	}
	view.line(errorStyle, "FAIL", realm, topic, timestamp, payload)
	if topic == wampEngine.TOPIC_CONNECTION {
		return
	}
	view.mutex.Lock()
	view.failed++
	view.mutex.Unlock()
	view.outcomes <- struct{}{}
}

// Callback prints subscription summaries, events already went through OnReceived
func (view *console) Callback(realm string, topic string, payload map[string]any) {
	if topic != wampEngine.TOPIC_SUBSCRIPTION {
		return
	}
	style := statusStyle
	if _, failed := payload["error"]; failed {
		style = errorStyle
	}
	view.line(style, "SUBS", realm, topic, time.Now(), payload)
}

func (view *console) Reset() {
	view.mutex.Lock()
	defer view.mutex.Unlock()
	view.sent = 0
	view.failed = 0
}

func (view *console) counts() (int, int) {
	view.mutex.Lock()
	defer view.mutex.Unlock()
	return view.sent, view.failed
}
