// Package eventlog is the honeypot's audit log: one immutable entry per
// observed interaction, fanned out to the configured sinks. This log is a
// product feature and separate from process diagnostics.
package eventlog

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// Event identifiers attached to every entry.
const (
	EventSensorStarted = "obscura.sensor.started"
	EventHTTPRequest   = "obscura.http.request"
	EventLoginSuccess  = "obscura.http.login_success"
	EventLoginFailed   = "obscura.http.login_failed"
	EventUpload        = "obscura.http.upload"
	EventFFmpegStarted = "obscura.ffmpeg.started"
	EventRemovedLock   = "obscura.maintenance.removed_lock"
)

// Entry is one audit event. Entries are immutable once constructed.
type Entry struct {
	EventID   string
	Timestamp time.Time
	Message   string
	IsError   bool
	SrcIP     string
	Sensor    string
	// Fields carries open-ended auxiliary data (user agent, parameter
	// snapshots). Serialised inline with the fixed attributes.
	Fields map[string]any
}

// String renders the stdout form: [ts] event: message ip@sensor.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s %s@%s",
		e.Timestamp.Format(time.RFC3339), e.EventID, e.Message, e.SrcIP, e.Sensor)
}

// MarshalJSON flattens Fields into the top-level object alongside the fixed
// attributes.
func (e Entry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+6)
	for key, value := range e.Fields {
		flat[key] = value
	}
	flat["eventId"] = e.EventID
	flat["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	flat["message"] = e.Message
	flat["isError"] = e.IsError
	flat["src_ip"] = e.SrcIP
	flat["sensor"] = e.Sensor
	return json.Marshal(flat)
}

// Sink receives every logged entry. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(entry Entry) error
}

// Logger stamps entries with the sensor name and fans them out. Sink
// failures are reported to the diagnostic logger and swallowed: an unlogged
// event is preferable to a crashed server.
type Logger struct {
	sensor string
	sinks  []Sink
	diag   *slog.Logger
	now    func() time.Time
}

// New builds a Logger for the named sensor.
func New(sensor string, diag *slog.Logger, sinks ...Sink) *Logger {
	if diag == nil {
		diag = slog.Default()
	}
	return &Logger{sensor: sensor, sinks: sinks, diag: diag, now: time.Now}
}

// AddSink appends a sink. Not safe to call once the logger is in use.
func (l *Logger) AddSink(sink Sink) {
	l.sinks = append(l.sinks, sink)
}

// Log records one event.
func (l *Logger) Log(eventID, message string, isError bool, srcIP string, fields map[string]any) {
	if l == nil {
		return
	}
	entry := Entry{
		EventID:   eventID,
		Timestamp: l.now(),
		Message:   message,
		IsError:   isError,
		SrcIP:     srcIP,
		Sensor:    l.sensor,
		Fields:    fields,
	}
	for _, sink := range l.sinks {
		if err := sink.Write(entry); err != nil {
			l.diag.Error("event sink write failed", "event", eventID, "error", err)
		}
	}
}

// LogRequest records one event enriched with the request's user agent and
// parameter snapshots.
func (l *Logger) LogRequest(eventID, message string, r *http.Request, isError bool) {
	fields := map[string]any{
		"useragent": r.UserAgent(),
		"get":       flattenValues(r.URL.Query()),
		"post":      postSnapshot(r),
	}
	l.Log(eventID, message, isError, remoteHost(r), fields)
}

func postSnapshot(r *http.Request) map[string]string {
	if r.PostForm == nil {
		// Best effort; multipart bodies are consumed by the catchfile
		// action instead.
		_ = r.ParseForm()
	}
	return flattenValues(r.PostForm)
}

func flattenValues(values url.Values) map[string]string {
	flat := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) > 0 {
			flat[key] = list[0]
		}
	}
	return flat
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
