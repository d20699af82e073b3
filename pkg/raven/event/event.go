package event

import (
	"maps"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// SDK identification reported with every event.
const (
	SDKName    = "raven-go"
	SDKVersion = "1.0.0"
)

// Event is an immutable error or message report.
// Accessors returning maps or slices return copies.
type Event struct {
	id          string
	message     string
	timestamp   time.Time
	level       Level
	logger      string
	platform    string
	serverName  string
	release     string
	environment string
	culprit     string
	tags        map[string]string
	extra       map[string]any
	fingerprint []string
	exceptions  []Exception
}

// Exception is one link of an error chain.
type Exception struct {
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Stacktrace lists frames oldest call first.
type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// Frame is a single stack frame.
type Frame struct {
	Function string `json:"function,omitempty"`
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename,omitempty"`
	AbsPath  string `json:"abs_path,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
	InApp    bool   `json:"in_app"`
}

// ID returns the 32 character hex event identifier.
func (e *Event) ID() string { return e.id }

// Message returns the human readable message.
func (e *Event) Message() string { return e.message }

// Timestamp returns the capture time in UTC.
func (e *Event) Timestamp() time.Time { return e.timestamp }

// Level returns the severity.
func (e *Event) Level() Level { return e.level }

// Logger returns the name of the logger that produced the event.
func (e *Event) Logger() string { return e.logger }

// Platform returns the reporting platform, "go" unless overridden.
func (e *Event) Platform() string { return e.platform }

// ServerName returns the host the event was captured on.
func (e *Event) ServerName() string { return e.serverName }

// Release returns the application release.
func (e *Event) Release() string { return e.release }

// Environment returns the deployment environment.
func (e *Event) Environment() string { return e.environment }

// Culprit returns the function blamed for the event.
func (e *Event) Culprit() string { return e.culprit }

// Tag returns the value of a single tag.
func (e *Event) Tag(key string) (string, bool) {
	v, ok := e.tags[key]
	return v, ok
}

// Tags returns a copy of the tags.
func (e *Event) Tags() map[string]string { return maps.Clone(e.tags) }

// Extra returns a shallow copy of the extra data.
func (e *Event) Extra() map[string]any { return maps.Clone(e.extra) }

// Fingerprint returns a copy of the grouping fingerprint.
func (e *Event) Fingerprint() []string { return slices.Clone(e.fingerprint) }

// Exceptions returns a copy of the exception chain, innermost first.
func (e *Event) Exceptions() []Exception {
	out := make([]Exception, len(e.exceptions))
	for i, ex := range e.exceptions {
		out[i] = ex.clone()
	}
	return out
}

func (ex Exception) clone() Exception {
	if ex.Stacktrace != nil {
		ex.Stacktrace = &Stacktrace{Frames: slices.Clone(ex.Stacktrace.Frames)}
	}
	return ex
}

// Payload is the JSON document posted to the collector.
type Payload struct {
	EventID     string            `json:"event_id"`
	Message     string            `json:"message,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level"`
	Logger      string            `json:"logger,omitempty"`
	Platform    string            `json:"platform"`
	ServerName  string            `json:"server_name,omitempty"`
	Release     string            `json:"release,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Culprit     string            `json:"culprit,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Exception   *ExceptionValues  `json:"exception,omitempty"`
	SDK         SDK               `json:"sdk"`
}

// ExceptionValues wraps the exception chain the way the collector expects.
type ExceptionValues struct {
	Values []Exception `json:"values"`
}

// SDK identifies the reporting library.
type SDK struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Payload returns the wire representation of the event.
func (e *Event) Payload() *Payload {
	p := &Payload{
		EventID:     e.id,
		Message:     e.message,
		Timestamp:   e.timestamp,
		Level:       e.level,
		Logger:      e.logger,
		Platform:    e.platform,
		ServerName:  e.serverName,
		Release:     e.release,
		Environment: e.environment,
		Culprit:     e.culprit,
		Tags:        e.Tags(),
		Extra:       e.Extra(),
		Fingerprint: e.Fingerprint(),
		SDK:         SDK{Name: SDKName, Version: SDKVersion},
	}
	if len(e.exceptions) > 0 {
		p.Exception = &ExceptionValues{Values: e.Exceptions()}
	}
	return p
}

// MarshalJSON encodes the event as its Payload.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}
