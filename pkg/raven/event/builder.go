package event

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPlatform is reported when no platform is set.
const DefaultPlatform = "go"

// maxErrorDepth bounds the errors.Unwrap walk.
const maxErrorDepth = 16

// Builder accumulates the fields of an Event.
// A Builder is owned by a single capture call and is not safe for concurrent use.
type Builder struct {
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

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		tags:  make(map[string]string),
		extra: make(map[string]any),
	}
}

// WithEventID overrides the generated event ID.
func (b *Builder) WithEventID(id string) *Builder {
	b.id = id
	return b
}

// WithMessage sets the message.
func (b *Builder) WithMessage(msg string) *Builder {
	b.message = msg
	return b
}

// WithMessagef sets a formatted message.
func (b *Builder) WithMessagef(format string, args ...any) *Builder {
	b.message = fmt.Sprintf(format, args...)
	return b
}

// WithLevel sets the severity. Unknown levels are ignored.
func (b *Builder) WithLevel(level Level) *Builder {
	if level.Valid() {
		b.level = level
	}
	return b
}

// WithTimestamp sets the capture time. It is stored in UTC.
func (b *Builder) WithTimestamp(t time.Time) *Builder {
	b.timestamp = t.UTC()
	return b
}

// WithLogger sets the logger name.
func (b *Builder) WithLogger(name string) *Builder {
	b.logger = name
	return b
}

// WithPlatform overrides the platform.
func (b *Builder) WithPlatform(platform string) *Builder {
	b.platform = platform
	return b
}

// WithServerName sets the host name.
func (b *Builder) WithServerName(name string) *Builder {
	b.serverName = name
	return b
}

// WithRelease sets the application release.
func (b *Builder) WithRelease(release string) *Builder {
	b.release = release
	return b
}

// WithEnvironment sets the deployment environment.
func (b *Builder) WithEnvironment(env string) *Builder {
	b.environment = env
	return b
}

// WithCulprit sets the function blamed for the event.
func (b *Builder) WithCulprit(culprit string) *Builder {
	b.culprit = culprit
	return b
}

// WithTag sets a tag. Keys are unique; a later call replaces the value.
// Empty keys are ignored.
func (b *Builder) WithTag(key, value string) *Builder {
	if key == "" {
		return b
	}
	b.tags[key] = value
	return b
}

// WithExtra attaches arbitrary data. Empty keys are ignored.
func (b *Builder) WithExtra(key string, value any) *Builder {
	if key == "" {
		return b
	}
	b.extra[key] = value
	return b
}

// WithFingerprint replaces the grouping fingerprint.
func (b *Builder) WithFingerprint(parts ...string) *Builder {
	b.fingerprint = slices.Clone(parts)
	return b
}

// WithError records err and everything it wraps. The stack of the caller is
// attached to the outermost exception. A nil error is ignored.
func (b *Builder) WithError(err error) *Builder {
	if err == nil {
		return b
	}
	b.exceptions = exceptionChain(err, captureStack(1))
	return b
}

// Tag returns a tag already set on the builder.
func (b *Builder) Tag(key string) (string, bool) {
	v, ok := b.tags[key]
	return v, ok
}

// ServerName returns the server name already set on the builder.
func (b *Builder) ServerName() string { return b.serverName }

// Message returns the message already set on the builder.
func (b *Builder) Message() string { return b.message }

// Release returns the release already set on the builder.
func (b *Builder) Release() string { return b.release }

// Environment returns the environment already set on the builder.
func (b *Builder) Environment() string { return b.environment }

// Level returns the level already set on the builder, or "" when unset.
func (b *Builder) Level() Level { return b.level }

// Build snapshots the builder into an Event. The builder stays usable; each
// Build without an explicit ID yields a fresh ID.
func (b *Builder) Build() *Event {
	e := &Event{
		id:          b.id,
		message:     b.message,
		timestamp:   b.timestamp,
		level:       b.level,
		logger:      b.logger,
		platform:    b.platform,
		serverName:  b.serverName,
		release:     b.release,
		environment: b.environment,
		culprit:     b.culprit,
		tags:        maps.Clone(b.tags),
		extra:       maps.Clone(b.extra),
		fingerprint: slices.Clone(b.fingerprint),
		exceptions:  make([]Exception, len(b.exceptions)),
	}
	for i, ex := range b.exceptions {
		e.exceptions[i] = ex.clone()
	}

	if e.id == "" {
		e.id = NewID()
	}
	if e.timestamp.IsZero() {
		e.timestamp = time.Now().UTC()
	}
	if e.level == "" {
		e.level = LevelError
	}
	if e.platform == "" {
		e.platform = DefaultPlatform
	}
	if len(e.exceptions) > 0 {
		outer := e.exceptions[len(e.exceptions)-1]
		if e.message == "" {
			e.message = outer.Value
		}
		if e.culprit == "" {
			e.culprit = culpritOf(outer)
		}
	}
	return e
}

// NewID returns a random 32 character hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// exceptionChain returns the chain innermost first. The outermost error's
// value is its full Error() text.
func exceptionChain(err error, stack *Stacktrace) []Exception {
	var chain []Exception
	for depth := 0; err != nil && depth < maxErrorDepth; depth++ {
		typ, module := typeOf(err)
		chain = append(chain, Exception{Type: typ, Value: err.Error(), Module: module})
		err = unwrapOne(err)
	}
	slices.Reverse(chain)
	if len(chain) > 0 && stack != nil && len(stack.Frames) > 0 {
		chain[len(chain)-1].Stacktrace = stack
	}
	return chain
}

// unwrapOne follows Unwrap() error, or the first error of Unwrap() []error.
func unwrapOne(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

func culpritOf(ex Exception) string {
	if ex.Stacktrace == nil {
		return ""
	}
	frames := ex.Stacktrace.Frames
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].InApp {
			return frames[i].Function
		}
	}
	return ""
}
