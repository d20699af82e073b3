// Package appengine provides an event helper that records where on Google
// App Engine an event was captured.
package appengine

import (
	"os"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
)

// Keys read by the helper.
const (
	AttrDefaultVersionHostname = "com.google.appengine.runtime.default_version_hostname"
	PropApplicationVersion     = "com.google.appengine.application.version"
	PropApplicationID          = "com.google.appengine.application.id"
)

// Tag names written by the helper.
const (
	TagApplicationVersion = "GAE Application Version"
	TagApplicationID      = "GAE Application Id"
)

// AttributeSource exposes the request environment attributes.
type AttributeSource interface {
	Attribute(key string) (string, bool)
}

// PropertySource exposes the runtime properties.
type PropertySource interface {
	Property(key string) (string, bool)
}

// Values is an in-memory AttributeSource and PropertySource.
type Values map[string]string

// Attribute implements AttributeSource.
func (v Values) Attribute(key string) (string, bool) { return v.lookup(key) }

// Property implements PropertySource.
func (v Values) Property(key string) (string, bool) { return v.lookup(key) }

func (v Values) lookup(key string) (string, bool) {
	s, ok := v[key]
	return s, ok && s != ""
}

// EnvValues resolves keys through environment variables named by the map.
type EnvValues map[string]string

// Attribute implements AttributeSource.
func (e EnvValues) Attribute(key string) (string, bool) { return e.lookup(key) }

// Property implements PropertySource.
func (e EnvValues) Property(key string) (string, bool) { return e.lookup(key) }

func (e EnvValues) lookup(key string) (string, bool) {
	name, ok := e[key]
	if !ok {
		return "", false
	}
	v := os.Getenv(name)
	return v, v != ""
}

// RuntimeEnv maps the helper's keys to the variables the App Engine runtime sets.
var RuntimeEnv = EnvValues{
	AttrDefaultVersionHostname: "DEFAULT_VERSION_HOSTNAME",
	PropApplicationVersion:     "GAE_VERSION",
	PropApplicationID:          "GAE_APPLICATION",
}

// Helper sets the server name to the default version host name and tags the
// application version and id. Missing values are skipped.
type Helper struct {
	Environment AttributeSource
	Properties  PropertySource
}

var _ event.Helper = (*Helper)(nil)

// New returns a Helper backed by the runtime's environment variables.
func New() *Helper {
	return &Helper{Environment: RuntimeEnv, Properties: RuntimeEnv}
}

// Name implements event.Named.
func (h *Helper) Name() string { return "appengine" }

// Enrich implements event.Helper.
func (h *Helper) Enrich(b *event.Builder) {
	if h.Environment != nil {
		if host, ok := h.Environment.Attribute(AttrDefaultVersionHostname); ok {
			b.WithServerName(host)
		}
	}
	if h.Properties == nil {
		return
	}
	if version, ok := h.Properties.Property(PropApplicationVersion); ok {
		b.WithTag(TagApplicationVersion, version)
	}
	if id, ok := h.Properties.Property(PropApplicationID); ok {
		b.WithTag(TagApplicationID, id)
	}
}
