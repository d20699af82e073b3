package event

import "os"

// HostnameHelper sets the server name to the machine's host name unless one
// is already set.
type HostnameHelper struct {
	// Hostname overrides os.Hostname.
	Hostname func() (string, error)
}

// Name implements Named.
func (h HostnameHelper) Name() string { return "hostname" }

// Enrich implements Helper.
func (h HostnameHelper) Enrich(b *Builder) {
	if b.ServerName() != "" {
		return
	}
	lookup := h.Hostname
	if lookup == nil {
		lookup = os.Hostname
	}
	if name, err := lookup(); err == nil && name != "" {
		b.WithServerName(name)
	}
}

// StaticTags adds fixed tags without overriding tags set by the caller.
type StaticTags map[string]string

// Name implements Named.
func (t StaticTags) Name() string { return "static_tags" }

// Enrich implements Helper.
func (t StaticTags) Enrich(b *Builder) {
	for k, v := range t {
		if _, ok := b.Tag(k); !ok {
			b.WithTag(k, v)
		}
	}
}

// ReleaseHelper fills release and environment when the caller left them empty.
type ReleaseHelper struct {
	Release     string
	Environment string
}

// Name implements Named.
func (h ReleaseHelper) Name() string { return "release" }

// Enrich implements Helper.
func (h ReleaseHelper) Enrich(b *Builder) {
	if h.Release != "" && b.Release() == "" {
		b.WithRelease(h.Release)
	}
	if h.Environment != "" && b.Environment() == "" {
		b.WithEnvironment(h.Environment)
	}
}
