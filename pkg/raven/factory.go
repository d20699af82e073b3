package raven

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/dsn"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/registry"
)

// Factory builds a client for a parsed DSN.
type Factory interface {
	CreateClient(d *dsn.DSN) (*Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(d *dsn.DSN) (*Client, error)

// CreateClient calls f(d).
func (f FactoryFunc) CreateClient(d *dsn.DSN) (*Client, error) { return f(d) }

// FactoryName returns the qualified type name of f, such as
// "github.com/acme/app/reporting.Factory". Pointer receivers are
// dereferenced. Unnamed types fall back to their %T form.
func FactoryName(f Factory) string {
	t := reflect.TypeOf(f)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return fmt.Sprintf("%T", f)
	}
	return t.PkgPath() + "." + t.Name()
}

// Registration pairs a name with a factory.
type Registration struct {
	Name    string
	Factory Factory
}

// Discovery enumerates factories found outside explicit registration.
type Discovery interface {
	Discover() []Registration
}

// DiscoveryFunc adapts a function to Discovery.
type DiscoveryFunc func() []Registration

// Discover calls f.
func (f DiscoveryFunc) Discover() []Registration { return f() }

// FactoryRegistry resolves which factory builds a client. Manually
// registered factories take precedence over discovered ones; a manual
// entry shadows a discovered entry with the same name.
type FactoryRegistry struct {
	manual *registry.Registry[string, Factory]

	discovery   Discovery
	discovered  *registry.Registry[string, Factory]
	discoverMu  sync.Mutex
	didDiscover bool

	lookup func() (string, bool)
	logger *slog.Logger
}

// RegistryOption configures a FactoryRegistry.
type RegistryOption func(*FactoryRegistry)

// WithDiscovery sets the discovery source consulted on first resolution.
// Default: StaticDiscovery()
func WithDiscovery(d Discovery) RegistryOption {
	return func(r *FactoryRegistry) {
		r.discovery = d
	}
}

// WithDSNLookup sets how ResolveDefault finds a DSN.
// Default: dsn.Autodetect
func WithDSNLookup(lookup func() (string, bool)) RegistryOption {
	return func(r *FactoryRegistry) {
		r.lookup = lookup
	}
}

// WithRegistryLogger sets the logger for factory failures.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *FactoryRegistry) {
		r.logger = logger
	}
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry(opts ...RegistryOption) *FactoryRegistry {
	r := &FactoryRegistry{
		manual:     registry.New[string, Factory](),
		discovered: registry.New[string, Factory](),
		discovery:  StaticDiscovery(),
		lookup:     dsn.Autodetect,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register adds f under name, replacing any previous factory with that name
// while keeping its position. A nil factory is ignored.
func (r *FactoryRegistry) Register(name string, f Factory) {
	if f == nil {
		return
	}
	r.manual.Register(name, f)
}

// RegisterFactory registers f under FactoryName(f).
func (r *FactoryRegistry) RegisterFactory(f Factory) {
	if f == nil {
		return
	}
	r.Register(FactoryName(f), f)
}

// Names returns manual names in registration order followed by discovered
// names they do not shadow.
func (r *FactoryRegistry) Names() []string {
	regs := r.candidates()
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

// Reset drops manual registrations and forces rediscovery on the next
// resolution.
func (r *FactoryRegistry) Reset() {
	r.manual.Clear()
	r.discoverMu.Lock()
	r.discovered.Clear()
	r.didDiscover = false
	r.discoverMu.Unlock()
}

func (r *FactoryRegistry) ensureDiscovered() {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()
	if r.didDiscover {
		return
	}
	r.didDiscover = true
	if r.discovery == nil {
		return
	}
	for _, reg := range r.discovery.Discover() {
		if reg.Factory == nil {
			continue
		}
		r.discovered.RegisterIfAbsent(reg.Name, reg.Factory)
	}
}

// candidates returns factories in precedence order.
func (r *FactoryRegistry) candidates() []Registration {
	r.ensureDiscovered()

	var out []Registration
	r.manual.Range(func(name string, f Factory) bool {
		out = append(out, Registration{Name: name, Factory: f})
		return true
	})
	r.discovered.Range(func(name string, f Factory) bool {
		if !r.manual.Has(name) {
			out = append(out, Registration{Name: name, Factory: f})
		}
		return true
	})
	return out
}

// Resolve builds a client with the first factory that succeeds, trying
// manual registrations in order and then discovered ones. With no factories
// it returns ErrNoFactoryAvailable. When all fail it returns the
// *ClientInstantiationError of the first candidate, which also matches
// ErrNoFactoryAvailable; the other failures are logged.
func (r *FactoryRegistry) Resolve(d *dsn.DSN) (*Client, error) {
	regs := r.candidates()
	if len(regs) == 0 {
		return nil, ErrNoFactoryAvailable
	}

	var first *ClientInstantiationError
	for _, reg := range regs {
		client, err := instantiate(reg, d)
		if err == nil {
			return client, nil
		}
		observability.LogFactoryFailed(r.logger, reg.Name, err.Err)
		if first == nil {
			first = err
		}
	}
	first.exhausted = true
	return nil, first
}

// ResolveNamed builds a client with the factory registered as name,
// looking at manual entries first. No other factory is invoked.
func (r *FactoryRegistry) ResolveNamed(d *dsn.DSN, name string) (*Client, error) {
	r.ensureDiscovered()

	f, ok := r.manual.Get(name)
	if !ok {
		f, ok = r.discovered.Get(name)
	}
	if !ok {
		return nil, &FactoryNotFoundError{Name: name}
	}

	client, err := instantiate(Registration{Name: name, Factory: f}, d)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ResolveString parses raw and resolves a client for it. Parse errors are
// returned unchanged.
func (r *FactoryRegistry) ResolveString(raw string) (*Client, error) {
	d, err := dsn.Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.Resolve(d)
}

// ResolveDefault autodetects the DSN and resolves a client for it.
func (r *FactoryRegistry) ResolveDefault() (*Client, error) {
	raw, ok := r.lookup()
	if !ok {
		return nil, ErrNoDSN
	}
	return r.ResolveString(raw)
}

// instantiate calls the factory, turning errors, nil clients and panics
// into a *ClientInstantiationError.
func instantiate(reg Registration, d *dsn.DSN) (client *Client, instErr *ClientInstantiationError) {
	defer func() {
		if p := recover(); p != nil {
			client = nil
			instErr = &ClientInstantiationError{
				Factory: reg.Name,
				Err:     &PanicError{Value: p, Stack: string(debug.Stack())},
			}
		}
	}()

	client, err := reg.Factory.CreateClient(d)
	if err != nil {
		return nil, &ClientInstantiationError{Factory: reg.Name, Err: err}
	}
	if client == nil {
		return nil, &ClientInstantiationError{Factory: reg.Name, Err: errors.New("factory returned nil client")}
	}
	return client, nil
}

var provided = registry.New[string, Factory]()

// Provide makes f discoverable under name. It is meant to be called from
// init functions, the way database/sql drivers register themselves. The
// first registration of a name wins.
func Provide(name string, f Factory) {
	if f == nil {
		panic("raven: Provide factory is nil")
	}
	provided.RegisterIfAbsent(name, f)
}

// StaticDiscovery returns a Discovery over the factories passed to Provide.
func StaticDiscovery() Discovery {
	return DiscoveryFunc(func() []Registration {
		var out []Registration
		provided.Range(func(name string, f Factory) bool {
			out = append(out, Registration{Name: name, Factory: f})
			return true
		})
		return out
	})
}

// DefaultRegistry is the process-wide registry used by the package-level
// functions.
var DefaultRegistry = NewFactoryRegistry()

// Register adds f to DefaultRegistry under name.
func Register(name string, f Factory) { DefaultRegistry.Register(name, f) }

// RegisterFactory adds f to DefaultRegistry under FactoryName(f).
func RegisterFactory(f Factory) { DefaultRegistry.RegisterFactory(f) }

// Resolve resolves a client from DefaultRegistry.
func Resolve(d *dsn.DSN) (*Client, error) { return DefaultRegistry.Resolve(d) }

// ResolveNamed resolves a client from DefaultRegistry using one factory.
func ResolveNamed(d *dsn.DSN, name string) (*Client, error) {
	return DefaultRegistry.ResolveNamed(d, name)
}

// ResolveString parses raw and resolves a client from DefaultRegistry.
func ResolveString(raw string) (*Client, error) { return DefaultRegistry.ResolveString(raw) }

// ResolveDefault autodetects the DSN and resolves a client from DefaultRegistry.
func ResolveDefault() (*Client, error) { return DefaultRegistry.ResolveDefault() }

// Reset clears DefaultRegistry's manual entries and forces rediscovery.
func Reset() { DefaultRegistry.Reset() }
