package raven

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/appengine"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/config"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/dsn"
	rverrors "github.com/ZhanJunLiau/raven-go/pkg/raven/errors"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/registry"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport/httpsender"
)

// DSN option keys understood by DefaultFactory.
const (
	OptQueueSize      = "queuesize"
	OptOverflow       = "overflow"
	OptWorkers        = "workers"
	OptMaxAttempts    = "maxattempts"
	OptBackoff        = "backoff"
	OptMaxBackoff     = "maxbackoff"
	OptTimeout        = "timeout"
	OptCompression    = "compression"
	OptServerName     = "servername"
	OptRelease        = "release"
	OptEnvironment    = "environment"
	OptTags           = "tags"
	OptDeadLetter     = "deadletter"
	OptDeadLetterSize = "deadlettersize"
	OptAppEngine      = "appengine"
)

// SenderConstructor builds the sender for a DSN scheme.
type SenderConstructor func(d *dsn.DSN, opts config.Config) (transport.Sender, error)

var senders = registry.New[string, SenderConstructor]()

// RegisterSender makes DefaultFactory use c for DSNs with the given scheme,
// replacing any previous constructor.
func RegisterSender(scheme string, c SenderConstructor) {
	senders.Register(strings.ToLower(scheme), c)
}

// SenderSchemes returns the schemes DefaultFactory can serve, in
// registration order.
func SenderSchemes() []string {
	return senders.Keys()
}

func newHTTPSender(d *dsn.DSN, _ config.Config) (transport.Sender, error) {
	return httpsender.New(d, httpsender.ConfigFromDSN(d, httpsender.DefaultConfig())), nil
}

func newLogSender(_ *dsn.DSN, _ config.Config) (transport.Sender, error) {
	return transport.NewLogSender(nil), nil
}

func newNoopSender(_ *dsn.DSN, _ config.Config) (transport.Sender, error) {
	return transport.NoopSender{}, nil
}

func init() {
	RegisterSender("http", newHTTPSender)
	RegisterSender("https", newHTTPSender)
	RegisterSender("log", newLogSender)
	RegisterSender("noop", newNoopSender)

	Provide(FactoryName(DefaultFactory{}), DefaultFactory{})
}

// DefaultFactory builds clients entirely from DSN options. It is
// discoverable under FactoryName(DefaultFactory{}).
type DefaultFactory struct {
	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Tracing observability.SpanManager

	// Helpers run after the default helpers.
	Helpers []event.Helper
}

// CreateClient implements Factory.
func (f DefaultFactory) CreateClient(d *dsn.DSN) (*Client, error) {
	if d == nil {
		return nil, errors.New("dsn is nil")
	}
	opts := config.FromOptions(d.Options())

	tcfg, err := TransportConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}

	ctor, ok := senders.Get(strings.ToLower(d.Scheme()))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, d.Scheme())
	}
	sender, err := ctor(d, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s sender: %w", d.Scheme(), err)
	}

	clientOpts := []ClientOption{
		WithTransportConfig(tcfg),
		WithHelpers(DefaultHelpers(opts)...),
		WithHelpers(f.Helpers...),
		WithLogger(f.Logger),
	}
	if f.Metrics != nil {
		clientOpts = append(clientOpts, WithMetrics(f.Metrics))
	}
	if f.Tracing != nil {
		clientOpts = append(clientOpts, WithTracing(f.Tracing))
	}

	store, err := openDeadLetters(opts)
	if err != nil {
		_ = sender.Close()
		return nil, err
	}
	if store != nil {
		clientOpts = append(clientOpts, WithDeadLetters(store))
	}

	return NewClient(d, sender, clientOpts...)
}

// TransportConfigFromOptions decodes the transport DSN options on top of
// transport.DefaultConfig.
func TransportConfigFromOptions(opts config.Config) (transport.Config, error) {
	cfg := transport.DefaultConfig()
	cfg.QueueSize = opts.Int(OptQueueSize, cfg.QueueSize)
	cfg.Workers = opts.Int(OptWorkers, cfg.Workers)
	cfg.SendTimeout = opts.Duration(OptTimeout, cfg.SendTimeout)

	if raw := opts.String(OptOverflow, ""); raw != "" {
		policy, err := transport.ParseOverflowPolicy(raw)
		if err != nil {
			return transport.Config{}, fmt.Errorf("option %s: %w", OptOverflow, err)
		}
		cfg.Overflow = policy
	}

	cfg.Retry = rverrors.NewRetryConfig(
		rverrors.WithMaxAttempts(opts.Int(OptMaxAttempts, cfg.Retry.MaxAttempts)),
		rverrors.WithInitialBackoff(opts.Duration(OptBackoff, cfg.Retry.InitialBackoff)),
		rverrors.WithMaxBackoff(opts.Duration(OptMaxBackoff, cfg.Retry.MaxBackoff)),
	)
	return cfg, nil
}

// DefaultHelpers returns the helpers DefaultFactory installs, in order:
// App Engine (when enabled or detected), explicit server name, host name,
// release and environment, static tags.
func DefaultHelpers(opts config.Config) []event.Helper {
	var helpers []event.Helper

	if opts.Bool(OptAppEngine, os.Getenv("GAE_APPLICATION") != "") {
		helpers = append(helpers, appengine.New())
	}
	if name := opts.String(OptServerName, ""); name != "" {
		helpers = append(helpers, event.HelperFunc(func(b *event.Builder) {
			b.WithServerName(name)
		}))
	}
	helpers = append(helpers, event.HostnameHelper{})

	release := opts.String(OptRelease, "")
	env := opts.String(OptEnvironment, "")
	if release != "" || env != "" {
		helpers = append(helpers, event.ReleaseHelper{Release: release, Environment: env})
	}
	if tags := opts.StringMap(OptTags, nil); len(tags) > 0 {
		helpers = append(helpers, event.StaticTags(tags))
	}
	return helpers
}

// openDeadLetters opens the store named by the deadletter option: "memory"
// for a bounded in-process store, anything else is a SQLite path.
func openDeadLetters(opts config.Config) (deadletter.Store, error) {
	target := opts.String(OptDeadLetter, "")
	switch target {
	case "":
		return nil, nil
	case "memory":
		return deadletter.NewMemoryStore(opts.Int(OptDeadLetterSize, deadletter.DefaultCapacity)), nil
	default:
		store, err := deadletter.NewSQLiteStore(target)
		if err != nil {
			return nil, fmt.Errorf("open dead-letter store: %w", err)
		}
		return store, nil
	}
}
