package raven

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/appengine"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/config"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/dsn"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport/httpsender"
)

func TestTransportConfigFromOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := TransportConfigFromOptions(config.New(nil))
		require.NoError(t, err)
		def := transport.DefaultConfig()
		assert.Equal(t, def.QueueSize, cfg.QueueSize)
		assert.Equal(t, def.Workers, cfg.Workers)
		assert.Equal(t, transport.DropOldest, cfg.Overflow)
		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.Equal(t, def.SendTimeout, cfg.SendTimeout)
	})

	t.Run("overrides", func(t *testing.T) {
		opts := config.FromOptions(map[string]string{
			OptQueueSize:   "10",
			OptWorkers:     "3",
			OptOverflow:    "drop_newest",
			OptMaxAttempts: "5",
			OptBackoff:     "250ms",
			OptMaxBackoff:  "2",
			OptTimeout:     "1.5",
		})
		cfg, err := TransportConfigFromOptions(opts)
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.QueueSize)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, transport.DropNewest, cfg.Overflow)
		assert.Equal(t, 5, cfg.Retry.MaxAttempts)
		assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
		assert.Equal(t, 2*time.Second, cfg.Retry.MaxBackoff)
		assert.Equal(t, 1500*time.Millisecond, cfg.SendTimeout)
	})

	t.Run("bad overflow", func(t *testing.T) {
		_, err := TransportConfigFromOptions(config.FromOptions(map[string]string{OptOverflow: "spill"}))
		assert.ErrorContains(t, err, OptOverflow)
	})
}

func TestDefaultHelpers(t *testing.T) {
	opts := config.FromOptions(map[string]string{
		OptServerName:  "web-1",
		OptRelease:     "1.4.2",
		OptEnvironment: "staging",
		OptTags:        "team:payments,region:eu",
		OptAppEngine:   "false",
	})
	chain := event.NewHelperChain(DefaultHelpers(opts)...)

	b := event.NewBuilder().WithTag("team", "checkout")
	chain.Apply(b)
	evt := b.Build()

	assert.Equal(t, "web-1", evt.ServerName())
	assert.Equal(t, "1.4.2", evt.Release())
	assert.Equal(t, "staging", evt.Environment())
	team, _ := evt.Tag("team")
	assert.Equal(t, "checkout", team)
	region, _ := evt.Tag("region")
	assert.Equal(t, "eu", region)
}

func TestDefaultHelpers_AppEngineEnabled(t *testing.T) {
	t.Setenv(appengine.RuntimeEnv[appengine.AttrDefaultVersionHostname], "v1.my-app.appspot.com")
	t.Setenv(appengine.RuntimeEnv[appengine.PropApplicationID], "my-app")

	helpers := DefaultHelpers(config.FromOptions(map[string]string{OptAppEngine: "true"}))
	require.NotEmpty(t, helpers)
	assert.Equal(t, "appengine", event.HelperName(helpers[0]))

	b := event.NewBuilder()
	event.NewHelperChain(helpers...).Apply(b)
	evt := b.Build()
	assert.Equal(t, "v1.my-app.appspot.com", evt.ServerName())
	id, ok := evt.Tag(appengine.TagApplicationID)
	require.True(t, ok)
	assert.Equal(t, "my-app", id)
}

func TestDefaultFactory_SenderSelection(t *testing.T) {
	assert.Subset(t, SenderSchemes(), []string{"http", "https", "log", "noop"})

	client, err := DefaultFactory{}.CreateClient(mustParse(t, "noop://key@localhost/1"))
	require.NoError(t, err)
	closeClient(t, client)

	client, err = DefaultFactory{}.CreateClient(mustParse(t, "NOOP://key@localhost/1"))
	require.NoError(t, err)
	assert.Equal(t, "NOOP", client.DSN().Scheme())
	closeClient(t, client)

	_, err = DefaultFactory{}.CreateClient(mustParse(t, "carrier-pigeon://key@localhost/1"))
	assert.ErrorIs(t, err, ErrUnknownScheme)

	_, err = DefaultFactory{}.CreateClient(nil)
	assert.Error(t, err)
}

func TestDefaultFactory_BadOptionFailsResolution(t *testing.T) {
	reg := NewFactoryRegistry(WithDiscovery(noDiscovery()))
	reg.Register("default", DefaultFactory{})

	_, err := reg.ResolveString("noop://key@localhost/1?overflow=sideways")
	var inst *ClientInstantiationError
	require.ErrorAs(t, err, &inst)
	assert.Equal(t, "default", inst.Factory)
}

func TestRegisterSender_Custom(t *testing.T) {
	sender := transport.NewMemorySender()
	RegisterSender("memory-test", func(*dsn.DSN, config.Config) (transport.Sender, error) {
		return sender, nil
	})

	client, err := DefaultFactory{}.CreateClient(mustParse(t, "memory-test://key@localhost/1?tags=svc:api"))
	require.NoError(t, err)
	client.CaptureMessage("via custom sender")
	require.NoError(t, client.Close(time.Second))

	events := sender.Events()
	require.Len(t, events, 1)
	svc, _ := events[0].Tag("svc")
	assert.Equal(t, "api", svc)
}

func TestDefaultFactory_DeadLetterOption(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		client, err := DefaultFactory{}.CreateClient(mustParse(t, "noop://key@localhost/1?deadletter=memory&deadlettersize=5"))
		require.NoError(t, err)
		defer closeClient(t, client)
		assert.IsType(t, &deadletter.MemoryStore{}, client.DeadLetters())
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dl.db")
		client, err := DefaultFactory{}.CreateClient(mustParse(t, "noop://key@localhost/1?deadletter="+path))
		require.NoError(t, err)
		defer closeClient(t, client)
		assert.IsType(t, &deadletter.SQLiteStore{}, client.DeadLetters())
	})

	t.Run("bad path", func(t *testing.T) {
		_, err := DefaultFactory{}.CreateClient(mustParse(t, "noop://key@localhost/1?deadletter=/nonexistent/dir/dl.db"))
		assert.ErrorContains(t, err, "dead-letter")
	})
}

func TestDefaultFactory_EndToEndHTTP(t *testing.T) {
	var hits atomic.Int32
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotAuth.Store(r.Header.Get("X-Sentry-Auth"))
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	raw := "http://pub:sec@" + host + "/7?backoff=1ms&maxattempts=3&release=2.0.0"

	reg := NewFactoryRegistry(WithDiscovery(StaticDiscovery()))
	client, err := reg.ResolveString(raw)
	require.NoError(t, err)

	client.CaptureMessage("end to end")
	require.NoError(t, client.Close(5*time.Second))

	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, gotAuth.Load(), "sentry_key=pub")
	stats := client.Transport().Stats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Retries)
	assert.Equal(t, httpsender.StoreURL(client.DSN()), srv.URL+"/api/7/store/")
}

func TestDefaultFactory_LogScheme(t *testing.T) {
	client, err := DefaultFactory{}.CreateClient(mustParse(t, "log://key@localhost/1"))
	require.NoError(t, err)
	client.CaptureMessage("logged")
	require.NoError(t, client.Close(time.Second))
	assert.Equal(t, uint64(1), client.Transport().Stats().Sent)
}
