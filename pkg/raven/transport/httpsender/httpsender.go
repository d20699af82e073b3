// Package httpsender posts events to a Sentry-compatible store endpoint.
package httpsender

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/config"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/dsn"
	rverrors "github.com/ZhanJunLiau/raven-go/pkg/raven/errors"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
)

// ProtocolVersion is the sentry_version sent in the auth header.
const ProtocolVersion = 7

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 4 << 10

// Config configures a Sender.
type Config struct {
	// Client performs the requests. Nil builds one from Timeout and the DSN.
	Client *http.Client

	// Timeout bounds a whole request when Client is nil.
	Timeout time.Duration

	// Compress gzips request bodies.
	Compress bool

	// CompressionLevel is a gzip level; zero means gzip.BestSpeed.
	CompressionLevel int

	// UserAgent overrides the default "raven-go/<version>".
	UserAgent string

	// Now supplies the auth header timestamp. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns compression on and a 10s timeout.
func DefaultConfig() Config {
	return Config{Compress: true, Timeout: 10 * time.Second}
}

// ConfigFromDSN applies the compression and timeout DSN options to base.
func ConfigFromDSN(d *dsn.DSN, base Config) Config {
	opts := config.FromOptions(d.Options())
	base.Compress = opts.Bool("compression", base.Compress)
	base.Timeout = opts.Duration("timeout", base.Timeout)
	return base
}

// Sender delivers events over HTTP. It is safe for concurrent use.
type Sender struct {
	client    *http.Client
	storeURL  string
	publicKey string
	secretKey string
	cfg       Config
	gzipPool  sync.Pool
}

// New returns a Sender for d. The "naive" protocol setting disables TLS
// certificate verification.
func New(d *dsn.DSN, cfg Config) *Sender {
	if cfg.UserAgent == "" {
		cfg.UserAgent = event.SDKName + "/" + event.SDKVersion
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = gzip.BestSpeed
	}

	client := cfg.Client
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if d.HasProtocolSetting("naive") {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opted in via DSN
		}
		client = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}

	return &Sender{
		client:    client,
		storeURL:  StoreURL(d),
		publicKey: d.PublicKey(),
		secretKey: d.SecretKey(),
		cfg:       cfg,
	}
}

// StoreURL returns <scheme>://<host>[:port]<path>/api/<project>/store/.
func StoreURL(d *dsn.DSN) string {
	return d.Endpoint() + "api/" + d.ProjectID() + "/store/"
}

// URL returns the store endpoint this sender posts to.
func (s *Sender) URL() string { return s.storeURL }

// AuthHeader builds the X-Sentry-Auth value for timestamp ts.
func (s *Sender) AuthHeader(ts time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sentry sentry_version=%d, sentry_client=%s, sentry_timestamp=%d, sentry_key=%s",
		ProtocolVersion, s.cfg.UserAgent, ts.Unix(), s.publicKey)
	if s.secretKey != "" {
		sb.WriteString(", sentry_secret=")
		sb.WriteString(s.secretKey)
	}
	return sb.String()
}

// Send posts one event. Non-2xx responses become *errors.HTTPError; transport
// failures are wrapped as transient.
func (s *Sender) Send(ctx context.Context, evt *event.Event) error {
	body, err := json.Marshal(evt.Payload())
	if err != nil {
		return rverrors.Permanent(err, "encode event")
	}

	var encoding string
	if s.cfg.Compress {
		if body, err = s.compress(body); err != nil {
			return rverrors.Permanent(err, "compress event")
		}
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.storeURL, bytes.NewReader(body))
	if err != nil {
		return rverrors.Permanent(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("X-Sentry-Auth", s.AuthHeader(s.cfg.Now()))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rverrors.Transient(err, "post event")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg := resp.Header.Get("X-Sentry-Error")
	if msg == "" {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg = strings.TrimSpace(string(b))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &rverrors.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Endpoint:   s.storeURL,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), s.cfg.Now()),
	}
}

// Close releases idle connections.
func (s *Sender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Sender) compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, _ := s.gzipPool.Get().(*gzip.Writer)
	if w == nil {
		var err error
		if w, err = gzip.NewWriterLevel(&buf, s.cfg.CompressionLevel); err != nil {
			return nil, err
		}
	} else {
		w.Reset(&buf)
	}
	defer s.gzipPool.Put(w)

	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
