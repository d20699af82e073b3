package dsn

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformed is matched by every parse failure.
var ErrMalformed = errors.New("malformed dsn")

// MalformedError reports which component of a DSN is invalid.
// It never contains the secret key.
type MalformedError struct {
	Component string
	Reason    string
}

// Error implements error.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed dsn: %s: %s", e.Component, e.Reason)
}

// Is matches ErrMalformed.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(component, reason string) error {
	return &MalformedError{Component: component, Reason: reason}
}

// DSN is a parsed connection descriptor. It is immutable.
type DSN struct {
	scheme           string
	protocolSettings []string
	publicKey        string
	secretKey        string
	host             string
	port             int
	path             string
	projectID        string
	options          map[string]string
}

// Parse parses
//
//	scheme[+setting...]://[public[:secret]@]host[:port]/[path/]project-id[?key=value&...]
//
// On failure it returns a *MalformedError and no DSN.
func Parse(raw string) (*DSN, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, malformed("dsn", "empty")
	}

	schemePart, rest, ok := strings.Cut(raw, "://")
	if !ok || schemePart == "" {
		return nil, malformed("scheme", "missing")
	}
	d := &DSN{options: map[string]string{}}

	parts := strings.Split(schemePart, "+")
	for _, p := range parts {
		if !validScheme(p) {
			return nil, malformed("scheme", fmt.Sprintf("invalid %q", p))
		}
	}
	d.scheme = parts[0]
	d.protocolSettings = append(d.protocolSettings, parts[1:]...)

	if strings.Contains(rest, "#") {
		return nil, malformed("project id", "unexpected fragment")
	}
	rest, query, hasQuery := strings.Cut(rest, "?")
	if hasQuery {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, malformed("options", "unparsable query")
		}
		for k, v := range values {
			if len(v) > 0 {
				d.options[k] = v[0]
			}
		}
	}

	authority, pathPart, _ := strings.Cut(rest, "/")
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		if err := d.parseCredentials(authority[:at]); err != nil {
			return nil, err
		}
		authority = authority[at+1:]
	}
	if err := d.parseHostPort(authority); err != nil {
		return nil, err
	}

	pathPart = strings.TrimRight(pathPart, "/")
	if slash := strings.LastIndex(pathPart, "/"); slash >= 0 {
		d.path = "/" + pathPart[:slash]
		d.projectID = pathPart[slash+1:]
	} else {
		d.projectID = pathPart
	}
	if d.projectID == "" {
		return nil, malformed("project id", "missing")
	}
	return d, nil
}

func (d *DSN) parseCredentials(userinfo string) error {
	public, secret, hasSecret := strings.Cut(userinfo, ":")
	public, err := url.PathUnescape(public)
	if err != nil {
		return malformed("public key", "invalid escape")
	}
	if public == "" {
		return malformed("public key", "empty")
	}
	if hasSecret {
		if secret, err = url.PathUnescape(secret); err != nil {
			return malformed("secret key", "invalid escape")
		}
	}
	d.publicKey = public
	d.secretKey = secret
	return nil
}

func (d *DSN) parseHostPort(hostport string) error {
	if hostport == "" {
		return malformed("host", "missing")
	}

	host, port := hostport, ""
	bracketed := strings.HasPrefix(hostport, "[")
	if bracketed {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return malformed("host", "unterminated IPv6 literal")
		}
		host = hostport[1:end]
		if tail := hostport[end+1:]; tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return malformed("host", "unexpected text after IPv6 literal")
			}
			port = tail[1:]
			if port == "" {
				return malformed("port", "empty")
			}
		}
	} else if h, p, ok := strings.Cut(hostport, ":"); ok {
		host, port = h, p
		if port == "" {
			return malformed("port", "empty")
		}
	}
	if host == "" {
		return malformed("host", "missing")
	}
	if bracketed {
		if net.ParseIP(stripZone(host)) == nil || !strings.Contains(host, ":") {
			return malformed("host", "invalid IPv6 literal")
		}
	} else if !validHostname(host) {
		return malformed("host", "invalid character")
	}
	d.host = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return malformed("port", fmt.Sprintf("invalid %q", port))
		}
		d.port = n
	}
	return nil
}

// validHostname accepts registered names: letters (including non-ASCII),
// digits, '-', '.' and '_'.
func validHostname(h string) bool {
	for _, r := range h {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.', r == '_':
		default:
			return false
		}
	}
	return true
}

func stripZone(h string) string {
	if i := strings.IndexByte(h, '%'); i >= 0 {
		return h[:i]
	}
	return h
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}

// Scheme returns the transport scheme as written.
func (d *DSN) Scheme() string { return d.scheme }

// ProtocolSettings returns the "+setting" suffixes of the scheme.
func (d *DSN) ProtocolSettings() []string { return slices.Clone(d.protocolSettings) }

// HasProtocolSetting reports whether the scheme carries the given setting.
func (d *DSN) HasProtocolSetting(setting string) bool {
	return slices.ContainsFunc(d.protocolSettings, func(s string) bool {
		return strings.EqualFold(s, setting)
	})
}

// PublicKey returns the public key, or "" when absent.
func (d *DSN) PublicKey() string { return d.publicKey }

// SecretKey returns the secret key, or "" when absent.
func (d *DSN) SecretKey() string { return d.secretKey }

// Host returns the host without brackets.
func (d *DSN) Host() string { return d.host }

// Port returns the port, or 0 when none was given.
func (d *DSN) Port() int { return d.port }

// Path returns the path prefix before the project id, without a trailing slash.
func (d *DSN) Path() string { return d.path }

// ProjectID returns the project identifier.
func (d *DSN) ProjectID() string { return d.projectID }

// Options returns a copy of the query options.
func (d *DSN) Options() map[string]string { return maps.Clone(d.options) }

// Option returns a single query option.
func (d *DSN) Option(key string) (string, bool) {
	v, ok := d.options[key]
	return v, ok
}

// Endpoint returns the collector base URL, ending in a slash, with the
// scheme lower-cased:
// <scheme>://<host>[:port]<path>/
func (d *DSN) Endpoint() string {
	return strings.ToLower(d.scheme) + "://" + d.hostPort() + d.path + "/"
}

func (d *DSN) hostPort() string {
	if d.port != 0 {
		return net.JoinHostPort(d.host, strconv.Itoa(d.port))
	}
	if strings.Contains(d.host, ":") {
		return "[" + d.host + "]"
	}
	return d.host
}

// String returns the DSN in canonical form; Parse(d.String()) is equal to d.
// Options are sorted by key.
func (d *DSN) String() string {
	return d.format(d.secretKey)
}

// Redacted returns String with the secret key masked.
func (d *DSN) Redacted() string {
	if d.secretKey == "" {
		return d.String()
	}
	return d.format("xxxxx")
}

func (d *DSN) format(secret string) string {
	var sb strings.Builder
	sb.WriteString(d.scheme)
	for _, s := range d.protocolSettings {
		sb.WriteString("+")
		sb.WriteString(s)
	}
	sb.WriteString("://")
	if d.publicKey != "" {
		sb.WriteString(url.PathEscape(d.publicKey))
		if secret != "" {
			sb.WriteString(":")
			sb.WriteString(url.PathEscape(secret))
		}
		sb.WriteString("@")
	}
	sb.WriteString(d.hostPort())
	sb.WriteString(d.path)
	sb.WriteString("/")
	sb.WriteString(d.projectID)

	if len(d.options) > 0 {
		values := url.Values{}
		for k, v := range d.options {
			values.Set(k, v)
		}
		sb.WriteString("?")
		sb.WriteString(values.Encode()) // Encode sorts by key
	}
	return sb.String()
}
