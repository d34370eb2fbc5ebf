package patcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

const defaultProxyPort = 443

// ProxyCredentials is the endpoint described by a single vless:// URL.
// Empty ShortID and SpiderX mean the URL did not carry them.
type ProxyCredentials struct {
	Address    string
	Port       int
	UserID     string
	Encryption string
	Flow       string
	Network    string
	Security   string
	ServerName string
	PublicKey  string
	ShortID    string
	SpiderX    string
}

// ParseProxyURL decodes a vless://uuid@host:port?... URL.
func ParseProxyURL(raw string) (*ProxyCredentials, error) {
	// the #remark is never used and may carry a raw '%'
	raw, _, _ = strings.Cut(raw, "#")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProxyURL, err)
	}
	if !strings.EqualFold(u.Scheme, "vless") {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedProxyURL, u.Scheme)
	}

	address, err := proxyHost(u)
	if err != nil {
		return nil, err
	}
	port, err := proxyPort(u)
	if err != nil {
		return nil, err
	}
	userID := rawUserID(raw)
	if len(userID) <= 0 {
		return nil, fmt.Errorf("%w: URL must contain a user id", ErrMalformedProxyURL)
	}

	q := parseQuery(u.RawQuery)
	c := &ProxyCredentials{
		Address:    address,
		Port:       port,
		UserID:     userID,
		Encryption: q.optional("encryption", "none"),
		ShortID:    q.optional("sid", ""),
		SpiderX:    q.optional("spx", ""),
	}
	for _, f := range []struct {
		Key   string
		Store *string
	}{
		{"flow", &c.Flow},
		{"type", &c.Network},
		{"security", &c.Security},
		{"sni", &c.ServerName},
		{"pbk", &c.PublicKey},
	} {
		if *f.Store, err = q.required(f.Key); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// rawUserID returns the user part of the authority as written, without
// percent-decoding it.
func rawUserID(raw string) string {
	_, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	i := strings.LastIndex(rest, "@")
	if i < 0 {
		return ""
	}
	user, _, _ := strings.Cut(rest[:i], ":")
	return user
}

func proxyHost(u *url.URL) (string, error) {
	host := strings.ToLower(u.Hostname())
	if len(host) <= 0 {
		return "", fmt.Errorf("%w: URL must contain a server address", ErrMalformedProxyURL)
	}
	ascii, err := idna.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: server address %q: %w", ErrMalformedProxyURL, host, err)
	}
	return ascii, nil
}

func proxyPort(u *url.URL) (int, error) {
	p := u.Port()
	if len(p) <= 0 {
		return defaultProxyPort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrMalformedProxyURL, p)
	}
	if port == 0 {
		return defaultProxyPort, nil
	}
	return port, nil
}

// queryParams keeps the last value of every key, blank values included.
type queryParams map[string]string

// parseQuery splits on '&' only. Reality spider paths may carry a raw ';'
// which url.ParseQuery refuses.
func parseQuery(raw string) queryParams {
	q := make(queryParams)
	for _, part := range strings.Split(raw, "&") {
		if len(part) <= 0 {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		q[unescapeQuery(k)] = unescapeQuery(v)
	}
	return q
}

// unescapeQuery decodes '+' and every valid %XX escape. Invalid escapes are
// kept as written instead of failing the whole value.
func unescapeQuery(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '+':
			b = append(b, ' ')
		case s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b = append(b, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			b = append(b, s[i])
		}
	}
	return string(b)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c <= '9':
		return c - '0'
	case c <= 'F':
		return c - 'A' + 10
	default:
		return c - 'a' + 10
	}
}

func (q queryParams) required(key string) (string, error) {
	v, ok := q[key]
	if !ok {
		return "", fmt.Errorf("%w: required query parameter %q is missing", ErrMalformedProxyURL, key)
	}
	return v, nil
}

func (q queryParams) optional(key, def string) string {
	if v, ok := q[key]; ok {
		return v
	}
	return def
}
