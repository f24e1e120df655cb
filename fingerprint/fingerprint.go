// Package fingerprint derives deterministic, filesystem-safe artifact names
// from a URL, optional request/response headers and the capture instant.
//
// A name has the shape Normalize(origin + "-" + hexdigest + "-" + millis).
// Two calls with identical input in the same millisecond produce the same
// name; network artifacts rely on the millisecond to avoid overwriting
// each other across events.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Namer computes fingerprint filenames. The clock and hash are injectable
// so names can be reproduced in tests.
type Namer struct {
	now     func() time.Time
	newHash func() hash.Hash
}

// Option configures a Namer.
type Option func(*Namer)

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Namer) { n.now = now }
}

// WithHash sets the hash constructor. Default: SHA-256.
func WithHash(newHash func() hash.Hash) Option {
	return func(n *Namer) { n.newHash = newHash }
}

// New creates a Namer using SHA-256 and the wall clock unless overridden.
func New(opts ...Option) *Namer {
	n := &Namer{
		now:     time.Now,
		newHash: sha256.New,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// HashByName resolves a configured hash name. Empty means sha256.
func HashByName(name string) (func() hash.Hash, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return sha256.New, nil
	case "blake2b":
		return func() hash.Hash {
			h, _ := blake2b.New256(nil) // only fails on an oversized key
			return h
		}, nil
	default:
		return nil, fmt.Errorf("fingerprint: unknown hash %q", name)
	}
}

// Filename returns the fingerprint slug for rawURL. When headers is non-nil
// its JSON encoding is appended to the hashed input. The only error is an
// unparseable URL.
func (n *Namer) Filename(rawURL string, headers map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fingerprint: parse %q: %w", rawURL, err)
	}

	h := n.newHash()
	h.Write([]byte(Serialize(u)))
	if headers != nil {
		data, err := json.Marshal(headers)
		if err != nil {
			return "", fmt.Errorf("fingerprint: marshal headers: %w", err)
		}
		h.Write(data)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	millis := strconv.FormatInt(n.now().UnixMilli(), 10)

	return Normalize(Origin(u) + "-" + digest + "-" + millis), nil
}

// Serialize renders u the way a browser's URL parser prints it: lowercase
// scheme and host, no default port, and "/" for an empty path on http(s),
// ws(s) and ftp URLs. Opaque and host-less URLs are printed unchanged.
func Serialize(u *url.URL) string {
	if u.Opaque != "" || u.Host == "" {
		return u.String()
	}
	c := *u
	c.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := u.Port(); p != "" && p != defaultPort(c.Scheme) {
		host += ":" + p
	}
	c.Host = host
	if c.Path == "" && defaultPort(c.Scheme) != "" {
		c.Path, c.RawPath = "/", ""
	}
	return c.String()
}

// Origin returns scheme://host[:port] for hierarchical URLs, "null" otherwise.
func Origin(u *url.URL) string {
	if u.Scheme == "" || u.Host == "" {
		return "null"
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := u.Port(); p != "" && p != defaultPort(u.Scheme) {
		host += ":" + p
	}
	return strings.ToLower(u.Scheme) + "://" + host
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	case "ftp":
		return "21"
	}
	return ""
}
