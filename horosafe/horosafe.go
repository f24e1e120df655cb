// Package horosafe holds the input guards used before anything touches the
// filesystem or the browser: manifest URL validation, path containment for
// artifact names derived from untrusted URLs, and bounded reads.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxManifestSize caps how much of a manifest file is read (8 MiB).
const MaxManifestSize int64 = 8 << 20

// ErrPathTraversal is returned when a derived file name escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

// SafePath joins base and name and verifies the result stays directly
// under base. name is a single file name, not a relative path: separators
// and the "." and ".." entries are rejected. Dots inside a name ("v1..2")
// are fine.
func SafePath(base, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrPathTraversal
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, name)
	if filepath.Dir(joined) != cleanBase {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// ValidateTargetURL checks that rawURL is absolute, uses http or https and
// names a host. Private addresses are allowed: audited pages may live on
// internal networks.
func ValidateTargetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and fails if more remain.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("horosafe: input exceeds %d bytes", maxBytes)
	}
	return data, nil
}
