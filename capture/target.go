package capture

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/evidence/fingerprint"
	"github.com/hazyhaar/evidence/horosafe"
)

// Target is one manifest entry.
type Target struct {
	URL       string
	MentionID string // last path segment, used for display and response logs

	u *url.URL
}

// ParseTarget validates rawURL as an absolute http(s) URL.
func ParseTarget(rawURL string) (Target, error) {
	if err := horosafe.ValidateTargetURL(rawURL); err != nil {
		return Target{}, fmt.Errorf("capture: target %q: %w", rawURL, err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("capture: target %q: %w", rawURL, err)
	}
	t := Target{URL: rawURL, u: u}
	t.MentionID = t.ResponseMentionID()
	return t, nil
}

// RequestMentionID is the mention_id query parameter of the target URL, or
// "null" when the parameter is absent.
func (t Target) RequestMentionID() string {
	q := t.u.Query()
	if !q.Has("mention_id") {
		return "null"
	}
	return q.Get("mention_id")
}

// ResponseMentionID is the last segment of the target URL's path. It is
// empty when the path ends in a slash.
func (t Target) ResponseMentionID() string {
	p := t.u.EscapedPath()
	return p[strings.LastIndex(p, "/")+1:]
}

// Slug names the target's screenshots. The URL is serialised in browser
// form first so "https://Site.Example" and "https://site.example/" share a
// slug.
func (t Target) Slug() string {
	return fingerprint.Normalize(fingerprint.Serialize(t.u))
}
