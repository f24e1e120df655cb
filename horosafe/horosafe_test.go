package horosafe

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, name string
		wantErr    bool
	}{
		{"logs", "mention-id-xyz-https-a-1.request.json", false},
		{"logs", "../etc/passwd", true},
		{"logs", "a/b.json", true},
		{"logs", `a\b.json`, true},
		{"logs", "..", true},
		{"logs", ".", true},
		{"logs", "mention-id-a..b-https-a-1.request.json", false},
		{"logs", "v1..2-https-a-1.response.json", false},
		{"logs", "", true},
		{"/data/logs", "abc-123.response.json", false},
	}
	for _, tt := range tests {
		got, err := SafePath(tt.base, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("SafePath(%q, %q): got %v, want ErrPathTraversal", tt.base, tt.name, err)
			}
			continue
		}
		if want := filepath.Join(tt.base, tt.name); got != want {
			t.Errorf("SafePath(%q, %q) = %q, want %q", tt.base, tt.name, got, want)
		}
	}
}

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://site.example/review/abc?mention_id=xyz", false},
		{"http://10.0.0.1/internal", false},
		{"ftp://site.example/data", true},
		{"javascript:alert(1)", true},
		{"/relative/path", true},
		{"https://", true},
		{"http://[::1", true},
	}
	for _, tt := range tests {
		err := ValidateTargetURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTargetURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}

	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); err == nil {
		t.Fatal("expected error when input exceeds limit")
	}
}
