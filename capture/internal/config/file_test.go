package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Manifest != "review-links.json" || c.Output.Logs != "logs" || c.Output.Screenshots != "screenshots" {
		t.Errorf("paths: %+v", c)
	}
	if c.Policy != "abort" {
		t.Errorf("Policy: got %q, want abort", c.Policy)
	}
	if c.Viewport.Width != 2560 || c.Viewport.Height != 1600 {
		t.Errorf("Viewport: got %+v", c.Viewport)
	}
	if c.Idle.NavigateBelow != 2 || c.Idle.ScrollBelow != 1 || c.Idle.Quiet != 500*time.Millisecond || c.Idle.Timeout != 30*time.Second {
		t.Errorf("Idle: got %+v", c.Idle)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
manifest: targets.json
output:
  logs: out/logs
policy: continue
idle:
  timeout: 5s
browser:
  stealth: headless
  remote: ws://127.0.0.1:9222/devtools/browser/x
fingerprint:
  hash: blake2b
transcripts: true
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example/evidence
`)
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Manifest != "targets.json" || c.Output.Logs != "out/logs" || c.Output.Screenshots != "screenshots" {
		t.Errorf("paths: %+v", c.Output)
	}
	if c.Policy != "continue" || c.Idle.Timeout != 5*time.Second || c.Idle.Quiet != 500*time.Millisecond {
		t.Errorf("policy/idle: %q %+v", c.Policy, c.Idle)
	}
	if c.Browser.Stealth != "headless" || c.Fingerprint.Hash != "blake2b" || !c.Transcripts {
		t.Errorf("browser/hash/transcripts: %+v %+v %v", c.Browser, c.Fingerprint, c.Transcripts)
	}
	if len(c.Sinks) != 2 || c.Sinks[1].URL != "https://hooks.example/evidence" {
		t.Errorf("sinks: %+v", c.Sinks)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"policy", "policy: retry\n", "policy"},
		{"hash", "fingerprint: {hash: md5}\n", "hash"},
		{"stealth", "browser: {stealth: ghost}\n", "stealth"},
		{"webhook", "sinks: [{type: webhook}]\n", "webhook"},
		{"viewport", "viewport: {width: -1}\n", "viewport"},
		{"yaml", "policy: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFile: got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("LoadFile: got %v, want not-exist", err)
	}
}
