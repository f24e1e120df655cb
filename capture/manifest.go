package capture

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/evidence/horosafe"
)

// LoadManifest reads a JSON array of target URLs. Every entry must be an
// absolute http(s) URL; the first invalid one fails the whole manifest.
func LoadManifest(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open manifest: %w", err)
	}
	defer f.Close()

	data, err := horosafe.LimitedReadAll(f, horosafe.MaxManifestSize)
	if err != nil {
		return nil, fmt.Errorf("capture: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest bytes.
func ParseManifest(data []byte) ([]Target, error) {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("capture: parse manifest: %w", err)
	}
	targets := make([]Target, 0, len(urls))
	for i, raw := range urls {
		t, err := ParseTarget(raw)
		if err != nil {
			return nil, fmt.Errorf("capture: manifest entry %d: %w", i, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
