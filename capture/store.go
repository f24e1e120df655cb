package capture

import (
	"fmt"
	"os"

	"github.com/hazyhaar/evidence/horosafe"
)

// Store writes artifacts under the logs and screenshots directories.
// Every name is checked to stay directly inside its directory.
type Store struct {
	LogsDir        string
	ScreenshotsDir string
}

// NewStore returns a Store over the two output directories.
func NewStore(logsDir, screenshotsDir string) *Store {
	return &Store{LogsDir: logsDir, ScreenshotsDir: screenshotsDir}
}

// Prepare creates both directories. It is idempotent.
func (s *Store) Prepare() error {
	for _, dir := range []string{s.LogsDir, s.ScreenshotsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteLog writes a network record file and returns its path.
func (s *Store) WriteLog(name string, data []byte) (string, error) {
	return write(s.LogsDir, name, data)
}

// WriteScreenshot writes (or overwrites) a checkpoint artifact and returns
// its path.
func (s *Store) WriteScreenshot(name string, data []byte) (string, error) {
	return write(s.ScreenshotsDir, name, data)
}

// ScreenshotPath resolves name inside the screenshots directory.
func (s *Store) ScreenshotPath(name string) (string, error) {
	return horosafe.SafePath(s.ScreenshotsDir, name)
}

func write(dir, name string, data []byte) (string, error) {
	path, err := horosafe.SafePath(dir, name)
	if err != nil {
		return "", fmt.Errorf("capture: %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("capture: write %s: %w", path, err)
	}
	return path, nil
}
