package chrome

import (
	"fmt"
	"os"

	"md2pdf/internal/config"
)

// createProfileDir makes a fresh user data dir below cfg.UserDataDir, or the
// system temp dir when unset.
func createProfileDir(cfg config.PDFConfig) (string, error) {
	base := cfg.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "md2pdf-chrome-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}
