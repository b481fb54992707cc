//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	defaultsDomain = "com.pathway.app"
	// All of pathway's settings sit under one UserDefaults key as a JSON
	// object, the same shape config.json has on other platforms.
	defaultsKey = "settings"
)

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "pathway")
	}
	return "pathway-data"
}

// newPlatformBackend loads settings from UserDefaults. They can be inspected
// with `defaults read com.pathway.app settings`.
func newPlatformBackend() ConfigBackend {
	data, err := readDefaults(defaultsDomain, defaultsKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not read settings from %s: %v. Using default values.\n", defaultsDomain, err)
	}
	s, err := newSettings(data, func(data []byte) error {
		return writeDefaults(defaultsDomain, defaultsKey, data)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse settings from %s: %v. Using default values.\n", defaultsDomain, err)
	}
	return s
}

// readDefaults returns nil when the key has never been written.
func readDefaults(domain, key string) ([]byte, error) {
	out, err := exec.Command("defaults", "read", domain, key).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

func writeDefaults(domain, key string, data []byte) error {
	out, err := exec.Command("defaults", "write", domain, key, "-string", string(data)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("writing %s %s: %w: %s", domain, key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
