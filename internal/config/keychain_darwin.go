//go:build darwin

package config

import (
	"os/exec"
	"strings"
)

// readSecret looks the secret up in the login Keychain. Store one with:
//
//	security add-generic-password -s pathway -a jwt_secret -w <secret>
func readSecret(service, account string) (string, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
