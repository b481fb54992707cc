package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ConfigBackend is where non-secret settings persist between runs: UserDefaults
// (domain com.pathway.app) on macOS, a JSON file elsewhere. Durations are
// stored as strings such as "24h".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// settings is the flat form every platform persists, keyed by the dotted
// names in the key table: {"server.port": 4100, "auth.session_ttl": "24h"}.
// Each change is written back through save as a whole JSON object.
type settings struct {
	values map[string]any
	save   func(data []byte) error
}

func newSettings(data []byte, save func([]byte) error) (*settings, error) {
	s := &settings{values: make(map[string]any), save: save}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		s.values = make(map[string]any)
		return s, err
	}
	return s, nil
}

func (s *settings) GetString(key string) (string, bool, error) {
	v, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	if str, ok := v.(string); ok {
		return str, true, nil
	}
	return fmt.Sprintf("%v", v), true, nil
}

func (s *settings) GetInt(key string) (int, bool, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (s *settings) SetString(key, val string) error {
	s.values[key] = val
	return s.flush()
}

func (s *settings) SetInt(key string, val int) error {
	s.values[key] = val
	return s.flush()
}

// Delete removes key. Removing a key that is not set writes nothing.
func (s *settings) Delete(key string) error {
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

func (s *settings) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	return s.save(data)
}

// The session signing secret never goes through ConfigBackend. It lives in
// the platform secret store under this service and account.
const (
	secretService    = "pathway"
	jwtSecretAccount = "jwt_secret"
)

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	return readSecret(service, account)
}
