// Package secret resolves credential references used in configuration
// values: env:NAME, keyring:service/user, file:path, or a literal.
package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when a reference points at nothing.
var ErrNotFound = errors.New("secret not found")

// Resolver turns references into values. The zero value reads the process
// environment, the OS keyring and the local filesystem.
type Resolver struct {
	// Getenv overrides os.LookupEnv.
	Getenv func(string) (string, bool)

	// ReadFile overrides os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

// IsReference reports whether s uses one of the reference schemes.
func IsReference(s string) bool {
	for _, p := range []string{"env:", "keyring:", "file:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Resolve returns the value behind ref. Anything without a known scheme is
// returned unchanged.
func (r Resolver) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		lookup := r.Getenv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		v, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s: %w", name, ErrNotFound)
		}
		return v, nil

	case strings.HasPrefix(ref, "keyring:"):
		service, user, ok := strings.Cut(strings.TrimPrefix(ref, "keyring:"), "/")
		if !ok || service == "" || user == "" {
			return "", fmt.Errorf("keyring reference %q must have the form keyring:service/user", ref)
		}
		v, err := keyring.Get(service, user)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring %s/%s: %w", service, user, ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("reading keyring %s/%s: %w", service, user, err)
		}
		return v, nil

	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		read := r.ReadFile
		if read == nil {
			read = os.ReadFile
		}
		data, err := read(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("secret file %s: %w", path, ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("reading secret file %s: %w", path, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	return ref, nil
}

// Resolve resolves ref with the default Resolver.
func Resolve(ref string) (string, error) {
	return Resolver{}.Resolve(ref)
}

// LoadEnvFile loads a dotenv file into the process environment. Variables
// already set are kept. A missing file is not an error when optional is set.
func LoadEnvFile(path string, optional bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
