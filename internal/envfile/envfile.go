// Package envfile edits the stack's .env declaration file. Writes go
// through godotenv so operator-added keys survive every edit.
package envfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/brewctl/internal/state"
)

// Keys brewctl owns in the .env file. Anything else belongs to the
// operator and is preserved verbatim on rewrite.
const (
	KeyRelease     = "BREWCTL_RELEASE"
	KeyCfgVersion  = "BREWCTL_CFG_VERSION"
	KeySkipConfirm = "BREWCTL_SKIP_CONFIRM"
)

// Read loads all key-value pairs from path. A missing file is an empty map.
func Read(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

// Set updates one key in place, preserving every other key in the file.
func Set(path, key, value string) error {
	vals, err := Read(path)
	if err != nil {
		return err
	}
	vals[key] = value
	return write(path, vals)
}

// SetAll applies multiple updates in one rewrite.
func SetAll(path string, updates map[string]string) error {
	vals, err := Read(path)
	if err != nil {
		return err
	}
	for k, v := range updates {
		vals[k] = v
	}
	return write(path, vals)
}

// Get returns the value for key, or "" when absent.
func Get(path, key string) (string, error) {
	vals, err := Read(path)
	if err != nil {
		return "", err
	}
	return vals[key], nil
}

func write(path string, vals map[string]string) error {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vals[k])
		b.WriteByte('\n')
	}
	return state.WriteFileAtomic(path, []byte(b.String()), 0o644)
}
