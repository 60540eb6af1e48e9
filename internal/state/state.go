// File: internal/state/state.go
// Brief: Persisted install-state record with atomic replace semantics.

// Package state owns the version-tracking record for a brewctl directory:
// the installed version, the set of applied migration ids, and per-service
// flags. The record is the single source of truth the convergence engine
// checkpoints against, so Save is atomic (temp file + rename) and Load
// distinguishes "never installed" from "installed but unreadable".
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

const (
	dirName      = ".brewctl"
	fileName     = "state.yaml"
	lockFileName = "lock"
)

var (
	// ErrNotFound means no record exists yet; callers treat this as a
	// fresh install, not a failure.
	ErrNotFound = errors.New("state record not found")
	// ErrCorrupt means a record exists but cannot be trusted. Fatal:
	// migrating on top of it risks data loss.
	ErrCorrupt = errors.New("state record corrupt")
)

// Record is the persisted install state.
type Record struct {
	InstalledVersion  string            `yaml:"installedVersion"`
	AppliedMigrations []int             `yaml:"appliedMigrations"`
	ServiceFlags      map[string]string `yaml:"serviceFlags,omitempty"`
}

// Fresh returns the implicit record for a host with no prior install.
func Fresh() *Record {
	return &Record{InstalledVersion: "0.0.0"}
}

// Version parses the installed version.
func (r *Record) Version() (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(r.InstalledVersion))
	if err != nil {
		return nil, fmt.Errorf("installed version %q: %w", r.InstalledVersion, err)
	}
	return v, nil
}

// Applied reports whether the migration id is already recorded.
func (r *Record) Applied(id int) bool {
	return slices.Contains(r.AppliedMigrations, id)
}

// MarkApplied records a migration id once.
func (r *Record) MarkApplied(id int) {
	if !r.Applied(id) {
		r.AppliedMigrations = append(r.AppliedMigrations, id)
	}
}

// Flag returns a service flag value.
func (r *Record) Flag(key string) (string, bool) {
	v, ok := r.ServiceFlags[key]
	return v, ok
}

// SetFlag sets a service flag value.
func (r *Record) SetFlag(key, value string) {
	if r.ServiceFlags == nil {
		r.ServiceFlags = map[string]string{}
	}
	r.ServiceFlags[key] = value
}

// DeleteFlag removes a service flag.
func (r *Record) DeleteFlag(key string) {
	delete(r.ServiceFlags, key)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := &Record{
		InstalledVersion:  r.InstalledVersion,
		AppliedMigrations: slices.Clone(r.AppliedMigrations),
	}
	if r.ServiceFlags != nil {
		out.ServiceFlags = make(map[string]string, len(r.ServiceFlags))
		for k, v := range r.ServiceFlags {
			out.ServiceFlags[k] = v
		}
	}
	return out
}

// Equal compares two records field by field.
func (r *Record) Equal(other *Record) bool {
	if r.InstalledVersion != other.InstalledVersion {
		return false
	}
	if !slices.Equal(r.AppliedMigrations, other.AppliedMigrations) {
		return false
	}
	if len(r.ServiceFlags) != len(other.ServiceFlags) {
		return false
	}
	for k, v := range r.ServiceFlags {
		if ov, ok := other.ServiceFlags[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Store reads and writes the record under a brewctl directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at the given brewctl directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the record's on-disk location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, dirName, fileName)
}

// Load reads the record. A missing file yields ErrNotFound; an unreadable
// or invalid file yields ErrCorrupt with detail.
func (s *Store) Load() (*Record, error) {
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.Path(), err)
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, s.Path(), err)
	}
	if _, err := rec.Version(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &rec, nil
}

// Save persists the record atomically: full contents are marshalled in
// memory, written to a temp file in the same directory, synced, then
// renamed over the destination. A crash mid-save never leaves a
// half-written record behind.
func (s *Store) Save(rec *Record) error {
	if _, err := rec.Version(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal state record: %w", err)
	}
	dir := filepath.Join(s.dir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.Path(), raw, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// WriteFileAtomic exposes the temp+rename write for sibling packages that
// persist alongside the state record (compose definition, env file).
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return writeFileAtomic(path, data, mode)
}
