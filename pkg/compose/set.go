// Package compose models the stack's service descriptor set: the services
// declared in the on-disk compose definition, their images, environment,
// and bindings. The set is the only artifact written back to the compose
// file, and the diff against observed runtime state drives reconciliation.
package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ServiceDescriptor declares one service of the stack.
type ServiceDescriptor struct {
	Name        string
	Image       string
	Environment map[string]string
	Ports       []string
	Volumes     []string
	Restart     string
	Enabled     bool
}

// ConfigHash is a stable digest of everything that requires a container
// recreate when changed. It is rendered as a label so reconciliation can
// compare desired and observed config without inspecting containers.
func (d *ServiceDescriptor) ConfigHash() string {
	var b strings.Builder
	b.WriteString("image=" + d.Image + "\n")
	keys := make([]string, 0, len(d.Environment))
	for k := range d.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("env=" + k + "=" + d.Environment[k] + "\n")
	}
	for _, p := range sortedCopy(d.Ports) {
		b.WriteString("port=" + p + "\n")
	}
	for _, v := range sortedCopy(d.Volumes) {
		b.WriteString("volume=" + v + "\n")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

// SetEnv sets one environment entry, allocating the map on first use.
func (d *ServiceDescriptor) SetEnv(key, value string) {
	if d.Environment == nil {
		d.Environment = map[string]string{}
	}
	d.Environment[key] = value
}

func (d *ServiceDescriptor) clone() *ServiceDescriptor {
	out := &ServiceDescriptor{
		Name:    d.Name,
		Image:   d.Image,
		Restart: d.Restart,
		Enabled: d.Enabled,
	}
	if d.Environment != nil {
		out.Environment = make(map[string]string, len(d.Environment))
		for k, v := range d.Environment {
			out.Environment[k] = v
		}
	}
	out.Ports = append([]string(nil), d.Ports...)
	out.Volumes = append([]string(nil), d.Volumes...)
	return out
}

// Set is a collection of uniquely named service descriptors.
type Set struct {
	services map[string]*ServiceDescriptor
}

// NewSet returns an empty descriptor set.
func NewSet() *Set {
	return &Set{services: map[string]*ServiceDescriptor{}}
}

// Add inserts a descriptor. Names must be unique within the set and an
// enabled descriptor must carry an image reference.
func (s *Set) Add(d ServiceDescriptor) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("service name is required")
	}
	if _, ok := s.services[name]; ok {
		return fmt.Errorf("duplicate service %q", name)
	}
	if d.Enabled && strings.TrimSpace(d.Image) == "" {
		return fmt.Errorf("enabled service %q has no image reference", name)
	}
	d.Name = name
	s.services[name] = &d
	return nil
}

// Get returns the descriptor for name, if present. The pointer is live:
// migration transforms mutate descriptors through it.
func (s *Set) Get(name string) (*ServiceDescriptor, bool) {
	d, ok := s.services[name]
	return d, ok
}

// Remove deletes a descriptor.
func (s *Set) Remove(name string) {
	delete(s.services, name)
}

// Names returns all service names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.services))
	for n := range s.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of descriptors.
func (s *Set) Len() int {
	return len(s.services)
}

// Enabled returns enabled descriptors in name order.
func (s *Set) Enabled() []*ServiceDescriptor {
	var out []*ServiceDescriptor
	for _, n := range s.Names() {
		if d := s.services[n]; d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Validate re-checks the collection invariants after mutation.
func (s *Set) Validate() error {
	for name, d := range s.services {
		if d.Enabled && strings.TrimSpace(d.Image) == "" {
			return fmt.Errorf("enabled service %q has no image reference", name)
		}
	}
	return nil
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	out := NewSet()
	for n, d := range s.services {
		out.services[n] = d.clone()
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
