package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/example/brewctl/internal/state"
)

const (
	// LabelConfigHash carries the descriptor digest into container labels
	// so reconciliation can detect config drift without inspection.
	LabelConfigHash = "brewctl.config-hash"
	// LabelManaged marks containers brewctl owns.
	LabelManaged = "brewctl.managed"
	// ProfileDisabled parks disabled services: plain `docker compose up`
	// ignores them while their configuration stays in the file.
	ProfileDisabled = "disabled"

	projectName = "brewctl"
)

// LoadFile parses the on-disk compose definition and derives the service
// descriptor set from it.
func LoadFile(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file %s: %w", path, err)
	}

	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	details := composetypes.ConfigDetails{
		WorkingDir:  filepath.Dir(path),
		ConfigFiles: []composetypes.ConfigFile{{Filename: path, Content: raw}},
		Environment: env,
	}
	project, err := loader.Load(details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
		// Activate the disabled profile so parked services stay visible to
		// migrations even though the runtime never starts them.
		o.Profiles = append(o.Profiles, ProfileDisabled)
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", path, err)
	}

	set := NewSet()
	for name, svc := range project.Services {
		d := ServiceDescriptor{
			Name:    name,
			Image:   svc.Image,
			Restart: svc.Restart,
			Enabled: !slices.Contains(svc.Profiles, ProfileDisabled),
		}
		for k, v := range svc.Environment {
			if v == nil {
				d.SetEnv(k, "")
				continue
			}
			d.SetEnv(k, *v)
		}
		for _, p := range svc.Ports {
			d.Ports = append(d.Ports, formatPort(p))
		}
		for _, v := range svc.Volumes {
			d.Volumes = append(d.Volumes, formatVolume(v))
		}
		if err := set.Add(d); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return set, nil
}

type serviceYAML struct {
	Image       string            `yaml:"image,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Profiles    []string          `yaml:"profiles,omitempty"`
}

type fileYAML struct {
	Services map[string]serviceYAML `yaml:"services"`
}

// WriteFile renders the set back to a compose document that remains valid
// input for docker compose, using the same atomic-replace discipline as
// the state record.
func WriteFile(path string, set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	doc := fileYAML{Services: map[string]serviceYAML{}}
	for _, name := range set.Names() {
		d, _ := set.Get(name)
		svc := serviceYAML{
			Image:       d.Image,
			Restart:     d.Restart,
			Environment: d.Environment,
			Ports:       append([]string(nil), d.Ports...),
			Volumes:     append([]string(nil), d.Volumes...),
			Labels: map[string]string{
				LabelManaged:    "true",
				LabelConfigHash: d.ConfigHash(),
			},
		}
		if !d.Enabled {
			svc.Profiles = []string{ProfileDisabled}
		}
		doc.Services[name] = svc
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal compose file: %w", err)
	}
	return state.WriteFileAtomic(path, raw, 0o644)
}

func formatPort(p composetypes.ServicePortConfig) string {
	out := fmt.Sprintf("%d", p.Target)
	if p.Published != "" {
		out = p.Published + ":" + out
	}
	if p.HostIP != "" {
		out = p.HostIP + ":" + out
	}
	if p.Protocol != "" && p.Protocol != "tcp" {
		out += "/" + p.Protocol
	}
	return out
}

func formatVolume(v composetypes.ServiceVolumeConfig) string {
	out := v.Target
	if v.Source != "" {
		out = v.Source + ":" + out
	}
	if v.ReadOnly {
		out += ":ro"
	}
	return out
}
