package migrate

import (
	"context"
	"strings"

	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

// Default returns the registry of built-in migrations for the brewing
// stack. Every transform is written in "ensure" style so re-invoking it on
// an already-migrated record changes nothing.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Step{
		ID:        0,
		Name:      "seed-eventbus",
		Lower:     MustVersion("0.0.0"),
		Transform: seedEventbus,
	})
	r.Register(Step{
		ID:        1,
		Name:      "reassign-controller-identities",
		Lower:     MustVersion("1.0.0"),
		Transform: reassignControllerIdentities,
	})
	r.Register(Step{
		ID:        2,
		Name:      "retag-history-image",
		Lower:     MustVersion("2.0.0"),
		Transform: retagHistoryImage,
	})
	r.Register(Step{
		ID:        3,
		Name:      "rename-retention-setting",
		Lower:     MustVersion("3.0.0"),
		Transform: renameRetentionSetting,
	})
	return r
}

// seedEventbus guarantees the shared MQTT broker exists; every stack
// version after 0.0.0 depends on it.
func seedEventbus(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error {
	if _, ok := set.Get("eventbus"); ok {
		return nil
	}
	return set.Add(compose.ServiceDescriptor{
		Name:    "eventbus",
		Image:   "eclipse-mosquitto:2",
		Ports:   []string{"1883:1883"},
		Restart: "unless-stopped",
		Enabled: true,
	})
}

// reassignControllerIdentities pins each spark service to the controller
// it talks to. Best effort: an empty enumeration (network timeout) keeps
// whatever identities are already configured.
func reassignControllerIdentities(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error {
	if deps.Discoverer == nil {
		return nil
	}
	devices, err := deps.Discoverer.Enumerate(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		if deps.Log != nil {
			deps.Log.Info("no controllers discovered, keeping existing identities")
		}
		return nil
	}
	byIdentity := map[string]string{}
	for _, dev := range devices {
		byIdentity[dev.Identity] = dev.Address
	}
	for _, name := range set.Names() {
		if !strings.HasPrefix(name, "spark-") {
			continue
		}
		d, _ := set.Get(name)
		identity := d.Environment["DEVICE_ID"]
		if identity == "" {
			continue
		}
		addr, ok := byIdentity[identity]
		if !ok {
			continue
		}
		d.SetEnv("DEVICE_HOST", addr)
		rec.SetFlag("controller."+name, identity)
	}
	return nil
}

// retagHistoryImage moves the history service off the retired combined
// image name.
func retagHistoryImage(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error {
	d, ok := set.Get("history")
	if !ok {
		return nil
	}
	const old = "brewstack/influx-history"
	if name, tag, found := strings.Cut(d.Image, ":"); found && name == old {
		d.Image = "brewstack/history:" + tag
	} else if d.Image == old {
		d.Image = "brewstack/history:edge"
	}
	return nil
}

// renameRetentionSetting renames the HISTORY_KEEP environment variable and
// its matching service flag to the RETENTION spelling.
func renameRetentionSetting(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error {
	for _, name := range set.Names() {
		d, _ := set.Get(name)
		if v, ok := d.Environment["HISTORY_KEEP"]; ok {
			d.SetEnv("HISTORY_RETENTION", v)
			delete(d.Environment, "HISTORY_KEEP")
		}
	}
	if v, ok := rec.Flag("history.keep"); ok {
		rec.SetFlag("history.retention", v)
		rec.DeleteFlag("history.keep")
	}
	return nil
}
