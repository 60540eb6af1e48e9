package migrate

import (
	"context"
	"testing"

	"github.com/example/brewctl/internal/discovery"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

type fakeDiscoverer struct {
	devices []discovery.Device
	err     error
}

func (f *fakeDiscoverer) Enumerate(ctx context.Context) ([]discovery.Device, error) {
	return f.devices, f.err
}

func stackFixture(t *testing.T) *compose.Set {
	t.Helper()
	set := compose.NewSet()
	for _, d := range []compose.ServiceDescriptor{
		{Name: "history", Image: "brewstack/influx-history:edge", Environment: map[string]string{"HISTORY_KEEP": "30d"}, Enabled: true},
		{Name: "spark-one", Image: "brewstack/spark:edge", Environment: map[string]string{"DEVICE_ID": "30003d001947"}, Enabled: true},
		{Name: "ui", Image: "brewstack/ui:edge", Enabled: true},
	} {
		if err := set.Add(d); err != nil {
			t.Fatal(err)
		}
	}
	return set
}

// Every builtin transform must be idempotent: applying it twice yields the
// same record and descriptor set as applying it once.
func TestBuiltinStepsIdempotent(t *testing.T) {
	deps := Deps{Discoverer: &fakeDiscoverer{devices: []discovery.Device{
		{Identity: "30003d001947", Address: "192.168.1.77"},
	}}}
	for _, step := range Default().Steps() {
		t.Run(step.Name, func(t *testing.T) {
			rec := state.Fresh()
			set := stackFixture(t)
			if err := step.Transform(context.Background(), rec, set, deps); err != nil {
				t.Fatalf("first apply: %v", err)
			}
			recAfter := rec.Clone()
			setAfter := set.Clone()
			if err := step.Transform(context.Background(), rec, set, deps); err != nil {
				t.Fatalf("second apply: %v", err)
			}
			if !rec.Equal(recAfter) {
				t.Fatalf("record changed on re-apply: %+v vs %+v", rec, recAfter)
			}
			for _, name := range setAfter.Names() {
				want, _ := setAfter.Get(name)
				got, ok := set.Get(name)
				if !ok || got.ConfigHash() != want.ConfigHash() {
					t.Fatalf("descriptor %s changed on re-apply", name)
				}
			}
		})
	}
}

func TestSeedEventbus(t *testing.T) {
	set := stackFixture(t)
	if err := seedEventbus(context.Background(), state.Fresh(), set, Deps{}); err != nil {
		t.Fatal(err)
	}
	bus, ok := set.Get("eventbus")
	if !ok || !bus.Enabled || bus.Image == "" {
		t.Fatalf("eventbus not seeded: %+v", bus)
	}
}

func TestReassignControllerIdentities(t *testing.T) {
	set := stackFixture(t)
	rec := state.Fresh()
	deps := Deps{Discoverer: &fakeDiscoverer{devices: []discovery.Device{
		{Identity: "30003d001947", Address: "192.168.1.77"},
		{Identity: "unmatched", Address: "192.168.1.90"},
	}}}
	if err := reassignControllerIdentities(context.Background(), rec, set, deps); err != nil {
		t.Fatal(err)
	}
	spark, _ := set.Get("spark-one")
	if spark.Environment["DEVICE_HOST"] != "192.168.1.77" {
		t.Fatalf("host not assigned: %v", spark.Environment)
	}
	if v, _ := rec.Flag("controller.spark-one"); v != "30003d001947" {
		t.Fatalf("flag not recorded: %v", rec.ServiceFlags)
	}
}

func TestReassignToleratesEmptyDiscovery(t *testing.T) {
	set := stackFixture(t)
	rec := state.Fresh()
	if err := reassignControllerIdentities(context.Background(), rec, set, Deps{Discoverer: &fakeDiscoverer{}}); err != nil {
		t.Fatal(err)
	}
	spark, _ := set.Get("spark-one")
	if _, ok := spark.Environment["DEVICE_HOST"]; ok {
		t.Fatal("empty discovery must not touch identities")
	}
}

func TestRetagHistoryImage(t *testing.T) {
	set := stackFixture(t)
	if err := retagHistoryImage(context.Background(), state.Fresh(), set, Deps{}); err != nil {
		t.Fatal(err)
	}
	hist, _ := set.Get("history")
	if hist.Image != "brewstack/history:edge" {
		t.Fatalf("image not retagged: %s", hist.Image)
	}
}

func TestRenameRetentionSetting(t *testing.T) {
	set := stackFixture(t)
	rec := state.Fresh()
	rec.SetFlag("history.keep", "30d")
	if err := renameRetentionSetting(context.Background(), rec, set, Deps{}); err != nil {
		t.Fatal(err)
	}
	hist, _ := set.Get("history")
	if hist.Environment["HISTORY_RETENTION"] != "30d" {
		t.Fatalf("env not renamed: %v", hist.Environment)
	}
	if _, ok := hist.Environment["HISTORY_KEEP"]; ok {
		t.Fatal("old env key still present")
	}
	if v, _ := rec.Flag("history.retention"); v != "30d" {
		t.Fatalf("flag not renamed: %v", rec.ServiceFlags)
	}
}
