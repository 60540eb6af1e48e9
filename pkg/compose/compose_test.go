package compose

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSetInvariants(t *testing.T) {
	s := NewSet()
	if err := s.Add(ServiceDescriptor{Name: "history", Image: "brewstack/history:edge", Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ServiceDescriptor{Name: "history", Image: "other", Enabled: true}); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := s.Add(ServiceDescriptor{Name: "ui", Enabled: true}); err == nil {
		t.Fatal("enabled service without image accepted")
	}
	if err := s.Add(ServiceDescriptor{Name: "ui", Enabled: false}); err != nil {
		t.Fatalf("disabled service without image rejected: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	writeFile(t, path, `
services:
  eventbus:
    image: eclipse-mosquitto:2
    ports:
      - "1883:1883"
  history:
    image: brewstack/history:edge
    environment:
      HISTORY_RETENTION: 30d
    volumes:
      - ./history:/data
  spark-one:
    image: brewstack/spark:edge
    profiles: ["disabled"]
`)
	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 services, got %d: %v", set.Len(), set.Names())
	}
	hist, ok := set.Get("history")
	if !ok {
		t.Fatal("history missing")
	}
	if !hist.Enabled {
		t.Fatal("history should be enabled")
	}
	if hist.Environment["HISTORY_RETENTION"] != "30d" {
		t.Fatalf("environment lost: %v", hist.Environment)
	}
	spark, ok := set.Get("spark-one")
	if !ok {
		t.Fatal("disabled service must stay visible")
	}
	if spark.Enabled {
		t.Fatal("spark-one should be disabled")
	}
	bus, _ := set.Get("eventbus")
	if len(bus.Ports) != 1 || bus.Ports[0] != "1883:1883" {
		t.Fatalf("ports mismatch: %v", bus.Ports)
	}
}

func TestWriteThenLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose.yml")

	set := NewSet()
	if err := set.Add(ServiceDescriptor{
		Name:        "history",
		Image:       "brewstack/history:edge",
		Environment: map[string]string{"HISTORY_RETENTION": "30d"},
		Ports:       []string{"5000:5000"},
		Restart:     "unless-stopped",
		Enabled:     true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := set.Add(ServiceDescriptor{Name: "spark-two", Image: "brewstack/spark:edge", Enabled: false}); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, set); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	hist, ok := got.Get("history")
	if !ok || hist.Image != "brewstack/history:edge" || !hist.Enabled {
		t.Fatalf("history did not survive roundtrip: %+v", hist)
	}
	if hist.Environment["HISTORY_RETENTION"] != "30d" {
		t.Fatalf("environment did not survive: %v", hist.Environment)
	}
	spark, ok := got.Get("spark-two")
	if !ok || spark.Enabled {
		t.Fatalf("disabled flag did not survive: %+v", spark)
	}
}

func TestConfigHashChangesWithImage(t *testing.T) {
	a := ServiceDescriptor{Name: "ui", Image: "brewstack/ui:1"}
	b := ServiceDescriptor{Name: "ui", Image: "brewstack/ui:2"}
	if a.ConfigHash() == b.ConfigHash() {
		t.Fatal("hash should change with image")
	}
	c := ServiceDescriptor{Name: "ui", Image: "brewstack/ui:1"}
	if a.ConfigHash() != c.ConfigHash() {
		t.Fatal("hash should be stable for equal config")
	}
}

func TestDiffBuckets(t *testing.T) {
	desired := NewSet()
	for _, d := range []ServiceDescriptor{
		{Name: "eventbus", Image: "eclipse-mosquitto:2", Enabled: true},
		{Name: "history", Image: "brewstack/history:edge", Enabled: true},
		{Name: "ui", Image: "brewstack/ui:edge", Enabled: true},
		{Name: "spark-one", Image: "brewstack/spark:edge", Enabled: false},
	} {
		if err := desired.Add(d); err != nil {
			t.Fatal(err)
		}
	}
	bus, _ := desired.Get("eventbus")

	observed := []ObservedService{
		{Name: "eventbus", Image: bus.Image, Running: true, ConfigHash: bus.ConfigHash()},
		{Name: "history", Image: "brewstack/history:old", Running: true, ConfigHash: "stale-hash"},
		{Name: "spark-one", Image: "brewstack/spark:edge", Running: true, ConfigHash: "whatever"},
	}

	plan := Diff(desired, observed)
	if len(plan.Create) != 1 || plan.Create[0] != "ui" {
		t.Fatalf("create: %v", plan.Create)
	}
	if len(plan.Recreate) != 1 || plan.Recreate[0] != "history" {
		t.Fatalf("recreate: %v", plan.Recreate)
	}
	if len(plan.Remove) != 1 || plan.Remove[0] != "spark-one" {
		t.Fatalf("remove: %v", plan.Remove)
	}
	if len(plan.Unchanged) != 1 || plan.Unchanged[0] != "eventbus" {
		t.Fatalf("unchanged: %v", plan.Unchanged)
	}
}

func TestDiffStoppedService(t *testing.T) {
	desired := NewSet()
	if err := desired.Add(ServiceDescriptor{Name: "ui", Image: "brewstack/ui:edge", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	d, _ := desired.Get("ui")

	// Stopped with matching config: a plain start suffices.
	plan := Diff(desired, []ObservedService{{Name: "ui", Running: false, ConfigHash: d.ConfigHash()}})
	if len(plan.Start) != 1 || plan.Start[0] != "ui" {
		t.Fatalf("stopped unchanged service not started: %+v", plan)
	}
	if len(plan.Recreate) != 0 {
		t.Fatalf("stopped unchanged service recreated: %+v", plan)
	}

	// Stopped with drifted config: recreate.
	plan = Diff(desired, []ObservedService{{Name: "ui", Running: false, ConfigHash: "stale"}})
	if len(plan.Recreate) != 1 || plan.Recreate[0] != "ui" {
		t.Fatalf("drifted stopped service not recreated: %+v", plan)
	}
}

func TestDiffConvergedIsEmpty(t *testing.T) {
	// After applying a plan, re-diffing with the converged observation must
	// issue zero operations.
	desired := NewSet()
	if err := desired.Add(ServiceDescriptor{Name: "ui", Image: "brewstack/ui:edge", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	d, _ := desired.Get("ui")
	converged := []ObservedService{{Name: "ui", Image: d.Image, Running: true, ConfigHash: d.ConfigHash()}}
	plan := Diff(desired, converged)
	if !plan.Empty() {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
	again := Diff(desired, converged)
	if !again.Empty() {
		t.Fatalf("diff not idempotent: %+v", again)
	}
}
