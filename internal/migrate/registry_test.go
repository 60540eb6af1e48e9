package migrate

import (
	"context"
	"testing"

	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

func noop(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error {
	return nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.Register(Step{ID: 0, Name: "a", Lower: MustVersion("0.0.0"), Transform: noop})
	r.Register(Step{ID: 1, Name: "b", Lower: MustVersion("1.0.0"), Transform: noop})
	r.Register(Step{ID: 2, Name: "c", Lower: MustVersion("2.0.0"), Transform: noop})
	return r
}

func ids(steps []Step) []int {
	out := make([]int, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ID)
	}
	return out
}

func TestApplicableWindow(t *testing.T) {
	r := testRegistry(t)
	cases := []struct {
		from, to string
		want     []int
	}{
		{"0.0.0", "3.0.0", []int{0, 1, 2}},
		{"1.0.0", "3.0.0", []int{1, 2}},
		{"1.0.0", "2.0.0", []int{1}},
		{"2.0.0", "3.0.0", []int{2}},
		{"3.0.0", "3.0.0", nil},
		{"1.5.0", "1.6.0", nil},
		{"0.0.0", "0.0.0", nil},
		{"0.5.0", "2.5.0", []int{1, 2}},
	}
	for _, tc := range cases {
		got := ids(r.Applicable(MustVersion(tc.from), MustVersion(tc.to)))
		if len(got) != len(tc.want) {
			t.Fatalf("applicable(%s,%s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("applicable(%s,%s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		}
	}
}

func TestApplicableAscendingOrder(t *testing.T) {
	r := testRegistry(t)
	steps := r.Applicable(MustVersion("0.0.0"), MustVersion("9.0.0"))
	for i := 1; i < len(steps); i++ {
		if steps[i].ID <= steps[i-1].ID {
			t.Fatalf("steps not ascending: %v", ids(steps))
		}
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate id")
		}
	}()
	r := NewRegistry()
	r.Register(Step{ID: 0, Lower: MustVersion("0.0.0"), Transform: noop})
	r.Register(Step{ID: 0, Lower: MustVersion("1.0.0"), Transform: noop})
}

func TestRegisterRejectsDescendingLower(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on descending lower bound")
		}
	}()
	r := NewRegistry()
	r.Register(Step{ID: 0, Lower: MustVersion("2.0.0"), Transform: noop})
	r.Register(Step{ID: 1, Lower: MustVersion("1.0.0"), Transform: noop})
}

func TestLookup(t *testing.T) {
	r := testRegistry(t)
	s, ok := r.Lookup(1)
	if !ok || s.Name != "b" {
		t.Fatalf("lookup(1) = %+v, %v", s, ok)
	}
	if _, ok := r.Lookup(99); ok {
		t.Fatal("lookup(99) should miss")
	}
}
