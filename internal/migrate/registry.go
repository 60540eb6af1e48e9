// File: internal/migrate/registry.go
// Brief: Ordered catalog of version-gated migration steps.

// Package migrate holds the migration registry: an ordered catalog of
// steps, each gated on the version boundary it crosses, transforming the
// persisted state record and the service descriptor set. Steps are defined
// statically, selected by half-open version interval, and must be
// idempotent when re-invoked on a record that already lists their id.
package migrate

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/example/brewctl/internal/discovery"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

// Deps are the external collaborators a transform may use.
type Deps struct {
	Discoverer discovery.Discoverer
	Log        *zap.Logger
}

// TransformFunc mutates the state record and descriptor set in place.
// Must be deterministic, and a no-op when its effect is already present.
type TransformFunc func(ctx context.Context, rec *state.Record, set *compose.Set, deps Deps) error

// Step is one versioned migration. Lower is the inclusive version boundary
// the step crosses; ids ascend together with lower bounds.
type Step struct {
	ID        int
	Name      string
	Lower     *semver.Version
	Transform TransformFunc
}

// Registry is the ordered step catalog. Built once at startup, read-only
// afterwards.
type Registry struct {
	steps []Step
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a step. Panics on a duplicate or out-of-order id, or a
// lower bound that does not ascend with the id: the catalog is static
// build-time data and a bad registration is a programming error.
func (r *Registry) Register(step Step) {
	if step.Transform == nil {
		panic(fmt.Sprintf("migration %d (%s): nil transform", step.ID, step.Name))
	}
	if step.Lower == nil {
		panic(fmt.Sprintf("migration %d (%s): nil lower bound", step.ID, step.Name))
	}
	if len(r.steps) > 0 {
		prev := r.steps[len(r.steps)-1]
		if step.ID <= prev.ID {
			panic(fmt.Sprintf("migration %d (%s): id not ascending after %d", step.ID, step.Name, prev.ID))
		}
		if step.Lower.LessThan(prev.Lower) {
			panic(fmt.Sprintf("migration %d (%s): lower bound %s below previous %s", step.ID, step.Name, step.Lower, prev.Lower))
		}
	}
	r.steps = append(r.steps, step)
}

// Steps returns the full catalog in id order.
func (r *Registry) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

// Lookup returns the step with the given id.
func (r *Registry) Lookup(id int) (Step, bool) {
	for _, s := range r.steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Applicable selects the steps to run when upgrading across [from, to):
// a step applies iff from <= step.Lower < to. Each boundary is therefore
// crossed exactly once, fresh installs above a boundary never re-cross it,
// and multi-version upgrades skip nothing. The result ascends by id.
func (r *Registry) Applicable(from, to *semver.Version) []Step {
	var out []Step
	for _, s := range r.steps {
		if s.Lower.LessThan(from) {
			continue
		}
		if !s.Lower.LessThan(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// MustVersion parses a semantic version or panics. For static step tables.
func MustVersion(v string) *semver.Version {
	return semver.MustParse(v)
}
