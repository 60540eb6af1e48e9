// Package runtime is the boundary to the container orchestrator. The
// convergence engine only sees the Runtime interface; the default
// implementation shells out to the docker compose binary.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/brewctl/pkg/compose"
)

// Runtime observes live container state and applies convergence plans.
type Runtime interface {
	Observe(ctx context.Context) ([]compose.ObservedService, error)
	Apply(ctx context.Context, plan compose.Plan) Report
}

// ServiceResult is the outcome of one per-service runtime operation.
type ServiceResult struct {
	Service string
	Action  string // create | start | recreate | remove
	Err     error
}

// Report aggregates per-service outcomes. One service's failure never
// hides or prevents the others.
type Report struct {
	Results []ServiceResult
}

// Failed returns the results that carry errors.
func (r Report) Failed() []ServiceResult {
	var out []ServiceResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err returns nil when every service converged, otherwise a single error
// naming each failed service.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", f.Service, f.Action, f.Err))
	}
	return errors.New("reconciliation failed for " + strings.Join(parts, "; "))
}
