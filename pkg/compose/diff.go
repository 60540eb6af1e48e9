package compose

import "sort"

// ObservedService is a container's runtime state as reported by the
// runtime adapter.
type ObservedService struct {
	Name       string
	Image      string
	Running    bool
	ConfigHash string
}

// Plan buckets services by the runtime operation needed to converge them.
// Diff is a pure function of (desired, observed), so applying the plan and
// diffing again yields an empty plan.
type Plan struct {
	Create    []string // desired, not present
	Start     []string // present and unchanged, but stopped
	Recreate  []string // present but config drifted
	Remove    []string // present but disabled or no longer declared
	Unchanged []string
}

// Empty reports whether the plan requires no runtime operations.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Start) == 0 && len(p.Recreate) == 0 && len(p.Remove) == 0
}

// Diff computes the convergence plan for a desired descriptor set against
// observed container state.
func Diff(desired *Set, observed []ObservedService) Plan {
	byName := make(map[string]ObservedService, len(observed))
	for _, o := range observed {
		byName[o.Name] = o
	}

	var plan Plan
	for _, d := range desired.Enabled() {
		o, ok := byName[d.Name]
		switch {
		case !ok:
			plan.Create = append(plan.Create, d.Name)
		case o.ConfigHash != d.ConfigHash():
			plan.Recreate = append(plan.Recreate, d.Name)
		case !o.Running:
			// Config matches, the container is just stopped: a plain start
			// converges it without recreating.
			plan.Start = append(plan.Start, d.Name)
		default:
			plan.Unchanged = append(plan.Unchanged, d.Name)
		}
	}

	enabled := make(map[string]bool)
	for _, d := range desired.Enabled() {
		enabled[d.Name] = true
	}
	for _, o := range observed {
		if !enabled[o.Name] {
			plan.Remove = append(plan.Remove, o.Name)
		}
	}

	sort.Strings(plan.Create)
	sort.Strings(plan.Start)
	sort.Strings(plan.Recreate)
	sort.Strings(plan.Remove)
	sort.Strings(plan.Unchanged)
	return plan
}
