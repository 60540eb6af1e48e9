// File: internal/engine/engine.go
// Brief: Version-migration and stack-convergence state machine.

// Package engine takes a brewctl directory from whatever state it is in to
// the target version's desired state: it loads the persisted record,
// applies the applicable migration steps with a checkpoint after each one,
// writes the migrated descriptor set back to disk, and reconciles running
// containers against it. Every phase is safe to re-run after a crash; the
// per-step checkpoint is what makes an interrupted run resumable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/example/brewctl/internal/discovery"
	"github.com/example/brewctl/internal/envfile"
	"github.com/example/brewctl/internal/history"
	"github.com/example/brewctl/internal/migrate"
	"github.com/example/brewctl/internal/runtime"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

// Phase names the engine's position in the run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseLoading     Phase = "loading"
	PhaseMigrating   Phase = "migrating"
	PhaseReconciling Phase = "reconciling"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

const defaultDiscoveryTimeout = 5 * time.Second

// StepError reports the migration step that halted a run.
type StepError struct {
	ID   int
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.ID, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options configure one engine run.
type Options struct {
	Dir         string // brewctl directory
	ComposeFile string // defaults to <dir>/docker-compose.yml
	Target      *semver.Version
	Registry    *migrate.Registry
	Runtime     runtime.Runtime
	Discoverer  discovery.Discoverer

	// DiscoveryTimeout bounds every enumeration a migration performs.
	DiscoveryTimeout time.Duration

	// SkipReconcile stops after migrations have been persisted; used by
	// `brewctl migrate` when the operator wants to review the compose file
	// before containers are touched.
	SkipReconcile bool

	Store   *state.Store   // defaults to the store under Dir
	Journal *history.Store // optional run journal
	Log     *zap.Logger
}

// Result describes how far a run got and what it did.
type Result struct {
	Phase      Phase
	From       *semver.Version
	To         *semver.Version
	Applied    []int
	Skipped    []int
	FailedStep *int
	Plan       compose.Plan
	Report     runtime.Report
}

// Run executes the full convergence state machine:
// Idle -> Loading -> Migrating -> Reconciling -> Done, with Failed
// reachable from every working phase. The returned Result is valid even
// when err is non-nil.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Target == nil {
		return nil, errors.New("target version is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("migration registry is required")
	}
	if opts.ComposeFile == "" {
		opts.ComposeFile = filepath.Join(opts.Dir, "docker-compose.yml")
	}
	if opts.Store == nil {
		opts.Store = state.NewStore(opts.Dir)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = defaultDiscoveryTimeout
	}

	release, err := state.AcquireLock(opts.Dir)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &Result{Phase: PhaseIdle, To: opts.Target}
	started := time.Now()
	defer func() {
		journal(ctx, opts, res, started)
	}()

	err = run(ctx, opts, res)
	if err != nil {
		res.Phase = PhaseFailed
	}
	return res, err
}

func run(ctx context.Context, opts Options, res *Result) error {
	log := opts.Log

	// Loading.
	res.Phase = PhaseLoading
	rec, err := opts.Store.Load()
	switch {
	case errors.Is(err, state.ErrNotFound):
		// Fresh install: implicit record at version zero, every step below
		// the target will run.
		rec = state.Fresh()
		log.Info("no prior state record, treating as fresh install")
	case err != nil:
		// Corrupt state is fatal. Migrating on top of an unreadable record
		// risks losing operator data; halt for intervention.
		return err
	}
	from, err := rec.Version()
	if err != nil {
		return err
	}
	res.From = from
	if opts.Target.LessThan(from) {
		return fmt.Errorf("installed version %s is newer than target %s (downgrade not supported)", from, opts.Target)
	}
	set, err := compose.LoadFile(opts.ComposeFile)
	if err != nil {
		return err
	}

	// Migrating.
	res.Phase = PhaseMigrating
	deps := migrate.Deps{Log: log}
	if opts.Discoverer != nil {
		deps.Discoverer = &boundedDiscoverer{inner: opts.Discoverer, timeout: opts.DiscoveryTimeout, log: log}
	}
	for _, step := range opts.Registry.Applicable(from, opts.Target) {
		if rec.Applied(step.ID) {
			res.Skipped = append(res.Skipped, step.ID)
			log.Debug("migration already applied", zap.Int("id", step.ID), zap.String("name", step.Name))
			continue
		}
		log.Info("applying migration", zap.Int("id", step.ID), zap.String("name", step.Name))
		if err := step.Transform(ctx, rec, set, deps); err != nil {
			id := step.ID
			res.FailedStep = &id
			return &StepError{ID: step.ID, Name: step.Name, Err: err}
		}
		// Checkpoint before the next step: a crash here leaves the record
		// listing exactly the transforms that committed, so a re-run
		// resumes at the first unapplied step.
		rec.MarkApplied(step.ID)
		if err := opts.Store.Save(rec); err != nil {
			id := step.ID
			res.FailedStep = &id
			return fmt.Errorf("checkpoint after migration %d: %w", step.ID, err)
		}
		res.Applied = append(res.Applied, step.ID)
	}

	if err := set.Validate(); err != nil {
		return fmt.Errorf("migrated service set invalid: %w", err)
	}
	if err := compose.WriteFile(opts.ComposeFile, set); err != nil {
		return err
	}

	// The installed version advances only on the Done transition: a failed
	// reconcile leaves the record at the prior version while the per-step
	// checkpoints above keep the run resumable.
	finish := func() error {
		rec.InstalledVersion = opts.Target.String()
		if err := opts.Store.Save(rec); err != nil {
			return err
		}
		if err := envfile.Set(filepath.Join(opts.Dir, ".env"), envfile.KeyCfgVersion, opts.Target.String()); err != nil {
			return err
		}
		res.Phase = PhaseDone
		return nil
	}

	if opts.SkipReconcile {
		return finish()
	}

	// Reconciling.
	res.Phase = PhaseReconciling
	if opts.Runtime == nil {
		return errors.New("runtime adapter is required for reconciliation")
	}
	observed, err := opts.Runtime.Observe(ctx)
	if err != nil {
		return err
	}
	res.Plan = compose.Diff(set, observed)
	log.Info("reconciliation plan",
		zap.Strings("create", res.Plan.Create),
		zap.Strings("start", res.Plan.Start),
		zap.Strings("recreate", res.Plan.Recreate),
		zap.Strings("remove", res.Plan.Remove),
		zap.Int("unchanged", len(res.Plan.Unchanged)))
	res.Report = opts.Runtime.Apply(ctx, res.Plan)
	if err := res.Report.Err(); err != nil {
		return err
	}
	return finish()
}

// boundedDiscoverer enforces the per-enumeration timeout and degrades a
// timeout to an empty result, never a fatal error.
type boundedDiscoverer struct {
	inner   discovery.Discoverer
	timeout time.Duration
	log     *zap.Logger
}

func (b *boundedDiscoverer) Enumerate(ctx context.Context) ([]discovery.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	devices, err := b.inner.Enumerate(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			b.log.Info("discovery timed out, continuing with empty result")
			return nil, nil
		}
		return nil, err
	}
	return devices, nil
}

func journal(ctx context.Context, opts Options, res *Result, started time.Time) {
	if opts.Journal == nil {
		return
	}
	rec := history.RunRecord{
		ToVersion:    opts.Target.String(),
		Phase:        string(res.Phase),
		AppliedSteps: res.Applied,
		SkippedSteps: res.Skipped,
		FailedStep:   res.FailedStep,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if res.From != nil {
		rec.FromVersion = res.From.String()
	}
	for _, r := range res.Report.Results {
		outcome := history.ServiceOutcome{Service: r.Service, Action: r.Action}
		if r.Err != nil {
			outcome.Error = r.Err.Error()
		}
		rec.Services = append(rec.Services, outcome)
	}
	if _, err := opts.Journal.Record(ctx, rec); err != nil {
		opts.Log.Warn("failed to journal run", zap.Error(err))
	}
}
