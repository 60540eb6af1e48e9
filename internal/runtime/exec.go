// File: internal/runtime/exec.go
// Brief: docker compose exec adapter implementing the Runtime interface.

package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/brewctl/pkg/compose"
)

const applyParallelism = 4

// CommandRunner executes a command and returns its combined output.
// Swappable in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Exec drives docker compose for one brewctl directory.
type Exec struct {
	Dir    string // stack directory (compose project dir)
	File   string // compose file path
	Log    *zap.Logger
	Runner CommandRunner
}

// NewExec returns an exec-backed runtime for the given stack directory.
func NewExec(dir, file string, log *zap.Logger) *Exec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exec{Dir: dir, File: file, Log: log, Runner: defaultRunner}
}

func (e *Exec) composeArgs(args ...string) []string {
	base := []string{"compose", "--project-directory", e.Dir, "-f", e.File}
	return append(base, args...)
}

func (e *Exec) run(ctx context.Context, args ...string) ([]byte, error) {
	runner := e.Runner
	if runner == nil {
		runner = defaultRunner
	}
	e.Log.Debug("docker", zap.Strings("args", args))
	return runner(ctx, "docker", args...)
}

// psEntry mirrors the per-line JSON emitted by `docker compose ps`.
type psEntry struct {
	Service string `json:"Service"`
	Image   string `json:"Image"`
	State   string `json:"State"`
	Labels  string `json:"Labels"`
}

// Observe lists the stack's containers, running or not.
func (e *Exec) Observe(ctx context.Context) ([]compose.ObservedService, error) {
	out, err := e.run(ctx, e.composeArgs("ps", "--all", "--format", "json")...)
	if err != nil {
		return nil, fmt.Errorf("observe stack: %w", err)
	}
	return parsePS(out)
}

func parsePS(out []byte) ([]compose.ObservedService, error) {
	var observed []compose.ObservedService
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return observed, nil
	}
	// Newer compose prints one JSON object per line; older prints an array.
	if trimmed[0] == '[' {
		var entries []psEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("parse compose ps output: %w", err)
		}
		for _, entry := range entries {
			observed = append(observed, entry.toObserved())
		}
		return observed, nil
	}
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry psEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parse compose ps line: %w", err)
		}
		observed = append(observed, entry.toObserved())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return observed, nil
}

func (p psEntry) toObserved() compose.ObservedService {
	o := compose.ObservedService{
		Name:    p.Service,
		Image:   p.Image,
		Running: strings.EqualFold(p.State, "running"),
	}
	for _, kv := range strings.Split(p.Labels, ",") {
		key, value, ok := strings.Cut(kv, "=")
		if ok && key == compose.LabelConfigHash {
			o.ConfigHash = value
		}
	}
	return o
}

// Apply executes the plan. Per-service operations run in parallel and a
// failure on one service never cancels work already issued for others.
func (e *Exec) Apply(ctx context.Context, plan compose.Plan) Report {
	type op struct {
		service string
		action  string
		args    []string
	}
	var ops []op
	for _, svc := range plan.Create {
		ops = append(ops, op{svc, "create", e.composeArgs("up", "-d", "--no-deps", svc)})
	}
	for _, svc := range plan.Start {
		ops = append(ops, op{svc, "start", e.composeArgs("start", svc)})
	}
	for _, svc := range plan.Recreate {
		ops = append(ops, op{svc, "recreate", e.composeArgs("up", "-d", "--no-deps", "--force-recreate", svc)})
	}
	for _, svc := range plan.Remove {
		ops = append(ops, op{svc, "remove", e.composeArgs("rm", "--stop", "--force", svc)})
	}

	var (
		mu      sync.Mutex
		results []ServiceResult
	)
	// Zero-value errgroup: no shared cancellation between siblings.
	var g errgroup.Group
	g.SetLimit(applyParallelism)
	for _, o := range ops {
		o := o
		g.Go(func() error {
			_, err := e.run(ctx, o.args...)
			if err != nil {
				e.Log.Warn("service operation failed",
					zap.String("service", o.service),
					zap.String("action", o.action),
					zap.Error(err))
			}
			mu.Lock()
			results = append(results, ServiceResult{Service: o.service, Action: o.action, Err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Service < results[j].Service })
	return Report{Results: results}
}

// Up starts every enabled service.
func (e *Exec) Up(ctx context.Context) error {
	_, err := e.run(ctx, e.composeArgs("up", "-d", "--remove-orphans")...)
	return err
}

// Down stops the stack.
func (e *Exec) Down(ctx context.Context) error {
	_, err := e.run(ctx, e.composeArgs("down")...)
	return err
}

// RunInteractive runs a one-off docker command with the operator's
// terminal attached (firmware flasher, shells).
func (e *Exec) RunInteractive(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	e.Log.Debug("docker interactive", zap.Strings("args", args))
	return cmd.Run()
}
