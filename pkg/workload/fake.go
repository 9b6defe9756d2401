package workload

import (
	"context"
	"fmt"
	"os"
	"slices"
)

// ExecCall records one Exec invocation against a Fake.
type ExecCall struct {
	Command []string
	Env     map[string]string
}

// PushCall records one Push invocation against a Fake.
type PushCall struct {
	Path    string
	Content []byte
	Perm    os.FileMode
}

// FakeFailures injects failures into individual Fake operations, mirroring
// the failure-injecting fake client used for the cluster API in tests.
type FakeFailures struct {
	// OnExec returns the error Exec should report for a given command, or
	// nil to succeed. The command's argv[0] is passed for matching.
	OnExec func(command []string) error

	// OnPush fails every Push when set.
	OnPush error

	// OnApplyPlan fails every ApplyPlan when set.
	OnApplyPlan error

	// OnStart fails every Start when set.
	OnStart error
}

// Fake is an in-memory workload gateway for tests. The zero value is a
// disconnected container with no files and no services.
type Fake struct {
	// Connected controls Connectable.
	Connected bool

	// Files maps existing paths to their content.
	Files map[string][]byte

	// Services maps declared service names to their running state.
	Services map[string]bool

	// Failures optionally injects errors.
	Failures FakeFailures

	// Recorded calls, in order.
	Pushes     []PushCall
	Plans      []Plan
	PlanLabels []string
	Execs      []ExecCall
	Starts     int
}

var _ Client = (*Fake)(nil)

// NewFake returns a connected fake with empty state.
func NewFake() *Fake {
	return &Fake{
		Connected: true,
		Files:     map[string][]byte{},
		Services:  map[string]bool{},
	}
}

func (f *Fake) Connectable(ctx context.Context) bool {
	return f.Connected
}

func (f *Fake) Push(ctx context.Context, path string, content []byte, perm os.FileMode) error {
	if f.Failures.OnPush != nil {
		return f.Failures.OnPush
	}
	if f.Files == nil {
		f.Files = map[string][]byte{}
	}
	f.Files[path] = slices.Clone(content)
	f.Pushes = append(f.Pushes, PushCall{Path: path, Content: slices.Clone(content), Perm: perm})
	return nil
}

func (f *Fake) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.Files[path]
	return ok, nil
}

func (f *Fake) ApplyPlan(ctx context.Context, label string, plan Plan, combine bool) error {
	if f.Failures.OnApplyPlan != nil {
		return f.Failures.OnApplyPlan
	}
	f.Plans = append(f.Plans, plan)
	f.PlanLabels = append(f.PlanLabels, label)
	if f.Services == nil {
		f.Services = map[string]bool{}
	}
	for name := range plan.Services {
		if _, declared := f.Services[name]; !declared {
			f.Services[name] = false
		}
	}
	return nil
}

func (f *Fake) Start(ctx context.Context) error {
	if f.Failures.OnStart != nil {
		return f.Failures.OnStart
	}
	f.Starts++
	for name := range f.Services {
		f.Services[name] = true
	}
	return nil
}

func (f *Fake) Exec(ctx context.Context, command []string, env map[string]string) (string, string, error) {
	call := ExecCall{Command: slices.Clone(command)}
	if env != nil {
		call.Env = map[string]string{}
		for k, v := range env {
			call.Env[k] = v
		}
	}
	f.Execs = append(f.Execs, call)
	if f.Failures.OnExec != nil {
		if err := f.Failures.OnExec(command); err != nil {
			return "", "", err
		}
	}
	return "", "", nil
}

func (f *Fake) ServiceRunning(ctx context.Context, name string) (bool, error) {
	running, declared := f.Services[name]
	if !declared {
		return false, fmt.Errorf("service %s is not declared", name)
	}
	return running, nil
}
