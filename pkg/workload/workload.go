// Package workload is the boundary to the per-container process supervisor.
// Each workload container runs a Pebble daemon; the operator talks to it to
// push files, apply service plans, run one-shot commands and observe service
// state.
package workload

import (
	"context"
	"fmt"
	"os"
)

// Client is the gateway to one workload container's supervision daemon.
type Client interface {
	// Connectable reports whether the container's supervision socket is up.
	Connectable(ctx context.Context) bool

	// Push writes content to path inside the container with the given
	// permissions, creating parent directories as needed.
	Push(ctx context.Context, path string, content []byte, perm os.FileMode) error

	// Exists reports whether path exists inside the container.
	Exists(ctx context.Context, path string) (bool, error)

	// ApplyPlan merges the plan into the container's configuration under
	// label. With combine set, an existing layer with the same label is
	// replaced rather than duplicated.
	ApplyPlan(ctx context.Context, label string, plan Plan, combine bool) error

	// Start replans the container so every startup-enabled service is
	// running, and waits for the resulting change to settle.
	Start(ctx context.Context) error

	// Exec runs a one-shot command to completion and returns its output.
	// A non-zero exit is reported as *ExecError.
	Exec(ctx context.Context, command []string, env map[string]string) (stdout, stderr string, err error)

	// ServiceRunning reports whether the named service is declared and in
	// the active state. An undeclared service is an error.
	ServiceRunning(ctx context.Context, name string) (bool, error)
}

// Plan is a declarative description of the services a container should run.
// It serializes to a Pebble layer.
type Plan struct {
	Summary     string             `yaml:"summary,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Services    map[string]Service `yaml:"services"`
}

// Service describes one supervised process.
type Service struct {
	Override    string            `yaml:"override"`
	Startup     string            `yaml:"startup"`
	Command     string            `yaml:"command"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// ExecError reports a one-shot command that exited non-zero.
type ExecError struct {
	Command  []string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %v exited with code %d", e.Command, e.ExitCode)
}
