// Package hook wraps the agent-provided hook tools the operator shells out
// to for unit status, relation data and configuration. The tools are only
// present on PATH while a lifecycle event is being dispatched.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Status levels accepted by status-set.
const (
	StatusActive  = "active"
	StatusWaiting = "waiting"
	StatusBlocked = "blocked"
)

// toolTimeout bounds every hook tool invocation.
const toolTimeout = 30 * time.Second

// Runner executes one hook tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs hook tools as local processes.
type ExecRunner struct{}

// Run executes the named tool with a fixed timeout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s failed: %w (%s)", name, err, stderr)
	}
	return out, nil
}

// Tool exposes the hook tool operations the operator uses.
type Tool struct {
	runner Runner
}

// NewTool returns a Tool backed by runner.
func NewTool(runner Runner) *Tool {
	return &Tool{runner: runner}
}

// StatusSet sets the unit status and message.
func (t *Tool) StatusSet(ctx context.Context, status, message string) error {
	args := []string{status}
	if message != "" {
		args = append(args, message)
	}
	if _, err := t.runner.Run(ctx, "status-set", args...); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// RelationIDs lists the established relation IDs for a relation name.
func (t *Tool) RelationIDs(ctx context.Context, name string) ([]string, error) {
	out, err := t.runner.Run(ctx, "relation-ids", "--format=json", name)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s relations: %w", name, err)
	}
	return parseStringList(out)
}

// RelationSet writes application-scoped key/value data into one relation.
func (t *Tool) RelationSet(ctx context.Context, relationID string, data map[string]string) error {
	args := []string{"-r", relationID, "--app"}
	for key, value := range data {
		args = append(args, fmt.Sprintf("%s=%s", key, value))
	}
	if _, err := t.runner.Run(ctx, "relation-set", args...); err != nil {
		return fmt.Errorf("failed to set relation data on %s: %w", relationID, err)
	}
	return nil
}

// ConfigGet returns the unit configuration as a JSON document.
func (t *Tool) ConfigGet(ctx context.Context) ([]byte, error) {
	out, err := t.runner.Run(ctx, "config-get", "--format=json")
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return out, nil
}

// Environment identifies the unit being reconciled, read from the agent's
// environment. Identity is immutable for the lifetime of the deployment.
type Environment struct {
	ApplicationName string
	ModelName       string
}

// EnvironmentFromProcess reads the unit identity from JUJU_* variables.
func EnvironmentFromProcess() (Environment, error) {
	unit := os.Getenv("JUJU_UNIT_NAME")
	if unit == "" {
		return Environment{}, fmt.Errorf("JUJU_UNIT_NAME is not set")
	}
	app := unit
	if i := strings.IndexByte(unit, '/'); i >= 0 {
		app = unit[:i]
	}
	model := os.Getenv("JUJU_MODEL_NAME")
	if model == "" {
		return Environment{}, fmt.Errorf("JUJU_MODEL_NAME is not set")
	}
	return Environment{ApplicationName: app, ModelName: model}, nil
}

// Hostname derives the cluster-internal service hostname for the unit. It is
// a pure function of the unit identity and is never stored.
func (e Environment) Hostname() string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", e.ApplicationName, e.ModelName)
}
