package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	pebbleclient "github.com/canonical/pebble/client"
	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

const (
	// execTimeout bounds every one-shot command; a command still running
	// after this is treated as a fatal failure for the invocation.
	execTimeout = 30 * time.Second

	// startSettleTimeout bounds how long Start waits for the replan change
	// to settle before giving up.
	startSettleTimeout = 30 * time.Second
)

// Pebble talks to one container's Pebble daemon over its unix socket.
type Pebble struct {
	client *pebbleclient.Client
}

// SocketPath returns the operator-side socket path for a named container.
func SocketPath(container string) string {
	return fmt.Sprintf("/charm/containers/%s/pebble.socket", container)
}

// NewPebble returns a gateway for the Pebble daemon reachable at socket.
func NewPebble(socket string) (*Pebble, error) {
	c, err := pebbleclient.New(&pebbleclient.Config{Socket: socket})
	if err != nil {
		return nil, fmt.Errorf("failed to create pebble client for %s: %w", socket, err)
	}
	return &Pebble{client: c}, nil
}

// Connectable reports whether the daemon answers on its socket.
func (p *Pebble) Connectable(ctx context.Context) bool {
	_, err := p.client.SysInfo()
	return err == nil
}

// Push writes content to path inside the container.
func (p *Pebble) Push(ctx context.Context, path string, content []byte, perm os.FileMode) error {
	err := p.client.Push(&pebbleclient.PushOptions{
		Source:      bytes.NewReader(content),
		Path:        path,
		MakeDirs:    true,
		Permissions: perm,
	})
	if err != nil {
		return fmt.Errorf("failed to push %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists inside the container.
func (p *Pebble) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.client.ListFiles(&pebbleclient.ListFilesOptions{Path: path, Itself: true})
	if err != nil {
		var clientErr *pebbleclient.Error
		if errors.As(err, &clientErr) && clientErr.Kind == "not-found" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// ApplyPlan serializes the plan to a layer and merges it under label.
func (p *Pebble) ApplyPlan(ctx context.Context, label string, plan Plan, combine bool) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to serialize plan %s: %w", label, err)
	}
	err = p.client.AddLayer(&pebbleclient.AddLayerOptions{
		Combine:   combine,
		Label:     label,
		LayerData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to add layer %s: %w", label, err)
	}
	return nil
}

// Start replans the daemon and polls until the resulting change settles.
func (p *Pebble) Start(ctx context.Context) error {
	changeID, err := p.client.Replan(&pebbleclient.ServiceOptions{})
	if err != nil {
		return fmt.Errorf("failed to replan services: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = startSettleTimeout
	errNotReady := errors.New("change not ready")
	err = backoff.Retry(func() error {
		chg, err := p.client.Change(changeID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to query change %s: %w", changeID, err))
		}
		if chg.Err != "" {
			return backoff.Permanent(fmt.Errorf("replan change %s failed: %s", changeID, chg.Err))
		}
		if !chg.Ready {
			return errNotReady
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("services did not settle after replan: %w", err)
	}
	return nil
}

// Exec runs a one-shot command to completion with a fixed timeout.
func (p *Pebble) Exec(ctx context.Context, command []string, env map[string]string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	process, err := p.client.Exec(&pebbleclient.ExecOptions{
		Command:     command,
		Environment: env,
		Stdout:      &stdout,
		Stderr:      &stderr,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to exec %v: %w", command, err)
	}

	done := make(chan error, 1)
	go func() { done <- process.Wait() }()

	timer := time.NewTimer(execTimeout)
	defer timer.Stop()
	select {
	case err = <-done:
	case <-timer.C:
		return stdout.String(), stderr.String(), fmt.Errorf("command %v timed out after %s", command, execTimeout)
	case <-ctx.Done():
		return stdout.String(), stderr.String(), ctx.Err()
	}
	if err != nil {
		var exitErr *pebbleclient.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), &ExecError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return stdout.String(), stderr.String(), fmt.Errorf("command %v failed: %w", command, err)
	}
	return stdout.String(), stderr.String(), nil
}

// ServiceRunning reports whether the named service is active. An undeclared
// service name is an error so callers can distinguish "not yet planned" from
// "planned but stopped".
func (p *Pebble) ServiceRunning(ctx context.Context, name string) (bool, error) {
	infos, err := p.client.Services(&pebbleclient.ServicesOptions{Names: []string{name}})
	if err != nil {
		return false, fmt.Errorf("failed to query service %s: %w", name, err)
	}
	for _, info := range infos {
		if info.Name == name {
			return info.Current == pebbleclient.StatusActive, nil
		}
	}
	return false, fmt.Errorf("service %s is not declared", name)
}
