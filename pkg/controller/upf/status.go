package upf

import (
	"context"
	"fmt"

	"github.com/charmed-5g/upf-operator/pkg/hook"
)

// statusOrder fixes the priority in which container health determines the
// aggregate status: the first failing container names the waiting reason.
var statusOrder = []string{
	BessdContainerName,
	RoutectlContainerName,
	WebContainerName,
	PFCPAgentContainerName,
}

// Observation is the externally observed health of one managed container.
type Observation struct {
	Container      string
	Connectable    bool
	ServiceRunning bool
}

// Status is the derived aggregate status of the unit. It is recomputed from
// observations at the end of every mutating handler, never stored.
type Status struct {
	Active bool
	Reason string
}

// computeStatus short-circuits on the first container, in fixed order, that
// is not both connectable and running. Active only when all four pass.
func computeStatus(observations []Observation) Status {
	for _, obs := range observations {
		if !obs.Connectable || !obs.ServiceRunning {
			return Status{Reason: fmt.Sprintf("Waiting for %s service to run", obs.Container)}
		}
	}
	return Status{Active: true}
}

// observe gathers the current health of all managed containers in status
// order. A service the supervisor does not know yet counts as not running.
func (r *UPFReconciler) observe(ctx context.Context) []Observation {
	observations := make([]Observation, 0, len(statusOrder))
	for _, name := range statusOrder {
		c := r.container(name)
		obs := Observation{Container: name, Connectable: c.Connectable(ctx)}
		if obs.Connectable {
			running, err := c.ServiceRunning(ctx, name)
			if err != nil {
				r.Logger.V(1).Info("service not reported running", "container", name, "reason", err.Error())
			}
			obs.ServiceRunning = running
		}
		observations = append(observations, obs)
	}
	return observations
}

// refreshStatus recomputes the aggregate status and publishes it to the
// agent.
func (r *UPFReconciler) refreshStatus(ctx context.Context) error {
	status := computeStatus(r.observe(ctx))
	if status.Active {
		return r.Hook.StatusSet(ctx, hook.StatusActive, "")
	}
	return r.Hook.StatusSet(ctx, hook.StatusWaiting, status.Reason)
}
