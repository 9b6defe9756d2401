package upf

import (
	"context"

	"github.com/charmed-5g/upf-operator/pkg/hook"
	"github.com/charmed-5g/upf-operator/pkg/lifecycle"
)

// HandleInstall validates the configuration, writes the bessd artifacts and
// creates the cluster-side resources. It is safe to re-run: artifact writes
// overwrite identical content and resource creation skips what exists.
func (r *UPFReconciler) HandleInstall(ctx context.Context) (lifecycle.Result, error) {
	if err := r.validateConfig(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if !r.container(BessdContainerName).Connectable(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for bessd container to be ready")
	}
	if err := r.writeConfigFile(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.writePoststartScript(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.Kube.CreateNetworkAttachmentDefinitions(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.Kube.PatchStatefulSet(ctx, r.Env.ApplicationName); err != nil {
		return lifecycle.Completed, err
	}
	return lifecycle.Completed, nil
}

// HandleConfigChanged rewrites the artifacts with the new configuration and
// re-runs the bessd and pfcp-agent convergence paths so the running services
// pick it up.
func (r *UPFReconciler) HandleConfigChanged(ctx context.Context) (lifecycle.Result, error) {
	if err := r.validateConfig(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if !r.container(BessdContainerName).Connectable(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for bessd container to be ready")
	}
	if err := r.writeConfigFile(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.writePoststartScript(ctx); err != nil {
		return lifecycle.Completed, err
	}

	result, err := r.HandleBessdPebbleReady(ctx)
	if err != nil || result != lifecycle.Completed {
		return result, err
	}
	return r.HandlePFCPAgentPebbleReady(ctx)
}

// validateConfig rejects unsupported configuration before any side effect.
// The unit is marked blocked: no re-delivery can clear it, only an operator
// changing the configuration.
func (r *UPFReconciler) validateConfig(ctx context.Context) error {
	err := r.Config.Validate()
	if err == nil {
		return nil
	}
	if statusErr := r.Hook.StatusSet(ctx, hook.StatusBlocked, err.Error()); statusErr != nil {
		r.Logger.V(1).Info("failed to set blocked status", "reason", statusErr.Error())
	}
	return err
}

// HandleRemove deletes the network attachments. The StatefulSet patch has no
// inverse operation and stays in place.
func (r *UPFReconciler) HandleRemove(ctx context.Context) (lifecycle.Result, error) {
	if err := r.Kube.DeleteNetworkAttachmentDefinitions(ctx); err != nil {
		return lifecycle.Completed, err
	}
	return lifecycle.Completed, nil
}
