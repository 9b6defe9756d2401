package upf

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/charmed-5g/upf-operator/pkg/lifecycle"
	"github.com/charmed-5g/upf-operator/pkg/workload"
)

// HandleBessdPebbleReady converges the primary dataplane container. The
// precondition chain is ordered: connectivity and the StatefulSet patch are
// retryable waits, while missing artifacts are satisfied by a different
// event and must not trigger re-delivery.
func (r *UPFReconciler) HandleBessdPebbleReady(ctx context.Context) (lifecycle.Result, error) {
	bessd := r.container(BessdContainerName)
	if !bessd.Connectable(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for bessd container to be ready")
	}

	written, err := r.bessdConfigFileWritten(ctx)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !written {
		return r.wait(ctx, lifecycle.WaitTerminal, "Waiting for config file to be written")
	}

	written, err = r.poststartScriptWritten(ctx)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !written {
		return r.wait(ctx, lifecycle.WaitTerminal, "Waiting for poststart script to be written")
	}

	patched, err := r.Kube.StatefulSetIsPatched(ctx, r.Env.ApplicationName)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !patched {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for statefulset to be patched")
	}

	if err := r.configureDatapathRoutes(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := bessd.ApplyPlan(ctx, BessdContainerName, bessdPlan(), true); err != nil {
		return lifecycle.Completed, err
	}
	if err := bessd.Start(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.runPoststartScript(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.refreshStatus(ctx); err != nil {
		return lifecycle.Completed, err
	}
	r.publishUPFURL(ctx)
	return lifecycle.Completed, nil
}

// HandleRoutectlPebbleReady converges the route controller container.
func (r *UPFReconciler) HandleRoutectlPebbleReady(ctx context.Context) (lifecycle.Result, error) {
	return r.handleSecondaryReady(ctx, RoutectlContainerName, routectlPlan())
}

// HandleWebPebbleReady converges the web console container.
func (r *UPFReconciler) HandleWebPebbleReady(ctx context.Context) (lifecycle.Result, error) {
	return r.handleSecondaryReady(ctx, WebContainerName, webPlan())
}

func (r *UPFReconciler) handleSecondaryReady(ctx context.Context, name string, plan workload.Plan) (lifecycle.Result, error) {
	c := r.container(name)
	if !c.Connectable(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, fmt.Sprintf("Waiting for %s container to be ready", name))
	}
	patched, err := r.Kube.StatefulSetIsPatched(ctx, r.Env.ApplicationName)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !patched {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for statefulset to be patched")
	}
	if err := c.ApplyPlan(ctx, name, plan, true); err != nil {
		return lifecycle.Completed, err
	}
	if err := c.Start(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.refreshStatus(ctx); err != nil {
		return lifecycle.Completed, err
	}
	return lifecycle.Completed, nil
}

// HandlePFCPAgentPebbleReady converges the protocol agent. It must not start
// before the bessd service is up, since pfcpiface connects to it at startup.
func (r *UPFReconciler) HandlePFCPAgentPebbleReady(ctx context.Context) (lifecycle.Result, error) {
	agent := r.container(PFCPAgentContainerName)
	if !agent.Connectable(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for pfcp agent container to be ready")
	}

	written, err := r.pfcpAgentConfigFileWritten(ctx)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !written {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for config file to be written")
	}

	if !r.bessdServiceRunning(ctx) {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for bessd service to run")
	}

	patched, err := r.Kube.StatefulSetIsPatched(ctx, r.Env.ApplicationName)
	if err != nil {
		return lifecycle.Completed, err
	}
	if !patched {
		return r.wait(ctx, lifecycle.WaitRetryable, "Waiting for statefulset to be patched")
	}

	if err := agent.ApplyPlan(ctx, PFCPAgentContainerName, pfcpAgentPlan(), true); err != nil {
		return lifecycle.Completed, err
	}
	if err := agent.Start(ctx); err != nil {
		return lifecycle.Completed, err
	}
	if err := r.refreshStatus(ctx); err != nil {
		return lifecycle.Completed, err
	}
	return lifecycle.Completed, nil
}

func (r *UPFReconciler) bessdServiceRunning(ctx context.Context) bool {
	bessd := r.container(BessdContainerName)
	if !bessd.Connectable(ctx) {
		return false
	}
	running, err := bessd.ServiceRunning(ctx, BessdContainerName)
	if err != nil {
		r.Logger.V(1).Info("bessd service not reported running", "reason", err.Error())
		return false
	}
	return running
}

// configureDatapathRoutes runs the ordered route and firewall setup in the
// bessd container. The first failure aborts the sequence.
func (r *UPFReconciler) configureDatapathRoutes(ctx context.Context) error {
	commands := [][]string{
		{"ip", "route", "replace", gnbSubnet, "via", accessGatewayIP},
		{"ip", "route", "replace", "default", "via", coreGatewayIP, "metric", defaultRouteMetric},
		{"iptables", "-I", "OUTPUT", "-p", "icmp", "--icmp-type", "port-unreachable", "-j", "DROP"},
	}
	bessd := r.container(BessdContainerName)
	for _, command := range commands {
		if _, stderr, err := bessd.Exec(ctx, command, nil); err != nil {
			r.logExecFailure(err, stderr)
			return fmt.Errorf("failed to configure datapath routes: %w", err)
		}
	}
	r.Logger.Info("Datapath routes configured")
	return nil
}

// runPoststartScript runs the bessd poststart script as a one-shot command
// with the service environment. A non-zero exit is fatal for the invocation.
func (r *UPFReconciler) runPoststartScript(ctx context.Context) error {
	script := path.Join(bessdConfigDir, poststartFileName)
	command := []string{"/bin/bash", "-c", script}
	_, stderr, err := r.container(BessdContainerName).Exec(ctx, command, bessdEnvironment())
	if err != nil {
		r.logExecFailure(err, stderr)
		return fmt.Errorf("failed to run poststart script: %w", err)
	}
	r.Logger.Info("Successfully ran bessd poststart script")
	return nil
}

func (r *UPFReconciler) logExecFailure(err error, stderr string) {
	var execErr *workload.ExecError
	if errors.As(err, &execErr) {
		r.Logger.Error(err, "command exited non-zero", "exit-code", execErr.ExitCode)
		stderr = execErr.Stderr
	}
	for _, line := range strings.Split(strings.TrimRight(stderr, "\n"), "\n") {
		if line != "" {
			r.Logger.Error(nil, "    "+line)
		}
	}
}
