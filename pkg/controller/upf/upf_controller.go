// Package upf reconciles the 5G UPF workload: four supervised containers,
// two Multus network attachments, a patched StatefulSet and a published
// service endpoint. Handlers are invoked once per lifecycle event, read the
// current observable state of every collaborator and converge it; they hold
// no state of their own between invocations.
package upf

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/charmed-5g/upf-operator/pkg/config"
	"github.com/charmed-5g/upf-operator/pkg/hook"
	"github.com/charmed-5g/upf-operator/pkg/lifecycle"
	"github.com/charmed-5g/upf-operator/pkg/workload"
)

// Container and service names. Each container runs exactly one service with
// the same name.
const (
	BessdContainerName     = "bessd"
	RoutectlContainerName  = "routectl"
	WebContainerName       = "web"
	PFCPAgentContainerName = "pfcp-agent"
)

const (
	bessdConfigDir     = "/etc/bess/conf"
	pfcpAgentConfigDir = "/tmp/conf"
	configFileName     = "upf.json"
	poststartFileName  = "bessd-poststart.sh"

	upfRelationName = "upf"
)

// Datapath routing constants for the one-shot setup commands run in the
// bessd container once it is ready.
const (
	gnbSubnet          = "192.168.251.0/24"
	accessGatewayIP    = "192.168.252.1"
	coreGatewayIP      = "192.168.250.1"
	defaultRouteMetric = "110"
)

// KubeClient is the cluster-side surface the reconciler depends on.
type KubeClient interface {
	CreateNetworkAttachmentDefinitions(ctx context.Context) error
	DeleteNetworkAttachmentDefinitions(ctx context.Context) error
	PatchStatefulSet(ctx context.Context, name string) error
	StatefulSetIsPatched(ctx context.Context, name string) (bool, error)
}

// HookTool is the agent-side surface the reconciler depends on.
type HookTool interface {
	StatusSet(ctx context.Context, status, message string) error
	RelationIDs(ctx context.Context, name string) ([]string, error)
	RelationSet(ctx context.Context, relationID string, data map[string]string) error
}

// UPFReconciler drives the UPF workload toward a converged running state.
type UPFReconciler struct {
	Kube       KubeClient
	Containers map[string]workload.Client
	Hook       HookTool
	Env        hook.Environment
	Config     config.Config
	Logger     logr.Logger
}

// Dispatcher builds the event-kind to handler table for this reconciler.
func (r *UPFReconciler) Dispatcher() lifecycle.Dispatcher {
	return lifecycle.Dispatcher{
		lifecycle.KindInstall:              r.HandleInstall,
		lifecycle.KindConfigChanged:        r.HandleConfigChanged,
		lifecycle.KindRemove:               r.HandleRemove,
		lifecycle.KindBessdPebbleReady:     r.HandleBessdPebbleReady,
		lifecycle.KindRoutectlPebbleReady:  r.HandleRoutectlPebbleReady,
		lifecycle.KindWebPebbleReady:       r.HandleWebPebbleReady,
		lifecycle.KindPFCPAgentPebbleReady: r.HandlePFCPAgentPebbleReady,
		lifecycle.KindUPFRelationJoined:    r.HandleUPFRelationJoined,
	}
}

func (r *UPFReconciler) container(name string) workload.Client {
	return r.Containers[name]
}

// wait records a waiting status and reports how the event-delivery loop
// should treat the event.
func (r *UPFReconciler) wait(ctx context.Context, result lifecycle.Result, message string) (lifecycle.Result, error) {
	r.Logger.Info(message)
	if err := r.Hook.StatusSet(ctx, hook.StatusWaiting, message); err != nil {
		return result, err
	}
	return result, nil
}
