// Package kube holds the cluster-side operations of the operator: the two
// Multus NetworkAttachmentDefinitions and the annotation/security patch on
// the workload StatefulSet. Every operation is guarded by a check so it is
// safe to re-run on event re-delivery.
package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// AccessNetworkAttachmentDefinitionName is the NAD for the N3 side.
	AccessNetworkAttachmentDefinitionName = "access-net"

	// CoreNetworkAttachmentDefinitionName is the NAD for the N6 side.
	CoreNetworkAttachmentDefinitionName = "core-net"

	// NetworksAnnotation asks Multus to attach the extra interfaces to the
	// workload pod.
	NetworksAnnotation = "k8s.v1.cni.cncf.io/networks"

	accessInterfaceIP = "192.168.252.3/24"
	coreInterfaceIP   = "192.168.250.3/24"

	// bessdContainerIndex is the position of the bessd container in the
	// workload pod spec; it needs NET_ADMIN for datapath routes.
	bessdContainerIndex = 1
)

// NetworkAttachmentDefinitionGVK identifies the Multus CRD kind.
var NetworkAttachmentDefinitionGVK = schema.GroupVersionKind{
	Group:   "k8s.cni.cncf.io",
	Version: "v1",
	Kind:    "NetworkAttachmentDefinition",
}

// Client performs the idempotent cluster mutations the operator owns.
type Client struct {
	client    client.Client
	namespace string
	logger    logr.Logger

	// exit is called by the termination handler installed around the
	// StatefulSet patch. Overridable in tests.
	exit func(code int)
}

// New returns a Client scoped to one namespace.
func New(c client.Client, namespace string, logger logr.Logger) *Client {
	return &Client{
		client:    c,
		namespace: namespace,
		logger:    logger,
		exit:      os.Exit,
	}
}

func interfaceConfig() (string, error) {
	cfg := map[string]any{
		"cniVersion":   "0.3.1",
		"type":         "macvlan",
		"ipam":         map[string]any{"type": "static"},
		"capabilities": map[string]any{"mac": true},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode interface config: %w", err)
	}
	return string(raw), nil
}

func (k *Client) newNetworkAttachmentDefinition(name, config string) *unstructured.Unstructured {
	nad := &unstructured.Unstructured{}
	nad.SetGroupVersionKind(NetworkAttachmentDefinitionGVK)
	nad.SetName(name)
	nad.SetNamespace(k.namespace)
	nad.Object["spec"] = map[string]any{"config": config}
	return nad
}

// NetworkAttachmentDefinitionCreated reports whether the named NAD exists.
// A missing CRD is reported as a fatal error distinct from NotFound, since
// nothing the operator does can create attachments without Multus installed.
func (k *Client) NetworkAttachmentDefinitionCreated(ctx context.Context, name string) (bool, error) {
	nad := &unstructured.Unstructured{}
	nad.SetGroupVersionKind(NetworkAttachmentDefinitionGVK)
	err := k.client.Get(ctx, client.ObjectKey{Namespace: k.namespace, Name: name}, nad)
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if meta.IsNoMatchError(err) {
		return false, fmt.Errorf("NetworkAttachmentDefinition kind not served; install the Multus CNI: %w", err)
	}
	return false, fmt.Errorf("failed to get NetworkAttachmentDefinition %s: %w", name, err)
}

// CreateNetworkAttachmentDefinitions creates the access and core NADs,
// skipping any that already exist.
func (k *Client) CreateNetworkAttachmentDefinitions(ctx context.Context) error {
	config, err := interfaceConfig()
	if err != nil {
		return err
	}
	for _, name := range []string{AccessNetworkAttachmentDefinitionName, CoreNetworkAttachmentDefinitionName} {
		created, err := k.NetworkAttachmentDefinitionCreated(ctx, name)
		if err != nil {
			return err
		}
		if created {
			k.logger.Info("NetworkAttachmentDefinition already created", "name", name)
			continue
		}
		if err := k.client.Create(ctx, k.newNetworkAttachmentDefinition(name, config)); err != nil {
			return fmt.Errorf("failed to create NetworkAttachmentDefinition %s: %w", name, err)
		}
		k.logger.Info("NetworkAttachmentDefinition created", "name", name)
	}
	return nil
}

// DeleteNetworkAttachmentDefinitions deletes the access and core NADs,
// skipping any that are already gone.
func (k *Client) DeleteNetworkAttachmentDefinitions(ctx context.Context) error {
	for _, name := range []string{AccessNetworkAttachmentDefinitionName, CoreNetworkAttachmentDefinitionName} {
		created, err := k.NetworkAttachmentDefinitionCreated(ctx, name)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		nad := &unstructured.Unstructured{}
		nad.SetGroupVersionKind(NetworkAttachmentDefinitionGVK)
		nad.SetName(name)
		nad.SetNamespace(k.namespace)
		if err := k.client.Delete(ctx, nad); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete NetworkAttachmentDefinition %s: %w", name, err)
		}
		k.logger.Info("NetworkAttachmentDefinition deleted", "name", name)
	}
	return nil
}

func multusAnnotation() (string, error) {
	networks := []map[string]any{
		{
			"name":      AccessNetworkAttachmentDefinitionName,
			"interface": "access",
			"ips":       []string{accessInterfaceIP},
		},
		{
			"name":      CoreNetworkAttachmentDefinitionName,
			"interface": "core",
			"ips":       []string{coreInterfaceIP},
		},
	}
	raw, err := json.Marshal(networks)
	if err != nil {
		return "", fmt.Errorf("failed to encode networks annotation: %w", err)
	}
	return string(raw), nil
}

// StatefulSetIsPatched reports whether the workload StatefulSet already
// carries the Multus networks annotation.
func (k *Client) StatefulSetIsPatched(ctx context.Context, name string) (bool, error) {
	sts := &appsv1.StatefulSet{}
	if err := k.client.Get(ctx, client.ObjectKey{Namespace: k.namespace, Name: name}, sts); err != nil {
		return false, fmt.Errorf("failed to get StatefulSet %s: %w", name, err)
	}
	_, ok := sts.Spec.Template.Annotations[NetworksAnnotation]
	return ok, nil
}

// PatchStatefulSet adds the Multus networks annotation to the workload pod
// template and grants the bessd container the privileges the datapath needs.
// Already-patched StatefulSets are left untouched. No inverse operation
// exists; the patch stays in place for the lifetime of the deployment.
func (k *Client) PatchStatefulSet(ctx context.Context, name string) error {
	patched, err := k.StatefulSetIsPatched(ctx, name)
	if err != nil {
		return err
	}
	if patched {
		k.logger.Info("StatefulSet already patched", "name", name)
		return nil
	}

	sts := &appsv1.StatefulSet{}
	if err := k.client.Get(ctx, client.ObjectKey{Namespace: k.namespace, Name: name}, sts); err != nil {
		return fmt.Errorf("failed to get StatefulSet %s: %w", name, err)
	}
	orig := sts.DeepCopy()

	annotation, err := multusAnnotation()
	if err != nil {
		return err
	}
	if sts.Spec.Template.Annotations == nil {
		sts.Spec.Template.Annotations = map[string]string{}
	}
	sts.Spec.Template.Annotations[NetworksAnnotation] = annotation

	containers := sts.Spec.Template.Spec.Containers
	if len(containers) <= bessdContainerIndex {
		return fmt.Errorf("StatefulSet %s has no container at index %d", name, bessdContainerIndex)
	}
	bessd := &containers[bessdContainerIndex]
	if bessd.SecurityContext == nil {
		bessd.SecurityContext = &corev1.SecurityContext{}
	}
	bessd.SecurityContext.Privileged = ptr.To(true)
	bessd.SecurityContext.Capabilities = &corev1.Capabilities{
		Add: []corev1.Capability{"NET_ADMIN"},
	}

	// The agent sends SIGTERM when the pod is rescheduled mid-install;
	// exit cleanly and let event re-delivery retry the patch.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, open := <-sigs; !open {
			return
		}
		k.logger.Info("caught SIGTERM during StatefulSet patch; exiting for re-delivery")
		k.exit(0)
	}()

	if err := k.client.Patch(ctx, sts, client.MergeFrom(orig)); err != nil {
		return fmt.Errorf("failed to patch StatefulSet %s: %w", name, err)
	}
	k.logger.Info("Multus annotation added to StatefulSet", "name", name)
	return nil
}
