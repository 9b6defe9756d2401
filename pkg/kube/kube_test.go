package kube_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/charmed-5g/upf-operator/pkg/kube"
	"github.com/charmed-5g/upf-operator/pkg/testutil"
)

const namespace = "whatever"

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := appsv1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add apps/v1 to scheme: %v", err)
	}
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add core/v1 to scheme: %v", err)
	}
	scheme.AddKnownTypeWithName(kube.NetworkAttachmentDefinitionGVK, &unstructured.Unstructured{})
	scheme.AddKnownTypeWithName(
		kube.NetworkAttachmentDefinitionGVK.GroupVersion().WithKind("NetworkAttachmentDefinitionList"),
		&unstructured.UnstructuredList{},
	)
	return scheme
}

func newNAD(name string) *unstructured.Unstructured {
	nad := &unstructured.Unstructured{}
	nad.SetGroupVersionKind(kube.NetworkAttachmentDefinitionGVK)
	nad.SetName(name)
	nad.SetNamespace(namespace)
	return nad
}

func getNAD(t *testing.T, c client.Client, name string) (*unstructured.Unstructured, bool) {
	t.Helper()
	nad := &unstructured.Unstructured{}
	nad.SetGroupVersionKind(kube.NetworkAttachmentDefinitionGVK)
	err := c.Get(context.Background(), client.ObjectKey{Namespace: namespace, Name: name}, nad)
	if err != nil {
		return nil, false
	}
	return nad, true
}

func TestCreateNetworkAttachmentDefinitions(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing []client.Object
	}{
		"creates both when none exist": {},
		"skips existing access-net": {
			existing: []client.Object{newNAD(kube.AccessNetworkAttachmentDefinitionName)},
		},
		"no-op when both exist": {
			existing: []client.Object{
				newNAD(kube.AccessNetworkAttachmentDefinitionName),
				newNAD(kube.CoreNetworkAttachmentDefinitionName),
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := fake.NewClientBuilder().
				WithScheme(newScheme(t)).
				WithObjects(tc.existing...).
				Build()
			k := kube.New(c, namespace, logr.Discard())

			if err := k.CreateNetworkAttachmentDefinitions(context.Background()); err != nil {
				t.Fatalf("CreateNetworkAttachmentDefinitions() error = %v", err)
			}

			for _, nadName := range []string{
				kube.AccessNetworkAttachmentDefinitionName,
				kube.CoreNetworkAttachmentDefinitionName,
			} {
				nad, ok := getNAD(t, c, nadName)
				if !ok {
					t.Fatalf("NetworkAttachmentDefinition %s not found after create", nadName)
				}
				// Pre-existing NADs must be left untouched (no spec).
				preexisting := false
				for _, existing := range tc.existing {
					if existing.GetName() == nadName {
						preexisting = true
					}
				}
				if preexisting {
					continue
				}
				config, found, err := unstructured.NestedString(nad.Object, "spec", "config")
				if err != nil || !found {
					t.Fatalf("NetworkAttachmentDefinition %s has no spec.config: %v", nadName, err)
				}
				for _, want := range []string{"macvlan", `"cniVersion":"0.3.1"`, `"mac":true`} {
					if !strings.Contains(config, want) {
						t.Errorf("spec.config missing %q:\n%s", want, config)
					}
				}
			}
		})
	}
}

func TestCreateNetworkAttachmentDefinitions_MissingCRDIsFatal(t *testing.T) {
	t.Parallel()

	base := fake.NewClientBuilder().WithScheme(newScheme(t)).Build()
	noMatch := &meta.NoKindMatchError{
		GroupKind:        schema.GroupKind{Group: "k8s.cni.cncf.io", Kind: "NetworkAttachmentDefinition"},
		SearchedVersions: []string{"v1"},
	}
	c := testutil.NewFakeClientWithFailures(base, &testutil.FailureConfig{
		OnGet: testutil.FailOnKeyName(kube.AccessNetworkAttachmentDefinitionName, noMatch),
	})
	k := kube.New(c, namespace, logr.Discard())

	err := k.CreateNetworkAttachmentDefinitions(context.Background())
	if err == nil {
		t.Fatal("expected error when the NAD kind is not served")
	}
	if !strings.Contains(err.Error(), "Multus") {
		t.Errorf("error should point at missing Multus CNI, got: %v", err)
	}
}

func TestDeleteNetworkAttachmentDefinitions(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing []client.Object
	}{
		"deletes both": {
			existing: []client.Object{
				newNAD(kube.AccessNetworkAttachmentDefinitionName),
				newNAD(kube.CoreNetworkAttachmentDefinitionName),
			},
		},
		"no-op when already gone": {},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := fake.NewClientBuilder().
				WithScheme(newScheme(t)).
				WithObjects(tc.existing...).
				Build()
			k := kube.New(c, namespace, logr.Discard())

			if err := k.DeleteNetworkAttachmentDefinitions(context.Background()); err != nil {
				t.Fatalf("DeleteNetworkAttachmentDefinitions() error = %v", err)
			}
			for _, nadName := range []string{
				kube.AccessNetworkAttachmentDefinitionName,
				kube.CoreNetworkAttachmentDefinitionName,
			} {
				if _, ok := getNAD(t, c, nadName); ok {
					t.Errorf("NetworkAttachmentDefinition %s still present after delete", nadName)
				}
			}
		})
	}
}

func newStatefulSet(name string, containers int, annotations map[string]string) *appsv1.StatefulSet {
	var specContainers []corev1.Container
	for _, cname := range []string{"charm", "bessd", "routectl", "web", "pfcp-agent"}[:containers] {
		specContainers = append(specContainers, corev1.Container{Name: cname, Image: cname + ":latest"})
	}
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: appsv1.StatefulSetSpec{
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Annotations: annotations},
				Spec:       corev1.PodSpec{Containers: specContainers},
			},
		},
	}
}

func TestPatchStatefulSet(t *testing.T) {
	t.Parallel()

	c := fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithObjects(newStatefulSet("upf-operator", 5, nil)).
		Build()
	k := kube.New(c, namespace, logr.Discard())

	if err := k.PatchStatefulSet(context.Background(), "upf-operator"); err != nil {
		t.Fatalf("PatchStatefulSet() error = %v", err)
	}

	sts := &appsv1.StatefulSet{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: namespace, Name: "upf-operator"}, sts); err != nil {
		t.Fatalf("failed to get StatefulSet: %v", err)
	}

	wantAnnotation := `[{"interface":"access","ips":["192.168.252.3/24"],"name":"access-net"},` +
		`{"interface":"core","ips":["192.168.250.3/24"],"name":"core-net"}]`
	if diff := cmp.Diff(wantAnnotation, sts.Spec.Template.Annotations[kube.NetworksAnnotation]); diff != "" {
		t.Errorf("networks annotation mismatch (-want +got):\n%s", diff)
	}

	bessd := sts.Spec.Template.Spec.Containers[1]
	if bessd.SecurityContext == nil {
		t.Fatal("bessd container has no security context after patch")
	}
	if bessd.SecurityContext.Privileged == nil || !*bessd.SecurityContext.Privileged {
		t.Error("bessd container is not privileged after patch")
	}
	wantCaps := []corev1.Capability{"NET_ADMIN"}
	if bessd.SecurityContext.Capabilities == nil ||
		!cmp.Equal(wantCaps, bessd.SecurityContext.Capabilities.Add) {
		t.Errorf("bessd capabilities mismatch, got %+v", bessd.SecurityContext.Capabilities)
	}
	if sts.Spec.Template.Spec.Containers[0].SecurityContext != nil {
		t.Error("charm container security context must not be touched")
	}

	patched, err := k.StatefulSetIsPatched(context.Background(), "upf-operator")
	if err != nil {
		t.Fatalf("StatefulSetIsPatched() error = %v", err)
	}
	if !patched {
		t.Error("StatefulSetIsPatched() = false after patch")
	}
}

func TestPatchStatefulSet_AlreadyPatchedSkipsPatch(t *testing.T) {
	t.Parallel()

	existing := newStatefulSet("upf-operator", 5, map[string]string{
		kube.NetworksAnnotation: "[]",
	})
	base := fake.NewClientBuilder().WithScheme(newScheme(t)).WithObjects(existing).Build()
	c := testutil.NewFakeClientWithFailures(base, &testutil.FailureConfig{
		OnPatch: func(obj client.Object) error { return testutil.ErrInjected },
	})
	k := kube.New(c, namespace, logr.Discard())

	// A second invocation must not issue a Patch at all.
	if err := k.PatchStatefulSet(context.Background(), "upf-operator"); err != nil {
		t.Fatalf("PatchStatefulSet() on patched StatefulSet error = %v", err)
	}
}

func TestPatchStatefulSet_RejectsShortContainerList(t *testing.T) {
	t.Parallel()

	c := fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithObjects(newStatefulSet("upf-operator", 1, nil)).
		Build()
	k := kube.New(c, namespace, logr.Discard())

	if err := k.PatchStatefulSet(context.Background(), "upf-operator"); err == nil {
		t.Fatal("expected error for StatefulSet without a bessd container")
	}
}
