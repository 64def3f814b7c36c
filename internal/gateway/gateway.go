package gateway

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// RBAC: read namespaces, watch events, update whatever kinds are configured for spreading.
// +kubebuilder:rbac:groups="",resources=namespaces,verbs=get;list
// +kubebuilder:rbac:groups="",resources=events,verbs=watch
// +kubebuilder:rbac:groups=*,resources=*,verbs=get;update

// Gateway is the cluster API surface used by the spreader.
type Gateway interface {
	ListNamespaces(ctx context.Context) ([]Namespace, error)
	ReadNamespace(ctx context.Context, name string) (Namespace, error)
	GetResource(ctx context.Context, ref ResourceRef) (*unstructured.Unstructured, error)
	UpdateResource(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	// WatchEvents delivers events to onEvent until the stream closes or ctx is done.
	// It returns nil once an opened stream ends and an error only if the watch
	// could not be opened.
	WatchEvents(ctx context.Context, onEvent func(WatchEvent)) error
}

// Kube implements Gateway on top of controller-runtime and client-go clients.
type Kube struct {
	// Reader should bypass the informer cache, the spreader keeps its own namespace view.
	Reader client.Reader
	// Client resolves arbitrary kinds through its RESTMapper.
	Client client.Client
	Events kubernetes.Interface
}

var _ Gateway = &Kube{}

func NewKube(reader client.Reader, c client.Client, events kubernetes.Interface) *Kube {
	return &Kube{Reader: reader, Client: c, Events: events}
}

func (k *Kube) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	var list corev1.NamespaceList
	if err := k.Reader.List(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	out := make([]Namespace, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, fromNamespace(&list.Items[i]))
	}
	return out, nil
}

func (k *Kube) ReadNamespace(ctx context.Context, name string) (Namespace, error) {
	var ns corev1.Namespace
	if err := k.Reader.Get(ctx, types.NamespacedName{Name: name}, &ns); err != nil {
		return Namespace{}, fmt.Errorf("failed to get namespace %q: %w", name, err)
	}
	return fromNamespace(&ns), nil
}

func (k *Kube) GetResource(ctx context.Context, ref ResourceRef) (*unstructured.Unstructured, error) {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(schema.FromAPIVersionAndKind(ref.APIVersion, ref.Kind))
	if err := k.Client.Get(ctx, types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}, obj); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	return obj, nil
}

// UpdateResource replaces the whole object. The resourceVersion of obj is sent
// along, so a concurrent write makes the API server answer with a conflict.
func (k *Kube) UpdateResource(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	updated := obj.DeepCopy()
	if err := k.Client.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
	}
	return updated, nil
}

func (k *Kube) WatchEvents(ctx context.Context, onEvent func(WatchEvent)) error {
	w, err := k.Events.CoreV1().Events(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to watch events: %w", err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			onEvent(toWatchEvent(ev))
		}
	}
}

func fromNamespace(ns *corev1.Namespace) Namespace {
	labels := make(map[string]string, len(ns.Labels))
	for k, v := range ns.Labels {
		labels[k] = v
	}
	return Namespace{Name: ns.Name, Labels: labels}
}

// toWatchEvent keeps the type of every event; the involved object is only
// known for core/v1 Events, error events carry a Status instead.
func toWatchEvent(ev watch.Event) WatchEvent {
	out := WatchEvent{Type: ev.Type}
	if e, ok := ev.Object.(*corev1.Event); ok {
		out.InvolvedObject = ResourceRef{
			APIVersion: e.InvolvedObject.APIVersion,
			Kind:       e.InvolvedObject.Kind,
			Namespace:  e.InvolvedObject.Namespace,
			Name:       e.InvolvedObject.Name,
		}
	}
	return out
}
