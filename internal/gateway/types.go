package gateway

import (
	"fmt"
	"maps"
	"time"

	"k8s.io/apimachinery/pkg/watch"
)

// Namespace is the part of a cluster namespace the spreader cares about.
type Namespace struct {
	Name   string
	Labels map[string]string
	// FetchedAt is set by the namespace cache when the entry is stored.
	FetchedAt time.Time
}

// DeepCopy returns a copy that does not share the label map.
func (n Namespace) DeepCopy() Namespace {
	out := n
	out.Labels = maps.Clone(n.Labels)
	return out
}

// ResourceRef identifies the object an event is about.
type ResourceRef struct {
	APIVersion string
	Kind       string
	Namespace  string
	Name       string
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s %s/%s (%s)", r.Kind, r.Namespace, r.Name, r.APIVersion)
}

// WatchEvent is a single entry of the cluster event stream.
type WatchEvent struct {
	Type           watch.EventType
	InvolvedObject ResourceRef
}

// Actionable reports whether the event can lead to a label update.
func (e WatchEvent) Actionable() bool {
	return e.Type == watch.Added || e.Type == watch.Modified
}
