package controller

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

// ResourceClient reads and writes the objects referenced by events.
type ResourceClient interface {
	GetResource(ctx context.Context, ref gateway.ResourceRef) (*unstructured.Unstructured, error)
	UpdateResource(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
}

// LabelReconciler mirrors spread labels onto a single resource.
type LabelReconciler struct {
	Resources ResourceClient
}

// Reconcile fetches the live object, and updates it only if at least one of
// labelsToApply is missing or different. Other labels on the object are kept.
//
// The fetch and update are not retried. The update is sent with the fetched
// resourceVersion, so losing a race against another writer shows up as a
// conflict error and the labels are applied again on the next event.
func (r *LabelReconciler) Reconcile(ctx context.Context, ref gateway.ResourceRef, labelsToApply map[string]string) (changed bool, err error) {
	l := log.FromContext(ctx).WithValues("kind", ref.Kind, "name", ref.Name, "namespace", ref.Namespace)
	start := time.Now()
	defer func() {
		result := resultUnchanged
		switch {
		case err != nil:
			result = resultError
		case changed:
			result = resultChanged
		}
		reconcileTotal.WithLabelValues(result).Inc()
		reconcileDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	l.V(1).Info("fetching involved resource")
	obj, err := r.Resources.GetResource(ctx, ref)
	if err != nil {
		return false, err
	}

	current := obj.GetLabels()
	keys := differingKeys(current, labelsToApply)
	if len(keys) == 0 {
		l.V(1).Info("labels already up to date")
		return false, nil
	}

	obj.SetLabels(applyLabels(current, labelsToApply, keys))
	l.Info("updating resource labels", "labels", formatLabels(labelsToApply, keys))
	if _, err := r.Resources.UpdateResource(ctx, obj); err != nil {
		return false, err
	}
	return true, nil
}
