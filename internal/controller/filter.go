package controller

import "github.com/sbahar619/namespace-label-spreader/internal/gateway"

// ShouldPropagate decides whether an event about an object of involvedKind in
// involvedNamespace leads to propagation, and returns the labels to mirror.
// It fails closed: no namespace, a kind outside the rule or a namespace
// without spread labels all yield false.
func ShouldPropagate(ns gateway.Namespace, involvedKind, involvedNamespace string, rule PropagationRule) (bool, map[string]string) {
	if involvedNamespace == "" || !rule.AppliesToKind(involvedKind) {
		return false, nil
	}

	labels := spreadLabels(ns.Labels, rule.LabelKeys)
	if len(labels) == 0 {
		return false, nil
	}
	return true, labels
}
