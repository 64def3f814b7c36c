package controller

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

const (
	// ControllerName names the watcher's logger and metrics.
	ControllerName = "label-spreader"
)

// PropagationRule says which namespace labels are mirrored onto which kinds.
// Kinds are matched case-insensitively, label keys exactly.
type PropagationRule struct {
	LabelKeys []string
	Kinds     sets.Set[string]
}

// NewPropagationRule builds a rule from the configured lists. Empty entries
// and duplicate label keys are dropped, kinds are lower-cased.
func NewPropagationRule(labelKeys, kinds []string) PropagationRule {
	rule := PropagationRule{Kinds: sets.New[string]()}

	seen := sets.New[string]()
	for _, k := range labelKeys {
		k = strings.TrimSpace(k)
		if k == "" || seen.Has(k) {
			continue
		}
		seen.Insert(k)
		rule.LabelKeys = append(rule.LabelKeys, k)
	}
	for _, kind := range kinds {
		if kind = strings.ToLower(strings.TrimSpace(kind)); kind != "" {
			rule.Kinds.Insert(kind)
		}
	}
	return rule
}

// AppliesToKind reports whether kind is one of the spread kinds.
func (r PropagationRule) AppliesToKind(kind string) bool {
	return kind != "" && r.Kinds.Has(strings.ToLower(kind))
}

// AppliesTo is the part of the filter that needs no namespace: the object must
// be namespaced and of a spread kind.
func (r PropagationRule) AppliesTo(ref gateway.ResourceRef) bool {
	return ref.Namespace != "" && r.AppliesToKind(ref.Kind)
}
